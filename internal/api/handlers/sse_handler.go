package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/domain/providers"
)

const (
	defaultHeartbeat = 30 * time.Second
	clientBuffer     = 20
)

// SSEHandler streams realtime booking events to providers and customers
type SSEHandler struct {
	eventBus  providers.EventBus
	clients   map[string]map[chan *entities.BookingEvent]bool // channel -> clients
	mu        sync.RWMutex
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(eventBus providers.EventBus) *SSEHandler {
	return &SSEHandler{
		eventBus:  eventBus,
		clients:   make(map[string]map[chan *entities.BookingEvent]bool),
		heartbeat: defaultHeartbeat,
	}
}

// WithHeartbeat overrides the keep-alive interval
func (h *SSEHandler) WithHeartbeat(d time.Duration) *SSEHandler {
	h.heartbeat = d
	return h
}

// StreamProviderUpdates handles GET /api/stream/providers/{id}
func (h *SSEHandler) StreamProviderUpdates(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if actor.Role != entities.ActorRoleProvider || actor.ID != providerID {
		respondWithError(w, http.StatusForbidden, "providers can only stream their own updates")
		return
	}

	h.stream(w, r, providers.GetProviderChannel(providerID), map[string]interface{}{
		"provider_id": providerID,
	})
}

// StreamCustomerUpdates handles GET /api/stream/customers/{id}
func (h *SSEHandler) StreamCustomerUpdates(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("id")
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if actor.Role != entities.ActorRoleCustomer || actor.ID != customerID {
		respondWithError(w, http.StatusForbidden, "customers can only stream their own updates")
		return
	}

	h.stream(w, r, providers.GetCustomerChannel(customerID), map[string]interface{}{
		"customer_id": customerID,
	})
}

// GetStats handles GET /api/stream/stats
func (h *SSEHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	channels := make(map[string]int, len(h.clients))
	total := 0
	for channel, clients := range h.clients {
		channels[channel] = len(clients)
		total += len(clients)
	}
	h.mu.RUnlock()

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"total_clients": total,
		"channels":      channels,
		"timestamp":     time.Now(),
	})
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, channel string, hello map[string]interface{}) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventChan, err := h.eventBus.Subscribe(r.Context(), channel)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to subscribe to channel")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	clientChan := make(chan *entities.BookingEvent, clientBuffer)
	h.registerClient(channel, clientChan)
	defer h.unregisterClient(channel, clientChan)

	hello["timestamp"] = time.Now()
	h.sendEvent(w, "connected", hello)
	flusher.Flush()

	go h.forwardEvents(r.Context(), eventChan, clientChan)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("channel", channel).Msg("Client disconnected from stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case event, ok := <-clientChan:
			if !ok {
				return
			}
			h.sendEvent(w, string(event.EventType), event)
			flusher.Flush()
		}
	}
}

// forwardEvents copies bus events to the client, dropping them when the client lags.
// clientChan is closed once the bus subscription ends.
func (h *SSEHandler) forwardEvents(ctx context.Context, eventChan <-chan *entities.BookingEvent, clientChan chan<- *entities.BookingEvent) {
	defer close(clientChan)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			select {
			case clientChan <- event:
			default:
				log.Warn().Str("event_id", event.ID).Msg("Stream client lagging, dropping event")
			}
		}
	}
}

func (h *SSEHandler) registerClient(channel string, clientChan chan *entities.BookingEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[channel] == nil {
		h.clients[channel] = make(map[chan *entities.BookingEvent]bool)
	}
	h.clients[channel][clientChan] = true
	log.Debug().Str("channel", channel).Int("total", len(h.clients[channel])).Msg("Stream client registered")
}

func (h *SSEHandler) unregisterClient(channel string, clientChan chan *entities.BookingEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.clients[channel]; exists {
		delete(clients, clientChan)
		if len(clients) == 0 {
			delete(h.clients, channel)
		}
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("Failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected clients
func (h *SSEHandler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
