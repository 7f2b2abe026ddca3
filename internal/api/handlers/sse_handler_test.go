package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/servicehub/bookingengine/internal/api/handlers"
	"github.com/servicehub/bookingengine/internal/api/middleware"
	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/domain/providers"
)

// MockEventBus for testing
type MockEventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *entities.BookingEvent
	published   []*entities.BookingEvent
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		subscribers: make(map[string][]chan *entities.BookingEvent),
		published:   make([]*entities.BookingEvent, 0),
	}
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.BookingEvent) error {
	m.mu.Lock()
	m.published = append(m.published, event)
	channels := append([]chan *entities.BookingEvent(nil), m.subscribers[channel]...)
	m.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.BookingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan *entities.BookingEvent, 10)
	m.subscribers[channel] = append(m.subscribers[channel], ch)
	return ch, nil
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, channel)
	return nil
}

func (m *MockEventBus) Close() error {
	m.mu.Lock()
	subs := m.subscribers
	m.subscribers = make(map[string][]chan *entities.BookingEvent)
	m.mu.Unlock()
	for _, channels := range subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	return nil
}

func (m *MockEventBus) SubscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[channel])
}

func streamRequest(ctx context.Context, path, id string, actor *entities.Actor) *http.Request {
	req := httptest.NewRequest("GET", path, nil)
	req.SetPathValue("id", id)
	if actor != nil {
		ctx = middleware.WithActor(ctx, *actor)
	}
	return req.WithContext(ctx)
}

// waitFor polls cond until it holds or a second passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSSEHandler_StreamProviderUpdates(t *testing.T) {
	eventBus := NewMockEventBus()
	handler := handlers.NewSSEHandler(eventBus)
	provider := entities.Actor{ID: "provider-1", Role: entities.ActorRoleProvider}

	t.Run("should stream provider events", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req := streamRequest(ctx, "/api/stream/providers/provider-1", "provider-1", &provider)
		w := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			handler.StreamProviderUpdates(w, req)
			close(done)
		}()

		channel := providers.GetProviderChannel("provider-1")
		waitFor(t, func() bool { return eventBus.SubscriberCount(channel) == 1 })

		booking := &entities.Booking{ID: "booking-1", ProviderID: "provider-1", CustomerID: "customer-1", Status: entities.BookingStatusPending}
		eventBus.Publish(context.Background(), channel, entities.NewBookingCreatedEvent(booking))

		time.Sleep(100 * time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not exit after cancel")
		}

		result := w.Result()
		if result.Header.Get("Content-Type") != "text/event-stream" {
			t.Errorf("Expected Content-Type text/event-stream, got %s", result.Header.Get("Content-Type"))
		}
		body := w.Body.String()
		if !strings.Contains(body, "event: connected") {
			t.Errorf("Expected connected event, got %q", body)
		}
		if !strings.Contains(body, "event: booking.created") || !strings.Contains(body, `"booking_id":"booking-1"`) {
			t.Errorf("Expected booking.created event, got %q", body)
		}
	})

	t.Run("should reject other callers", func(t *testing.T) {
		other := entities.Actor{ID: "provider-2", Role: entities.ActorRoleProvider}
		req := streamRequest(context.Background(), "/api/stream/providers/provider-1", "provider-1", &other)
		w := httptest.NewRecorder()

		handler.StreamProviderUpdates(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("Expected status 403, got %d", w.Code)
		}
	})

	t.Run("should require identity", func(t *testing.T) {
		req := streamRequest(context.Background(), "/api/stream/providers/provider-1", "provider-1", nil)
		w := httptest.NewRecorder()

		handler.StreamProviderUpdates(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401, got %d", w.Code)
		}
	})
}

func TestSSEHandler_StreamCustomerUpdates(t *testing.T) {
	eventBus := NewMockEventBus()
	handler := handlers.NewSSEHandler(eventBus).WithHeartbeat(20 * time.Millisecond)
	customer := entities.Actor{ID: "customer-1", Role: entities.ActorRoleCustomer}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := streamRequest(ctx, "/api/stream/customers/customer-1", "customer-1", &customer)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.StreamCustomerUpdates(w, req)
		close(done)
	}()

	channel := providers.GetCustomerChannel("customer-1")
	waitFor(t, func() bool { return eventBus.SubscriberCount(channel) == 1 })
	eventBus.Publish(context.Background(), channel,
		entities.NewBookingStatusChangedEvent("booking-1", entities.BookingStatusConfirmed, "customer-1", "provider-1"))

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: booking.status_changed") {
		t.Errorf("Expected status change event, got %q", body)
	}
	if !strings.Contains(body, "event: heartbeat") {
		t.Errorf("Expected heartbeat, got %q", body)
	}
}

func TestSSEHandler_StreamEndsWhenBusCloses(t *testing.T) {
	eventBus := NewMockEventBus()
	handler := handlers.NewSSEHandler(eventBus)
	customer := entities.Actor{ID: "customer-1", Role: entities.ActorRoleCustomer}

	req := streamRequest(context.Background(), "/api/stream/customers/customer-1", "customer-1", &customer)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.StreamCustomerUpdates(w, req)
		close(done)
	}()

	waitFor(t, func() bool { return eventBus.SubscriberCount(providers.GetCustomerChannel("customer-1")) == 1 })
	eventBus.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after the bus closed")
	}
}

func TestSSEHandler_ClientCountAndStats(t *testing.T) {
	eventBus := NewMockEventBus()
	handler := handlers.NewSSEHandler(eventBus)
	provider := entities.Actor{ID: "provider-1", Role: entities.ActorRoleProvider}

	if count := handler.GetClientCount(); count != 0 {
		t.Errorf("Expected 0 clients, got %d", count)
	}

	ctx, cancel := context.WithCancel(context.Background())
	req := streamRequest(ctx, "/api/stream/providers/provider-1", "provider-1", &provider)
	done := make(chan struct{})
	go func() {
		handler.StreamProviderUpdates(httptest.NewRecorder(), req)
		close(done)
	}()

	waitFor(t, func() bool { return handler.GetClientCount() == 1 })

	statsW := httptest.NewRecorder()
	handler.GetStats(statsW, httptest.NewRequest("GET", "/api/stream/stats", nil))

	var stats struct {
		TotalClients int            `json:"total_clients"`
		Channels     map[string]int `json:"channels"`
	}
	if err := json.NewDecoder(statsW.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.TotalClients != 1 || stats.Channels["provider:provider-1"] != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	cancel()
	<-done

	if count := handler.GetClientCount(); count != 0 {
		t.Errorf("Expected 0 clients after disconnect, got %d", count)
	}
}
