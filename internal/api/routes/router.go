package routes

import (
	"net/http"

	"github.com/servicehub/bookingengine/internal/api/handlers"
	"github.com/servicehub/bookingengine/internal/api/middleware"
	"github.com/servicehub/bookingengine/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	bookingHandler      *handlers.BookingHandler
	availabilityHandler *handlers.AvailabilityHandler
	sseHandler          *handlers.SSEHandler

	metrics *observability.Metrics
}

// NewRouter creates a new router. sseHandler may be nil when streams are served separately.
func NewRouter(
	bookingHandler *handlers.BookingHandler,
	availabilityHandler *handlers.AvailabilityHandler,
	sseHandler *handlers.SSEHandler,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:                 http.NewServeMux(),
		bookingHandler:      bookingHandler,
		availabilityHandler: availabilityHandler,
		sseHandler:          sseHandler,
		metrics:             metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Availability endpoints
	r.mux.HandleFunc("GET /api/providers/{id}/slots", r.availabilityHandler.GetSlots)
	r.mux.HandleFunc("GET /api/providers/{id}/availability", r.availabilityHandler.GetAvailability)
	r.mux.HandleFunc("PUT /api/providers/{id}/availability", r.availabilityHandler.SetAvailability)
	r.mux.HandleFunc("GET /api/providers/{id}/blocked-times", r.availabilityHandler.ListBlockedTimes)
	r.mux.HandleFunc("POST /api/providers/{id}/blocked-times", r.availabilityHandler.BlockTime)
	r.mux.HandleFunc("DELETE /api/providers/{id}/blocked-times/{blockedId}", r.availabilityHandler.UnblockTime)

	// Booking endpoints
	r.mux.HandleFunc("POST /api/bookings", r.bookingHandler.CreateBooking)
	r.mux.HandleFunc("GET /api/bookings", r.bookingHandler.ListBookings)
	r.mux.HandleFunc("GET /api/bookings/{id}", r.bookingHandler.GetBooking)
	r.mux.HandleFunc("POST /api/bookings/{id}/accept", r.bookingHandler.Accept)
	r.mux.HandleFunc("POST /api/bookings/{id}/decline", r.bookingHandler.Decline)
	r.mux.HandleFunc("POST /api/bookings/{id}/start", r.bookingHandler.Start)
	r.mux.HandleFunc("POST /api/bookings/{id}/complete", r.bookingHandler.Complete)
	r.mux.HandleFunc("POST /api/bookings/{id}/cancel", r.bookingHandler.Cancel)
	r.mux.HandleFunc("POST /api/bookings/{id}/reschedule", r.bookingHandler.RequestReschedule)
	r.mux.HandleFunc("POST /api/bookings/{id}/reschedule/confirm", r.bookingHandler.ConfirmReschedule)
	r.mux.HandleFunc("POST /api/bookings/{id}/reschedule/decline", r.bookingHandler.DeclineReschedule)

	if r.sseHandler != nil {
		RegisterStreamRoutes(r.mux, r.sseHandler)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.IdentityMiddleware(handler)
	handler = middleware.ResponseOptimization(handler)
	handler = middleware.CORSMiddleware(handler)

	return handler
}

// RegisterStreamRoutes adds the SSE endpoints to mux
func RegisterStreamRoutes(mux *http.ServeMux, sseHandler *handlers.SSEHandler) {
	mux.HandleFunc("GET /api/stream/providers/{id}", sseHandler.StreamProviderUpdates)
	mux.HandleFunc("GET /api/stream/customers/{id}", sseHandler.StreamCustomerUpdates)
	mux.HandleFunc("GET /api/stream/stats", sseHandler.GetStats)
}
