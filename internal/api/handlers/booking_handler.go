package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/servicehub/bookingengine/internal/api/middleware"
	"github.com/servicehub/bookingengine/internal/api/validation"
	"github.com/servicehub/bookingengine/internal/application/services"
	"github.com/servicehub/bookingengine/internal/domain/entities"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

const maxListLimit = 100

// BookingService defines the booking lifecycle operations the handler needs
type BookingService interface {
	Create(ctx context.Context, actor entities.Actor, input services.CreateBookingInput) (*entities.Booking, error)
	Accept(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error)
	Decline(ctx context.Context, actor entities.Actor, bookingID, reason string) (*entities.Booking, error)
	Start(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error)
	Complete(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error)
	RequestReschedule(ctx context.Context, actor entities.Actor, bookingID string, newDate civil.Date, newTime entities.TimeOfDay) (*entities.Booking, error)
	ConfirmReschedule(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error)
	DeclineReschedule(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error)
	Cancel(ctx context.Context, actor entities.Actor, bookingID, reason string) (*entities.Booking, error)
	GetBooking(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error)
	ListBookings(ctx context.Context, actor entities.Actor, filter entities.BookingFilter) ([]*entities.Booking, error)
}

// BookingHandler handles booking requests
type BookingHandler struct {
	service   BookingService
	validator *validation.Validator
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(service BookingService, validator *validation.Validator) *BookingHandler {
	return &BookingHandler{
		service:   service,
		validator: validator,
	}
}

// requireActor returns the caller or writes 401
func requireActor(w http.ResponseWriter, r *http.Request) (entities.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "caller identity is required")
	}
	return actor, ok
}

// CreateBooking handles POST /api/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateBookingRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	booking, err := h.service.Create(r.Context(), actor, services.CreateBookingInput{
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		Date:       req.parsedDate(),
		Time:       req.parsedTime(),
		Notes:      req.Notes,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, booking)
}

// GetBooking handles GET /api/bookings/{id}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	booking, err := h.service.GetBooking(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

// ListBookings handles GET /api/bookings
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	filter, err := parseBookingFilter(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	bookings, err := h.service.ListBookings(r.Context(), actor, filter)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"count":    len(bookings),
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func parseBookingFilter(r *http.Request) (entities.BookingFilter, error) {
	query := r.URL.Query()
	filter := entities.BookingFilter{
		ProviderID: query.Get("provider_id"),
		CustomerID: query.Get("customer_id"),
		Limit:      20,
	}

	if raw := query.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := entities.ParseBookingStatus(strings.TrimSpace(part))
			if err != nil {
				return filter, apperrors.NewValidationError(err.Error())
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	for name, dst := range map[string]**civil.Date{"from": &filter.From, "to": &filter.To} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		d, err := civil.ParseDate(raw)
		if err != nil {
			return filter, apperrors.NewValidationError(name + " must be a date in YYYY-MM-DD format")
		}
		*dst = &d
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			return filter, apperrors.NewValidationError("limit must be between 1 and 100")
		}
		filter.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, apperrors.NewValidationError("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}

	return filter, nil
}

// Accept handles POST /api/bookings/{id}/accept
func (h *BookingHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Accept)
}

// Start handles POST /api/bookings/{id}/start
func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Start)
}

// Complete handles POST /api/bookings/{id}/complete
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Complete)
}

// ConfirmReschedule handles POST /api/bookings/{id}/reschedule/confirm
func (h *BookingHandler) ConfirmReschedule(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.ConfirmReschedule)
}

// DeclineReschedule handles POST /api/bookings/{id}/reschedule/decline
func (h *BookingHandler) DeclineReschedule(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.DeclineReschedule)
}

// Decline handles POST /api/bookings/{id}/decline
func (h *BookingHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.reasonTransition(w, r, h.service.Decline)
}

// Cancel handles POST /api/bookings/{id}/cancel
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.reasonTransition(w, r, h.service.Cancel)
}

// RequestReschedule handles POST /api/bookings/{id}/reschedule
func (h *BookingHandler) RequestReschedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req RescheduleRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	booking, err := h.service.RequestReschedule(r.Context(), actor, r.PathValue("id"), req.parsedDate(), req.parsedTime())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

type transitionFunc func(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error)

type reasonTransitionFunc func(ctx context.Context, actor entities.Actor, bookingID, reason string) (*entities.Booking, error)

func (h *BookingHandler) simpleTransition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	booking, err := fn(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

// reasonTransition accepts an empty body as no reason
func (h *BookingHandler) reasonTransition(w http.ResponseWriter, r *http.Request, fn reasonTransitionFunc) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req ReasonRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, h.validator, &req); err != nil {
			respondWithAppError(w, r, err)
			return
		}
	}

	booking, err := fn(r.Context(), actor, r.PathValue("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}
