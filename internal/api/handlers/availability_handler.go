package handlers

import (
	"context"
	"net/http"

	"cloud.google.com/go/civil"

	"github.com/servicehub/bookingengine/internal/api/validation"
	"github.com/servicehub/bookingengine/internal/domain/entities"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

// maxBlockedRangeDays bounds GET blocked-times queries
const maxBlockedRangeDays = 366

// AvailabilityManager defines the availability operations the handler needs
type AvailabilityManager interface {
	GenerateSlots(ctx context.Context, providerID, serviceID string, date civil.Date) ([]entities.Slot, error)
	GetAvailability(ctx context.Context, providerID string) ([]*entities.AvailabilityRule, error)
	SetAvailability(ctx context.Context, actor entities.Actor, providerID string, rules []*entities.AvailabilityRule) ([]*entities.AvailabilityRule, error)
	ListBlockedTimes(ctx context.Context, providerID string, from, to civil.Date) ([]*entities.BlockedTime, error)
	BlockTime(ctx context.Context, actor entities.Actor, providerID string, block *entities.BlockedTime) (*entities.BlockedTime, error)
	UnblockTime(ctx context.Context, actor entities.Actor, providerID, blockedTimeID string) error
}

// AvailabilityHandler handles provider availability and slot requests
type AvailabilityHandler struct {
	service   AvailabilityManager
	validator *validation.Validator
}

// NewAvailabilityHandler creates a new availability handler
func NewAvailabilityHandler(service AvailabilityManager, validator *validation.Validator) *AvailabilityHandler {
	return &AvailabilityHandler{
		service:   service,
		validator: validator,
	}
}

// GetSlots handles GET /api/providers/{id}/slots?service_id=&date=
func (h *AvailabilityHandler) GetSlots(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")
	serviceID := r.URL.Query().Get("service_id")
	if serviceID == "" {
		respondWithError(w, http.StatusBadRequest, "service_id query parameter is required")
		return
	}

	date, err := civil.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "date must be a date in YYYY-MM-DD format")
		return
	}

	slots, err := h.service.GenerateSlots(r.Context(), providerID, serviceID, date)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, entities.DatedSlots{
		ProviderID: providerID,
		ServiceID:  serviceID,
		Date:       date,
		Slots:      slots,
	})
}

// GetAvailability handles GET /api/providers/{id}/availability
func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.GetAvailability(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
	})
}

// SetAvailability handles PUT /api/providers/{id}/availability
func (h *AvailabilityHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req SetAvailabilityRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	rules, err := h.service.SetAvailability(r.Context(), actor, r.PathValue("id"), req.toRules())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
	})
}

// ListBlockedTimes handles GET /api/providers/{id}/blocked-times?from=&to=
func (h *AvailabilityHandler) ListBlockedTimes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := civil.ParseDate(query.Get("from"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "from must be a date in YYYY-MM-DD format")
		return
	}
	to := from
	if raw := query.Get("to"); raw != "" {
		if to, err = civil.ParseDate(raw); err != nil {
			respondWithError(w, http.StatusBadRequest, "to must be a date in YYYY-MM-DD format")
			return
		}
	}
	if to.Before(from) || to.DaysSince(from) > maxBlockedRangeDays {
		respondWithAppError(w, r, apperrors.NewValidationError("to must be on or after from and at most a year later"))
		return
	}

	blocks, err := h.service.ListBlockedTimes(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"blocked_times": blocks,
	})
}

// BlockTime handles POST /api/providers/{id}/blocked-times
func (h *AvailabilityHandler) BlockTime(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req BlockTimeRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	providerID := r.PathValue("id")
	block, err := h.service.BlockTime(r.Context(), actor, providerID, req.toBlockedTime(providerID))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, block)
}

// UnblockTime handles DELETE /api/providers/{id}/blocked-times/{blockedId}
func (h *AvailabilityHandler) UnblockTime(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.UnblockTime(r.Context(), actor, r.PathValue("id"), r.PathValue("blockedId")); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
