package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/servicehub/bookingengine/internal/api/validation"
	"github.com/servicehub/bookingengine/internal/infrastructure/observability"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

// retryAfterSeconds is advertised on TIMEOUT responses
const retryAfterSeconds = 1

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

type errorBody struct {
	Error  string                 `json:"error"`
	Code   apperrors.ErrorType    `json:"code"`
	Fields validation.FieldErrors `json:"fields,omitempty"`
}

// statusFor maps an error kind to its HTTP status
func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeConflict, apperrors.ErrorTypeSlotConflict, apperrors.ErrorTypeInvalidTransition:
		return http.StatusConflict
	case apperrors.ErrorTypeTooEarly:
		return http.StatusTooEarly
	case apperrors.ErrorTypePastDate:
		return http.StatusUnprocessableEntity
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusForbidden
	case apperrors.ErrorTypeTimeout:
		return http.StatusServiceUnavailable
	case apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithAppError writes err using its AppError kind. Internal details are not exposed.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled error")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := statusFor(appErr.Type)
	body := errorBody{Error: appErr.Message, Code: appErr.Type}

	switch appErr.Type {
	case apperrors.ErrorTypeInternal, apperrors.ErrorTypeExternal:
		observability.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	case apperrors.ErrorTypeTimeout:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	case apperrors.ErrorTypeValidation:
		var fieldErrs validation.FieldErrors
		if errors.As(err, &fieldErrs) {
			body.Fields = fieldErrs
		}
	}

	respondWithJSON(w, status, body)
}

// decodeJSON reads the request body into dst and validates it
func decodeJSON(r *http.Request, v *validation.Validator, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid request payload")
	}
	return v.Struct(dst)
}
