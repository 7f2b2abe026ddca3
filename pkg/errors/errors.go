package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a provider, service, booking or block id did not resolve
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a malformed request
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnauthorized indicates the caller is not a party to the resource
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeInvalidTransition indicates an illegal booking state change
	ErrorTypeInvalidTransition ErrorType = "INVALID_TRANSITION"

	// ErrorTypeSlotConflict indicates the requested interval was taken at claim time
	ErrorTypeSlotConflict ErrorType = "SLOT_CONFLICT"

	// ErrorTypeTooEarly indicates a start attempt before the lead window opened
	ErrorTypeTooEarly ErrorType = "TOO_EARLY"

	// ErrorTypePastDate indicates a requested date/time already passed
	ErrorTypePastDate ErrorType = "PAST_DATE"

	// ErrorTypeTimeout indicates persistence exceeded its deadline. Retryable.
	ErrorTypeTimeout ErrorType = "TIMEOUT"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may safely retry the operation
func (e *AppError) Retryable() bool {
	return e.Type == ErrorTypeTimeout
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewInvalidTransitionError names the current state and the requested action or state
func NewInvalidTransitionError(current, requested string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidTransition,
		Message: fmt.Sprintf("cannot %s booking in status %s", requested, current),
	}
}

// NewSlotConflictError creates a new slot conflict error
func NewSlotConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeSlotConflict,
		Message: message,
	}
}

// NewTooEarlyError creates a new too early error
func NewTooEarlyError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeTooEarly,
		Message: message,
	}
}

// NewPastDateError creates a new past date error
func NewPastDateError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypePastDate,
		Message: message,
	}
}

// NewTimeoutError creates a new retryable timeout error
func NewTimeoutError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeTimeout,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or
// ErrorTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsType reports whether err carries an AppError of the given type
func IsType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) == t
}

// IsRetryable reports whether err is a retryable AppError
func IsRetryable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Retryable()
}
