package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/servicehub/bookingengine/internal/domain/entities"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

// FieldError describes one rejected request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors collects every rejected field of a request
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(e), strings.Join(messages, "; "))
}

// Validator checks request payloads before they reach the engine
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the civildate and hhmm tags registered
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	if err := v.RegisterValidation("civildate", validateCivilDate); err != nil {
		log.Fatal().Err(err).Msg("Failed to register 'civildate' validator")
	}
	if err := v.RegisterValidation("hhmm", validateTimeOfDay); err != nil {
		log.Fatal().Err(err).Msg("Failed to register 'hhmm' validator")
	}

	return &Validator{validate: v}
}

func validateCivilDate(fl validator.FieldLevel) bool {
	d, err := civil.ParseDate(fl.Field().String())
	return err == nil && d.IsValid()
}

func validateTimeOfDay(fl validator.FieldLevel) bool {
	_, err := entities.ParseTimeOfDay(fl.Field().String())
	return err == nil
}

// Struct validates s and returns a VALIDATION AppError wrapping FieldErrors
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apperrors.NewValidationError(err.Error())
	}

	fieldErrs := translate(validationErrs)
	return &apperrors.AppError{
		Type:    apperrors.ErrorTypeValidation,
		Message: fieldErrs.Error(),
		Err:     fieldErrs,
	}
}

func translate(errs validator.ValidationErrors) FieldErrors {
	out := make(FieldErrors, 0, len(errs))
	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "civildate":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case "hhmm":
			message = fmt.Sprintf("%s must be a time in HH:MM format", err.Field())
		case "required_with":
			message = fmt.Sprintf("%s is required when %s is set", err.Field(), err.Param())
		}

		out = append(out, FieldError{Field: fieldPath(err), Message: message})
	}
	return out
}

// fieldPath drops the struct name, keeping indexes into nested slices
func fieldPath(err validator.FieldError) string {
	ns := err.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
