package handlers

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/servicehub/bookingengine/internal/domain/entities"
)

// CreateBookingRequest is the body of POST /api/bookings
type CreateBookingRequest struct {
	ProviderID string `json:"provider_id" validate:"required,max=64"`
	ServiceID  string `json:"service_id" validate:"required,max=64"`
	Date       string `json:"date" validate:"required,civildate"`
	Time       string `json:"time" validate:"required,hhmm"`
	Notes      string `json:"notes" validate:"max=1000"`
}

// ReasonRequest is the optional body of decline and cancel
type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RescheduleRequest is the body of POST /api/bookings/{id}/reschedule
type RescheduleRequest struct {
	Date string `json:"date" validate:"required,civildate"`
	Time string `json:"time" validate:"required,hhmm"`
}

// AvailabilityRuleRequest is one weekly rule of a SetAvailabilityRequest
type AvailabilityRuleRequest struct {
	DayOfWeek   *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime   string `json:"start_time" validate:"required,hhmm"`
	EndTime     string `json:"end_time" validate:"required,hhmm"`
	IsAvailable *bool  `json:"is_available"`
}

// SetAvailabilityRequest replaces a provider's weekly rules
type SetAvailabilityRequest struct {
	Rules []AvailabilityRuleRequest `json:"rules" validate:"max=100,dive"`
}

// BlockTimeRequest is the body of POST /api/providers/{id}/blocked-times
type BlockTimeRequest struct {
	Date        string `json:"date" validate:"required,civildate"`
	StartTime   string `json:"start_time" validate:"required_with=EndTime,omitempty,hhmm"`
	EndTime     string `json:"end_time" validate:"required_with=StartTime,omitempty,hhmm"`
	Reason      string `json:"reason" validate:"max=500"`
	IsRecurring bool   `json:"is_recurring"`
}

// Accessors below assume the request passed validation.

func (r CreateBookingRequest) parsedDate() civil.Date {
	d, _ := civil.ParseDate(r.Date)
	return d
}

func (r CreateBookingRequest) parsedTime() entities.TimeOfDay {
	return entities.MustParseTimeOfDay(r.Time)
}

func (r RescheduleRequest) parsedDate() civil.Date {
	d, _ := civil.ParseDate(r.Date)
	return d
}

func (r RescheduleRequest) parsedTime() entities.TimeOfDay {
	return entities.MustParseTimeOfDay(r.Time)
}

func (r SetAvailabilityRequest) toRules() []*entities.AvailabilityRule {
	rules := make([]*entities.AvailabilityRule, 0, len(r.Rules))
	for _, rr := range r.Rules {
		available := true
		if rr.IsAvailable != nil {
			available = *rr.IsAvailable
		}
		rules = append(rules, &entities.AvailabilityRule{
			DayOfWeek:   time.Weekday(*rr.DayOfWeek),
			StartTime:   entities.MustParseTimeOfDay(rr.StartTime),
			EndTime:     entities.MustParseTimeOfDay(rr.EndTime),
			IsAvailable: available,
		})
	}
	return rules
}

func (r BlockTimeRequest) toBlockedTime(providerID string) *entities.BlockedTime {
	d, _ := civil.ParseDate(r.Date)
	block := &entities.BlockedTime{
		ProviderID:  providerID,
		Date:        d,
		Reason:      r.Reason,
		IsRecurring: r.IsRecurring,
	}
	if r.StartTime != "" && r.EndTime != "" {
		start := entities.MustParseTimeOfDay(r.StartTime)
		end := entities.MustParseTimeOfDay(r.EndTime)
		block.StartTime = &start
		block.EndTime = &end
	}
	return block
}
