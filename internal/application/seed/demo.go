package seed

import (
	"time"

	"github.com/servicehub/bookingengine/internal/domain/entities"
)

// Provider is one demo provider with its services and weekly opening hours
type Provider struct {
	Provider entities.Provider
	Services []entities.Service
	Hours    []OpenHours
}

// OpenHours is one open interval on a weekday, in HH:MM
type OpenHours struct {
	Day        time.Weekday
	Start, End string
}

// Demo is the catalog loaded by the seed command and by in-memory storage
var Demo = []Provider{
	{
		Provider: entities.Provider{ID: "provider-studio", Name: "North Street Studio", IsActive: true},
		Services: []entities.Service{
			{ID: "service-haircut", Name: "Haircut", DurationMinutes: 30, Price: 2500, IsActive: true},
			{ID: "service-colour", Name: "Colour", DurationMinutes: 90, Price: 8500, IsActive: true},
		},
		Hours: []OpenHours{
			{time.Monday, "09:00", "17:00"}, {time.Tuesday, "09:00", "17:00"}, {time.Wednesday, "09:00", "17:00"},
			{time.Thursday, "09:00", "19:00"}, {time.Friday, "09:00", "17:00"}, {time.Saturday, "10:00", "14:00"},
		},
	},
	{
		Provider: entities.Provider{ID: "provider-physio", Name: "Riverside Physio", IsActive: true},
		Services: []entities.Service{
			{ID: "service-assessment", Name: "Initial assessment", DurationMinutes: 60, Price: 7000, IsActive: true},
			{ID: "service-followup", Name: "Follow-up session", DurationMinutes: 45, Price: 5000, IsActive: true},
		},
		Hours: []OpenHours{
			{time.Monday, "08:00", "12:00"}, {time.Monday, "13:00", "18:00"},
			{time.Wednesday, "08:00", "12:00"}, {time.Wednesday, "13:00", "18:00"},
			{time.Friday, "08:00", "14:00"},
		},
	},
}

// Rules converts the opening hours into availability rules
func (p Provider) Rules() []*entities.AvailabilityRule {
	rules := make([]*entities.AvailabilityRule, 0, len(p.Hours))
	for _, h := range p.Hours {
		rules = append(rules, &entities.AvailabilityRule{
			DayOfWeek:   h.Day,
			StartTime:   entities.MustParseTimeOfDay(h.Start),
			EndTime:     entities.MustParseTimeOfDay(h.End),
			IsAvailable: true,
		})
	}
	return rules
}
