package entities

import (
	"time"

	"cloud.google.com/go/civil"
)

// Provider offers services and owns availability
type Provider struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Service is a bookable offering of a provider
type Service struct {
	ID              string `json:"id" db:"id"`
	ProviderID      string `json:"provider_id" db:"provider_id"`
	Name            string `json:"name" db:"name"`
	DurationMinutes int    `json:"duration_minutes" db:"duration_minutes"`
	// Price is in minor currency units
	Price    int64 `json:"price" db:"price"`
	IsActive bool  `json:"is_active" db:"is_active"`
}

// Slot is a derived open booking opportunity. It is never persisted.
type Slot struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// DatedSlots pairs slots with the date they belong to
type DatedSlots struct {
	ProviderID string     `json:"provider_id"`
	ServiceID  string     `json:"service_id,omitempty"`
	Date       civil.Date `json:"date"`
	Slots      []Slot     `json:"slots"`
}
