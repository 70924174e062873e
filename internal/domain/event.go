package domain

import (
	"strings"
	"time"
)

type Event struct {
	ID                string
	OrganizerID       string
	Name              string
	Description       string
	Location          string
	Category          string
	StartsAt          time.Time
	EndsAt            time.Time
	PriceCents        int64
	TotalCapacity     int
	AvailableCapacity int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CancelledAt       *time.Time
}

func (e *Event) Cancelled() bool {
	return e.CancelledAt != nil
}

func (e *Event) BookedCapacity() int {
	return e.TotalCapacity - e.AvailableCapacity
}

func (e *Event) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return Validationf("event name is required")
	}
	if e.TotalCapacity < 1 {
		return Validationf("total capacity must be at least 1")
	}
	if e.AvailableCapacity < 0 || e.AvailableCapacity > e.TotalCapacity {
		return Validationf("available capacity must be between 0 and %d", e.TotalCapacity)
	}
	if e.PriceCents < 0 {
		return Validationf("price cannot be negative")
	}
	if !e.EndsAt.IsZero() && e.EndsAt.Before(e.StartsAt) {
		return Validationf("event cannot end before it starts")
	}
	return nil
}
