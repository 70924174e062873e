package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from BookingStatus
		to   BookingStatus
		ok   bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusPending, false},
		{BookingStatusConfirmed, BookingStatusConfirmed, false},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusCancelled, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusCancelled, false},
		{BookingStatusPending, BookingStatusPending, false},
		{BookingStatus("PENDING"), BookingStatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestBooking_TransitionTo_CancelCascadesToTickets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := &Booking{
		ID:     "b-1",
		Status: BookingStatusConfirmed,
		Tickets: []Ticket{
			{UniqueID: "t-1", Status: TicketStatusActive},
			{UniqueID: "t-2", Status: TicketStatusActive},
		},
	}

	require.NoError(t, b.TransitionTo(BookingStatusCancelled, now))

	assert.Equal(t, BookingStatusCancelled, b.Status)
	assert.Equal(t, now, b.UpdatedAt)
	for _, ticket := range b.Tickets {
		assert.Equal(t, TicketStatusCancelled, ticket.Status)
	}
	assert.Empty(t, b.AdmissibleTickets())
}

func TestBooking_TransitionTo_CancelledIsTerminal(t *testing.T) {
	b := &Booking{ID: "b-1", Status: BookingStatusCancelled}

	for _, next := range []BookingStatus{BookingStatusConfirmed, BookingStatusPending, BookingStatusCancelled} {
		err := b.TransitionTo(next, time.Now())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidState))
		assert.Equal(t, BookingStatusCancelled, b.Status)
	}
}

func TestBooking_Clone(t *testing.T) {
	at := time.Now()
	b := Booking{ID: "b-1", Tickets: []Ticket{{UniqueID: "t-1", ScannedAt: &at}}}

	c := b.Clone()
	c.Tickets[0].UniqueID = "changed"
	*c.Tickets[0].ScannedAt = at.Add(time.Hour)

	assert.Equal(t, "t-1", b.Tickets[0].UniqueID)
	assert.Equal(t, at, *b.Tickets[0].ScannedAt)
}

func TestBooking_AdmissibleTickets(t *testing.T) {
	b := &Booking{Tickets: []Ticket{
		{UniqueID: "t-1", Status: TicketStatusActive},
		{UniqueID: "t-2", Status: TicketStatusScanned},
		{UniqueID: "t-3", Status: TicketStatusCancelled},
	}}

	got := b.AdmissibleTickets()

	require.Len(t, got, 2)
	assert.Equal(t, "t-1", got[0].UniqueID)
	assert.Equal(t, "t-2", got[1].UniqueID)
}

func TestTicket_Scan(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)

	ticket := &Ticket{UniqueID: "t-1", Status: TicketStatusActive}
	require.NoError(t, ticket.Scan(now))
	assert.Equal(t, TicketStatusScanned, ticket.Status)
	require.NotNil(t, ticket.ScannedAt)
	assert.Equal(t, now, *ticket.ScannedAt)

	err := ticket.Scan(now.Add(time.Minute))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyScanned))
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Contains(t, err.Error(), "2026-03-01T18:30:00Z")
	assert.Equal(t, now, *ticket.ScannedAt)

	cancelled := &Ticket{UniqueID: "t-2", Status: TicketStatusCancelled}
	err = cancelled.Scan(now)
	assert.True(t, errors.Is(err, ErrTicketCancelled))
	assert.Nil(t, cancelled.ScannedAt)
}

func TestEvent_Validate(t *testing.T) {
	valid := Event{Name: "Jazz night", TotalCapacity: 10, AvailableCapacity: 10, PriceCents: 1500}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, 0, valid.BookedCapacity())

	tests := []struct {
		name   string
		mutate func(e *Event)
	}{
		{"empty name", func(e *Event) { e.Name = "  " }},
		{"zero capacity", func(e *Event) { e.TotalCapacity = 0; e.AvailableCapacity = 0 }},
		{"available above total", func(e *Event) { e.AvailableCapacity = 11 }},
		{"negative available", func(e *Event) { e.AvailableCapacity = -1 }},
		{"negative price", func(e *Event) { e.PriceCents = -1 }},
		{"ends before start", func(e *Event) {
			e.StartsAt = time.Now()
			e.EndsAt = e.StartsAt.Add(-time.Hour)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestErrors_Messages(t *testing.T) {
	err := CapacityExceeded(3, 7)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.Equal(t, 3, err.Remaining)
	assert.Contains(t, err.Error(), "3 remaining")

	assert.Equal(t, "event is sold out", CapacityExceeded(0, 1).Error())

	otpErr := InvalidOTP(2)
	assert.Equal(t, "invalid OTP. Attempts left: 2", otpErr.Error())

	wrapped := errors.Join(errors.New("context"), InvalidOTP(1))
	de, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 1, de.AttemptsLeft)
}
