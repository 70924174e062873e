package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvent(t *testing.T, s *MemoryStore, capacity int) *domain.Event {
	t.Helper()
	e := &domain.Event{
		ID:                uuid.NewString(),
		OrganizerID:       "org-1",
		Name:              "Rooftop concert",
		StartsAt:          time.Now().Add(24 * time.Hour),
		PriceCents:        2500,
		TotalCapacity:     capacity,
		AvailableCapacity: capacity,
	}
	require.NoError(t, s.Events().Create(context.Background(), e))
	return e
}

func seedPending(t *testing.T, s *MemoryStore, eventID, userID string, n int) *domain.Booking {
	t.Helper()
	b := &domain.Booking{ID: uuid.NewString(), UserID: userID, UserEmail: userID + "@example.com", EventID: eventID, NumberOfTickets: n}
	require.NoError(t, s.Bookings().CreatePending(context.Background(), b))
	return b
}

func makeTickets(n int) []domain.Ticket {
	tickets := make([]domain.Ticket, n)
	for i := range tickets {
		tickets[i] = domain.Ticket{UniqueID: uuid.NewString(), Payload: fmt.Sprintf("payload-%d", i)}
	}
	return tickets
}

func TestMemoryStore_ConfirmAndCancel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	event := seedEvent(t, s, 10)
	pending := seedPending(t, s, event.ID, "user-1", 4)

	confirmed, err := s.Bookings().Confirm(ctx, pending.ID, makeTickets(4))
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, confirmed.Status)
	assert.Len(t, confirmed.AdmissibleTickets(), 4)

	e, err := s.Events().GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, e.AvailableCapacity)

	_, err = s.Bookings().Confirm(ctx, pending.ID, makeTickets(4))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	cancelled, err := s.Bookings().Cancel(ctx, pending.ID, domain.BookingStatusConfirmed, domain.CancelReasonUser)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)
	for _, tk := range cancelled.Tickets {
		assert.Equal(t, domain.TicketStatusCancelled, tk.Status)
	}

	e, _ = s.Events().GetByID(ctx, event.ID)
	assert.Equal(t, 10, e.AvailableCapacity)

	_, err = s.Bookings().Cancel(ctx, pending.ID, domain.BookingStatusConfirmed, domain.CancelReasonUser)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	e, _ = s.Events().GetByID(ctx, event.ID)
	assert.Equal(t, 10, e.AvailableCapacity)
}

func TestMemoryStore_ConfirmCapacityExceeded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	event := seedEvent(t, s, 6)
	pending := seedPending(t, s, event.ID, "user-1", 7)

	_, err := s.Bookings().Confirm(ctx, pending.ID, makeTickets(7))
	require.Error(t, err)
	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, 6, de.Remaining)

	b, err := s.Bookings().GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.Empty(t, b.Tickets)

	e, _ := s.Events().GetByID(ctx, event.ID)
	assert.Equal(t, 6, e.AvailableCapacity)
}

func TestMemoryStore_ConfirmRejectsTicketCountMismatch(t *testing.T) {
	s := NewMemoryStore()
	event := seedEvent(t, s, 5)
	pending := seedPending(t, s, event.ID, "user-1", 2)

	_, err := s.Bookings().Confirm(context.Background(), pending.ID, makeTickets(1))
	assert.ErrorIs(t, err, domain.ErrValidation)

	e, _ := s.Events().GetByID(context.Background(), event.ID)
	assert.Equal(t, 5, e.AvailableCapacity)
}

func TestMemoryStore_ConcurrentConfirmationsNeverOversell(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	event := seedEvent(t, s, 10)

	const attempts = 25
	bookings := make([]*domain.Booking, attempts)
	for i := range bookings {
		bookings[i] = seedPending(t, s, event.ID, fmt.Sprintf("user-%d", i), 1+i%3)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		booked int
	)
	for _, b := range bookings {
		wg.Add(1)
		go func(b *domain.Booking) {
			defer wg.Done()
			_, err := s.Bookings().Confirm(ctx, b.ID, makeTickets(b.NumberOfTickets))
			if err == nil {
				mu.Lock()
				booked += b.NumberOfTickets
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, domain.ErrCapacityExceeded), err)
		}(b)
	}
	wg.Wait()

	e, err := s.Events().GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, e.AvailableCapacity, 0)
	assert.Equal(t, e.TotalCapacity, e.AvailableCapacity+booked)

	confirmed, err := s.Bookings().ListByEvent(ctx, event.ID, domain.BookingStatusConfirmed)
	require.NoError(t, err)
	ids := make(map[string]struct{})
	for _, b := range confirmed {
		for _, tk := range b.Tickets {
			ids[tk.UniqueID] = struct{}{}
		}
	}
	assert.Len(t, ids, booked)
}

func TestMemoryStore_WithdrawPending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	event := seedEvent(t, s, 3)
	pending := seedPending(t, s, event.ID, "user-1", 2)

	withdrawn, err := s.Bookings().Cancel(ctx, pending.ID, domain.BookingStatusPending, domain.CancelReasonWithdrawn)
	require.NoError(t, err)
	assert.Equal(t, domain.CancelReasonWithdrawn, withdrawn.CancelReason)

	e, _ := s.Events().GetByID(ctx, event.ID)
	assert.Equal(t, 3, e.AvailableCapacity)
}

func TestMemoryStore_LapsePendingBefore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	event := seedEvent(t, s, 10)
	old := seedPending(t, s, event.ID, "user-1", 1)
	confirmed := seedPending(t, s, event.ID, "user-2", 1)
	_, err := s.Bookings().Confirm(ctx, confirmed.ID, makeTickets(1))
	require.NoError(t, err)

	clock = base.Add(40 * time.Minute)
	fresh := seedPending(t, s, event.ID, "user-3", 1)

	lapsed, err := s.Bookings().LapsePendingBefore(ctx, base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	assert.Equal(t, old.ID, lapsed[0].ID)
	assert.Equal(t, domain.CancelReasonLapsed, lapsed[0].CancelReason)

	b, _ := s.Bookings().GetByID(ctx, fresh.ID)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	b, _ = s.Bookings().GetByID(ctx, confirmed.ID)
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)

	e, _ := s.Events().GetByID(ctx, event.ID)
	assert.Equal(t, 9, e.AvailableCapacity)
}

func TestMemoryStore_ScanTicket(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	event := seedEvent(t, s, 5)
	other := seedEvent(t, s, 5)
	pending := seedPending(t, s, event.ID, "user-1", 2)
	tickets := makeTickets(2)
	_, err := s.Bookings().Confirm(ctx, pending.ID, tickets)
	require.NoError(t, err)

	at := time.Date(2026, 6, 2, 19, 0, 0, 0, time.UTC)
	adm, err := s.Bookings().ScanTicket(ctx, event.ID, tickets[0].UniqueID, at)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusScanned, adm.Ticket.Status)
	assert.Equal(t, "user-1", adm.UserID)

	_, err = s.Bookings().ScanTicket(ctx, event.ID, tickets[0].UniqueID, at)
	assert.ErrorIs(t, err, domain.ErrAlreadyScanned)

	_, err = s.Bookings().ScanTicket(ctx, other.ID, tickets[1].UniqueID, at)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Bookings().Cancel(ctx, pending.ID, domain.BookingStatusConfirmed, domain.CancelReasonUser)
	require.NoError(t, err)
	_, err = s.Bookings().ScanTicket(ctx, event.ID, tickets[1].UniqueID, at)
	assert.ErrorIs(t, err, domain.ErrTicketCancelled)
}

func TestMemoryStore_Resize(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	event := seedEvent(t, s, 10)
	pending := seedPending(t, s, event.ID, "user-1", 4)
	_, err := s.Bookings().Confirm(ctx, pending.ID, makeTickets(4))
	require.NoError(t, err)

	e, err := s.Events().Resize(ctx, event.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, e.TotalCapacity)
	assert.Equal(t, 8, e.AvailableCapacity)

	e, err = s.Events().Resize(ctx, event.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, e.AvailableCapacity)

	_, err = s.Events().Resize(ctx, event.ID, 3)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Events().Resize(ctx, "missing", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	event := seedEvent(t, s, 10)

	e, _ := s.Events().GetByID(ctx, event.ID)
	e.AvailableCapacity = 0

	fresh, _ := s.Events().GetByID(ctx, event.ID)
	assert.Equal(t, 10, fresh.AvailableCapacity)
}
