package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
)

// MemoryStore keeps events, bookings and tickets in process memory behind a
// single mutex. It backs the "memory" storage driver and the service tests.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[string]*domain.Event
	bookings map[string]*domain.Booking
	tickets  map[string]string // ticket id -> booking id
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string]*domain.Event),
		bookings: make(map[string]*domain.Booking),
		tickets:  make(map[string]string),
		now:      time.Now,
	}
}

// SetClock overrides the time source used for created/updated stamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Events() *MemoryEventRepository {
	return &MemoryEventRepository{store: s}
}

func (s *MemoryStore) Bookings() *MemoryBookingRepository {
	return &MemoryBookingRepository{store: s}
}

// reserve and release are the in-memory capacity ledger. Callers hold s.mu.
func (s *MemoryStore) reserve(eventID string, n int) (int, error) {
	e, ok := s.events[eventID]
	if !ok {
		return 0, domain.NotFoundf("event %s not found", eventID)
	}
	if n < 1 {
		return 0, domain.Validationf("number of tickets must be at least 1")
	}
	if e.Cancelled() {
		return e.AvailableCapacity, domain.InvalidStatef("event %s has been cancelled", eventID)
	}
	if e.AvailableCapacity < n {
		return e.AvailableCapacity, domain.CapacityExceeded(e.AvailableCapacity, n)
	}
	e.AvailableCapacity -= n
	e.UpdatedAt = s.now()
	return e.AvailableCapacity, nil
}

func (s *MemoryStore) release(eventID string, n int) (int, error) {
	e, ok := s.events[eventID]
	if !ok {
		return 0, domain.NotFoundf("event %s not found", eventID)
	}
	if n < 1 {
		return 0, domain.Validationf("number of tickets must be at least 1")
	}
	if e.AvailableCapacity+n > e.TotalCapacity {
		return 0, domain.InvalidStatef("releasing %d seats would exceed the capacity of event %s", n, eventID)
	}
	e.AvailableCapacity += n
	e.UpdatedAt = s.now()
	return e.AvailableCapacity, nil
}

type MemoryEventRepository struct {
	store *MemoryStore
}

func (r *MemoryEventRepository) Create(ctx context.Context, event *domain.Event) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.ID]; exists {
		return domain.InvalidStatef("event %s already exists", event.ID)
	}
	now := s.now()
	event.CreatedAt, event.UpdatedAt = now, now
	stored := *event
	s.events[event.ID] = &stored
	return nil
}

func (r *MemoryEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, domain.NotFoundf("event %s not found", id)
	}
	out := *e
	return &out, nil
}

func (r *MemoryEventRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]domain.Event, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]domain.Event, 0)
	for _, e := range s.events {
		if e.OrganizerID == organizerID {
			events = append(events, *e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	return events, nil
}

func (r *MemoryEventRepository) Resize(ctx context.Context, id string, totalCapacity int) (*domain.Event, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if totalCapacity < 1 {
		return nil, domain.Validationf("total capacity must be at least 1")
	}
	e, ok := s.events[id]
	if !ok {
		return nil, domain.NotFoundf("event %s not found", id)
	}
	if booked := e.BookedCapacity(); totalCapacity < booked {
		return nil, domain.Validationf("capacity cannot be lower than the %d tickets already booked", booked)
	}
	e.AvailableCapacity += totalCapacity - e.TotalCapacity
	e.TotalCapacity = totalCapacity
	e.UpdatedAt = s.now()
	out := *e
	return &out, nil
}

func (r *MemoryEventRepository) MarkCancelled(ctx context.Context, id string, at time.Time) (*domain.Event, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, domain.NotFoundf("event %s not found", id)
	}
	if e.CancelledAt == nil {
		stamp := at
		e.CancelledAt = &stamp
	}
	e.UpdatedAt = s.now()
	out := *e
	return &out, nil
}

type MemoryBookingRepository struct {
	store *MemoryStore
}

func (r *MemoryBookingRepository) CreatePending(ctx context.Context, booking *domain.Booking) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[booking.EventID]; !ok {
		return domain.NotFoundf("event %s not found", booking.EventID)
	}
	if _, exists := s.bookings[booking.ID]; exists {
		return domain.InvalidStatef("booking %s already exists", booking.ID)
	}
	now := s.now()
	booking.Status = domain.BookingStatusPending
	booking.CreatedAt, booking.UpdatedAt = now, now
	stored := booking.Clone()
	s.bookings[booking.ID] = &stored
	return nil
}

func (r *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.NotFoundf("booking %s not found", id)
	}
	out := b.Clone()
	return &out, nil
}

func (r *MemoryBookingRepository) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	bookings := r.filter(func(b *domain.Booking) bool { return b.UserID == userID })
	sort.SliceStable(bookings, func(i, j int) bool { return bookings[i].CreatedAt.After(bookings[j].CreatedAt) })
	return bookings, nil
}

func (r *MemoryBookingRepository) ListByEvent(ctx context.Context, eventID string, statuses ...domain.BookingStatus) ([]domain.Booking, error) {
	bookings := r.filter(func(b *domain.Booking) bool {
		if b.EventID != eventID {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, st := range statuses {
			if b.Status == st {
				return true
			}
		}
		return false
	})
	sort.SliceStable(bookings, func(i, j int) bool { return bookings[i].CreatedAt.Before(bookings[j].CreatedAt) })
	return bookings, nil
}

func (r *MemoryBookingRepository) Confirm(ctx context.Context, bookingID string, tickets []domain.Ticket) (*domain.Booking, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, domain.NotFoundf("booking %s not found", bookingID)
	}
	if !b.Status.CanTransitionTo(domain.BookingStatusConfirmed) {
		return nil, domain.InvalidStatef("booking is %s and cannot be confirmed", b.Status)
	}
	if len(tickets) != b.NumberOfTickets {
		return nil, domain.Validationf("booking needs %d tickets, got %d", b.NumberOfTickets, len(tickets))
	}
	for _, t := range tickets {
		if _, dup := s.tickets[t.UniqueID]; dup {
			return nil, domain.InvalidStatef("ticket id %s is already in use", t.UniqueID)
		}
	}

	if _, err := s.reserve(b.EventID, b.NumberOfTickets); err != nil {
		return nil, err
	}

	b.Tickets = make([]domain.Ticket, len(tickets))
	for i, t := range tickets {
		t.BookingID, t.EventID, t.Status = b.ID, b.EventID, domain.TicketStatusActive
		b.Tickets[i] = t.Clone()
		s.tickets[t.UniqueID] = b.ID
	}
	if err := b.TransitionTo(domain.BookingStatusConfirmed, s.now()); err != nil {
		return nil, err
	}
	out := b.Clone()
	return &out, nil
}

func (r *MemoryBookingRepository) Cancel(ctx context.Context, bookingID string, from domain.BookingStatus, reason string) (*domain.Booking, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, domain.NotFoundf("booking %s not found", bookingID)
	}
	if b.Status != from {
		return nil, cancelStateError(b.Status, from)
	}
	if from == domain.BookingStatusConfirmed {
		if _, err := s.release(b.EventID, b.NumberOfTickets); err != nil {
			return nil, err
		}
	}
	if err := b.TransitionTo(domain.BookingStatusCancelled, s.now()); err != nil {
		return nil, err
	}
	b.CancelReason = reason
	out := b.Clone()
	return &out, nil
}

func (r *MemoryBookingRepository) LapsePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var lapsed []domain.Booking
	for _, b := range s.bookings {
		if b.Status != domain.BookingStatusPending || b.CreatedAt.After(deadline) {
			continue
		}
		if err := b.TransitionTo(domain.BookingStatusCancelled, s.now()); err != nil {
			return nil, err
		}
		b.CancelReason = domain.CancelReasonLapsed
		lapsed = append(lapsed, b.Clone())
	}
	sort.Slice(lapsed, func(i, j int) bool { return lapsed[i].CreatedAt.Before(lapsed[j].CreatedAt) })
	return lapsed, nil
}

func (r *MemoryBookingRepository) ScanTicket(ctx context.Context, eventID, ticketID string, at time.Time) (*domain.Admission, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	bookingID, ok := s.tickets[ticketID]
	if !ok {
		return nil, domain.NotFoundf("ticket %s not found for this event", ticketID)
	}
	b := s.bookings[bookingID]
	if b.EventID != eventID {
		return nil, domain.NotFoundf("ticket %s not found for this event", ticketID)
	}
	for i := range b.Tickets {
		t := &b.Tickets[i]
		if t.UniqueID != ticketID {
			continue
		}
		if err := t.Scan(at); err != nil {
			return nil, err
		}
		return &domain.Admission{
			Ticket:    t.Clone(),
			BookingID: b.ID,
			UserID:    b.UserID,
			UserEmail: b.UserEmail,
			EventID:   b.EventID,
		}, nil
	}
	return nil, domain.NotFoundf("ticket %s not found for this event", ticketID)
}

func (r *MemoryBookingRepository) filter(keep func(b *domain.Booking) bool) []domain.Booking {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	return out
}

var (
	_ EventRepository   = (*MemoryEventRepository)(nil)
	_ BookingRepository = (*MemoryBookingRepository)(nil)
)
