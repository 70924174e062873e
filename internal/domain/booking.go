package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending_confirmation"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

const (
	CancelReasonUser           = "cancelled_by_user"
	CancelReasonWithdrawn      = "withdrawn"
	CancelReasonLapsed         = "lapsed"
	CancelReasonEventCancelled = "event_cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled},
	BookingStatusCancelled: nil,
}

func (s BookingStatus) Valid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Booking struct {
	ID              string
	UserID          string
	UserEmail       string
	EventID         string
	NumberOfTickets int
	Status          BookingStatus
	TotalPriceCents int64
	CancelReason    string
	Tickets         []Ticket
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransitionTo moves the booking to next, cascading cancellation to tickets.
func (b *Booking) TransitionTo(next BookingStatus, at time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return InvalidStatef("booking %s is %s and cannot become %s", b.ID, b.Status, next)
	}
	b.Status = next
	b.UpdatedAt = at
	if next == BookingStatusCancelled {
		for i := range b.Tickets {
			b.Tickets[i].Status = TicketStatusCancelled
		}
	}
	return nil
}

func (b *Booking) OwnedBy(userID string) bool {
	return b.UserID == userID
}

// AdmissibleTickets returns the tickets that still belong to an attendee:
// active ones and those already scanned at the door.
func (b *Booking) AdmissibleTickets() []Ticket {
	admissible := make([]Ticket, 0, len(b.Tickets))
	for _, t := range b.Tickets {
		if t.Status == TicketStatusActive || t.Status == TicketStatusScanned {
			admissible = append(admissible, t)
		}
	}
	return admissible
}

// Clone returns a deep copy, tickets included.
func (b Booking) Clone() Booking {
	if b.Tickets != nil {
		tickets := make([]Ticket, len(b.Tickets))
		for i, t := range b.Tickets {
			tickets[i] = t.Clone()
		}
		b.Tickets = tickets
	}
	return b
}
