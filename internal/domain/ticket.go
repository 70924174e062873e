package domain

import "time"

type TicketStatus string

const (
	TicketStatusActive    TicketStatus = "active"
	TicketStatusScanned   TicketStatus = "scanned"
	TicketStatusCancelled TicketStatus = "cancelled"
)

type Ticket struct {
	UniqueID      string
	BookingID     string
	EventID       string
	Payload       string
	QRCodeDataURL string
	Status        TicketStatus
	ScannedAt     *time.Time
	CreatedAt     time.Time
}

// Scan admits the ticket. Only an active ticket can be scanned, exactly once.
func (t *Ticket) Scan(at time.Time) error {
	switch t.Status {
	case TicketStatusActive:
		t.Status = TicketStatusScanned
		scannedAt := at
		t.ScannedAt = &scannedAt
		return nil
	case TicketStatusScanned:
		return AlreadyScanned(t.ScannedAt)
	case TicketStatusCancelled:
		return TicketCancelled()
	default:
		return InvalidStatef("ticket %s has unknown status %q", t.UniqueID, t.Status)
	}
}

func (t Ticket) Clone() Ticket {
	if t.ScannedAt != nil {
		at := *t.ScannedAt
		t.ScannedAt = &at
	}
	return t
}

// Admission is a ticket together with the booking it was issued for.
type Admission struct {
	Ticket    Ticket
	BookingID string
	UserID    string
	UserEmail string
	EventID   string
}
