package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

type BookingRepository interface {
	CreatePending(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Booking, error)
	ListByEvent(ctx context.Context, eventID string, statuses ...domain.BookingStatus) ([]domain.Booking, error)
	// Confirm reserves capacity, stores the tickets and flips the booking to
	// confirmed in one transaction.
	Confirm(ctx context.Context, bookingID string, tickets []domain.Ticket) (*domain.Booking, error)
	// Cancel moves a booking in status from to cancelled, releasing capacity
	// when it was confirmed.
	Cancel(ctx context.Context, bookingID string, from domain.BookingStatus, reason string) (*domain.Booking, error)
	LapsePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error)
	ScanTicket(ctx context.Context, eventID, ticketID string, at time.Time) (*domain.Admission, error)
}

const (
	bookingColumns = `id, user_id, user_email, event_id, number_of_tickets, status, total_price_cents, cancel_reason, created_at, updated_at`
	ticketColumns  = `unique_id, booking_id, event_id, payload, qr_code_data_url, status, scanned_at, created_at`
)

type PGBookingRepository struct {
	db     DB
	ledger PGCapacityLedger
}

func NewBookingRepository(db DB) BookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) CreatePending(ctx context.Context, booking *domain.Booking) error {
	booking.Status = domain.BookingStatusPending
	err := r.db.QueryRow(ctx, `INSERT INTO bookings (id, user_id, user_email, event_id, number_of_tickets, status, total_price_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		booking.ID, booking.UserID, booking.UserEmail, booking.EventID, booking.NumberOfTickets, booking.Status, booking.TotalPriceCents).
		Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := getBooking(ctx, r.db, id, false)
	if err != nil {
		return nil, err
	}
	if err := attachTickets(ctx, r.db, []*domain.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *PGBookingRepository) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PGBookingRepository) ListByEvent(ctx context.Context, eventID string, statuses ...domain.BookingStatus) ([]domain.Booking, error) {
	if len(statuses) == 0 {
		return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE event_id = $1 ORDER BY created_at`, eventID)
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE event_id = $1 AND status = ANY($2) ORDER BY created_at`, eventID, names)
}

func (r *PGBookingRepository) Confirm(ctx context.Context, bookingID string, tickets []domain.Ticket) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := getBooking(ctx, tx, bookingID, true)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanTransitionTo(domain.BookingStatusConfirmed) {
		return nil, domain.InvalidStatef("booking is %s and cannot be confirmed", b.Status)
	}
	if len(tickets) != b.NumberOfTickets {
		return nil, domain.Validationf("booking needs %d tickets, got %d", b.NumberOfTickets, len(tickets))
	}

	if _, err := r.ledger.Reserve(ctx, tx, b.EventID, b.NumberOfTickets); err != nil {
		return nil, err
	}

	rows := make([][]any, len(tickets))
	for i, t := range tickets {
		rows[i] = []any{t.UniqueID, b.ID, b.EventID, t.Payload, t.QRCodeDataURL, string(domain.TicketStatusActive), t.CreatedAt}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tickets"},
		[]string{"unique_id", "booking_id", "event_id", "payload", "qr_code_data_url", "status", "created_at"},
		pgx.CopyFromRows(rows)); err != nil {
		return nil, fmt.Errorf("insert tickets: %w", err)
	}

	if err := tx.QueryRow(ctx, `UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`,
		b.ID, domain.BookingStatusConfirmed).Scan(&b.UpdatedAt); err != nil {
		return nil, fmt.Errorf("confirm booking: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	b.Status = domain.BookingStatusConfirmed
	b.Tickets = make([]domain.Ticket, len(tickets))
	for i, t := range tickets {
		t.BookingID, t.EventID, t.Status = b.ID, b.EventID, domain.TicketStatusActive
		b.Tickets[i] = t
	}
	return b, nil
}

func (r *PGBookingRepository) Cancel(ctx context.Context, bookingID string, from domain.BookingStatus, reason string) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := getBooking(ctx, tx, bookingID, true)
	if err != nil {
		return nil, err
	}
	if b.Status != from {
		return nil, cancelStateError(b.Status, from)
	}
	if from == domain.BookingStatusConfirmed {
		if _, err := r.ledger.Release(ctx, tx, b.EventID, b.NumberOfTickets); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE tickets SET status = $2 WHERE booking_id = $1 AND status <> $2`,
		b.ID, domain.TicketStatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel tickets: %w", err)
	}
	if err := tx.QueryRow(ctx, `UPDATE bookings SET status = $2, cancel_reason = $3, updated_at = now() WHERE id = $1 RETURNING updated_at`,
		b.ID, domain.BookingStatusCancelled, reason).Scan(&b.UpdatedAt); err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	b.Status = domain.BookingStatusCancelled
	b.CancelReason = reason

	if err := attachTickets(ctx, tx, []*domain.Booking{b}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *PGBookingRepository) LapsePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `UPDATE bookings SET status = $1, cancel_reason = $2, updated_at = now()
		WHERE status = $3 AND created_at <= $4
		RETURNING `+bookingColumns,
		domain.BookingStatusCancelled, domain.CancelReasonLapsed, domain.BookingStatusPending, deadline)
	if err != nil {
		return nil, fmt.Errorf("lapse bookings: %w", err)
	}
	defer rows.Close()

	var lapsed []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		lapsed = append(lapsed, *b)
	}
	return lapsed, rows.Err()
}

func (r *PGBookingRepository) ScanTicket(ctx context.Context, eventID, ticketID string, at time.Time) (*domain.Admission, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var (
		adm           domain.Admission
		bookingStatus domain.BookingStatus
	)
	row := tx.QueryRow(ctx, `SELECT t.unique_id, t.booking_id, t.event_id, t.payload, t.qr_code_data_url, t.status, t.scanned_at, t.created_at,
			b.user_id, b.user_email, b.status
		FROM tickets t JOIN bookings b ON b.id = t.booking_id
		WHERE t.unique_id = $1 AND t.event_id = $2
		FOR UPDATE OF t`, ticketID, eventID)
	t := &adm.Ticket
	err = row.Scan(&t.UniqueID, &t.BookingID, &t.EventID, &t.Payload, &t.QRCodeDataURL, &t.Status, &t.ScannedAt, &t.CreatedAt,
		&adm.UserID, &adm.UserEmail, &bookingStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundf("ticket %s not found for this event", ticketID)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	adm.BookingID, adm.EventID = t.BookingID, t.EventID

	if bookingStatus == domain.BookingStatusCancelled && t.Status != domain.TicketStatusScanned {
		return nil, domain.TicketCancelled()
	}
	if err := t.Scan(at); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE tickets SET status = $2, scanned_at = $3 WHERE unique_id = $1`,
		t.UniqueID, t.Status, t.ScannedAt); err != nil {
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &adm, nil
}

func (r *PGBookingRepository) list(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*domain.Booking, len(bookings))
	for i := range bookings {
		ptrs[i] = &bookings[i]
	}
	if err := attachTickets(ctx, r.db, ptrs); err != nil {
		return nil, err
	}
	return bookings, nil
}

func cancelStateError(current, from domain.BookingStatus) error {
	switch {
	case current == domain.BookingStatusCancelled:
		return domain.InvalidStatef("booking is already cancelled")
	case from == domain.BookingStatusPending:
		return domain.InvalidStatef("only pending bookings can be withdrawn, this one is %s", current)
	default:
		return domain.InvalidStatef("only confirmed bookings can be cancelled, this one is %s", current)
	}
}

func getBooking(ctx context.Context, q Querier, id string, forUpdate bool) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundf("booking %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.UserID, &b.UserEmail, &b.EventID, &b.NumberOfTickets, &b.Status,
		&b.TotalPriceCents, &b.CancelReason, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func attachTickets(ctx context.Context, q Querier, bookings []*domain.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]string, len(bookings))
	byID := make(map[string]*domain.Booking, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
		byID[b.ID] = b
		b.Tickets = nil
	}

	rows, err := q.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE booking_id = ANY($1) ORDER BY created_at, unique_id`, ids)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.UniqueID, &t.BookingID, &t.EventID, &t.Payload, &t.QRCodeDataURL, &t.Status, &t.ScannedAt, &t.CreatedAt); err != nil {
			return err
		}
		if b, ok := byID[t.BookingID]; ok {
			b.Tickets = append(b.Tickets, t)
		}
	}
	return rows.Err()
}

var _ BookingRepository = (*PGBookingRepository)(nil)
