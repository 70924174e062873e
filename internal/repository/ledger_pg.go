package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

// PGCapacityLedger is the only writer of events.available_capacity. Every
// method is a single guarded UPDATE, so it composes with the caller's
// transaction and never does read-modify-write.
type PGCapacityLedger struct{}

// Reserve debits n seats and returns what is left. Cancelled events take no
// reservations.
func (PGCapacityLedger) Reserve(ctx context.Context, q Querier, eventID string, n int) (int, error) {
	if n < 1 {
		return 0, domain.Validationf("number of tickets must be at least 1")
	}

	var available int
	err := q.QueryRow(ctx, `UPDATE events SET available_capacity = available_capacity - $2, updated_at = now()
		WHERE id = $1 AND available_capacity >= $2 AND cancelled_at IS NULL
		RETURNING available_capacity`, eventID, n).Scan(&available)
	if err == nil {
		return available, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("reserve capacity: %w", err)
	}

	remaining, cancelled, err := capacityOf(ctx, q, eventID)
	if err != nil {
		return 0, err
	}
	if cancelled {
		return remaining, domain.InvalidStatef("event %s has been cancelled", eventID)
	}
	return remaining, domain.CapacityExceeded(remaining, n)
}

// Release credits n seats back. It refuses to push available above total.
func (PGCapacityLedger) Release(ctx context.Context, q Querier, eventID string, n int) (int, error) {
	if n < 1 {
		return 0, domain.Validationf("number of tickets must be at least 1")
	}

	var available int
	err := q.QueryRow(ctx, `UPDATE events SET available_capacity = available_capacity + $2, updated_at = now()
		WHERE id = $1 AND available_capacity + $2 <= total_capacity
		RETURNING available_capacity`, eventID, n).Scan(&available)
	if err == nil {
		return available, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("release capacity: %w", err)
	}

	if _, _, err := capacityOf(ctx, q, eventID); err != nil {
		return 0, err
	}
	return 0, domain.InvalidStatef("releasing %d seats would exceed the capacity of event %s", n, eventID)
}

// Resize changes total capacity by a delta, keeping booked seats intact.
func (PGCapacityLedger) Resize(ctx context.Context, q Querier, eventID string, total int) (*domain.Event, error) {
	if total < 1 {
		return nil, domain.Validationf("total capacity must be at least 1")
	}

	row := q.QueryRow(ctx, `UPDATE events SET
			available_capacity = available_capacity + ($2 - total_capacity),
			total_capacity = $2,
			updated_at = now()
		WHERE id = $1 AND total_capacity - available_capacity <= $2
		RETURNING `+eventColumns, eventID, total)
	e, err := scanEvent(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resize capacity: %w", err)
	}

	current, err := getEvent(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	return nil, domain.Validationf("capacity cannot be lower than the %d tickets already booked", current.BookedCapacity())
}

func capacityOf(ctx context.Context, q Querier, eventID string) (available int, cancelled bool, err error) {
	err = q.QueryRow(ctx, `SELECT available_capacity, cancelled_at IS NOT NULL FROM events WHERE id = $1`, eventID).
		Scan(&available, &cancelled)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, domain.NotFoundf("event %s not found", eventID)
	}
	if err != nil {
		return 0, false, fmt.Errorf("read capacity: %w", err)
	}
	return available, cancelled, nil
}
