package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]domain.Event, error)
	Resize(ctx context.Context, id string, totalCapacity int) (*domain.Event, error)
	// MarkCancelled stamps the event as cancelled. Stamping twice keeps the
	// first time.
	MarkCancelled(ctx context.Context, id string, at time.Time) (*domain.Event, error)
}

const eventColumns = `id, organizer_id, name, description, location, category, starts_at, ends_at, price_cents, total_capacity, available_capacity, created_at, updated_at, cancelled_at`

type PGEventRepository struct {
	db     DB
	ledger PGCapacityLedger
}

func NewEventRepository(db DB) EventRepository {
	return &PGEventRepository{db: db}
}

func (r *PGEventRepository) Create(ctx context.Context, event *domain.Event) error {
	var endsAt *time.Time
	if !event.EndsAt.IsZero() {
		endsAt = &event.EndsAt
	}
	err := r.db.QueryRow(ctx, `INSERT INTO events (id, organizer_id, name, description, location, category, starts_at, ends_at, price_cents, total_capacity, available_capacity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		event.ID, event.OrganizerID, event.Name, event.Description, event.Location, event.Category,
		event.StartsAt, endsAt, event.PriceCents, event.TotalCapacity, event.AvailableCapacity).
		Scan(&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *PGEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	return getEvent(ctx, r.db, id)
}

func (r *PGEventRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE organizer_id = $1 ORDER BY starts_at`, organizerID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (r *PGEventRepository) Resize(ctx context.Context, id string, totalCapacity int) (*domain.Event, error) {
	return r.ledger.Resize(ctx, r.db, id, totalCapacity)
}

func (r *PGEventRepository) MarkCancelled(ctx context.Context, id string, at time.Time) (*domain.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx, `UPDATE events SET cancelled_at = COALESCE(cancelled_at, $2), updated_at = now()
		WHERE id = $1
		RETURNING `+eventColumns, id, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundf("event %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("cancel event: %w", err)
	}
	return e, nil
}

func getEvent(ctx context.Context, q Querier, id string) (*domain.Event, error) {
	e, err := scanEvent(q.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundf("event %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	var endsAt *time.Time
	if err := row.Scan(&e.ID, &e.OrganizerID, &e.Name, &e.Description, &e.Location, &e.Category,
		&e.StartsAt, &endsAt, &e.PriceCents, &e.TotalCapacity, &e.AvailableCapacity, &e.CreatedAt, &e.UpdatedAt, &e.CancelledAt); err != nil {
		return nil, err
	}
	if endsAt != nil {
		e.EndsAt = *endsAt
	}
	return &e, nil
}

var _ EventRepository = (*PGEventRepository)(nil)
