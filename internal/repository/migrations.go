package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		organizer_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ,
		price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
		total_capacity INT NOT NULL CHECK (total_capacity >= 1),
		available_capacity INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT events_capacity_bounds CHECK (available_capacity >= 0 AND available_capacity <= total_capacity)
	)`,
	`ALTER TABLE events ADD COLUMN IF NOT EXISTS cancelled_at TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS events_organizer_idx ON events (organizer_id, starts_at)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		user_email TEXT NOT NULL,
		event_id TEXT NOT NULL REFERENCES events (id),
		number_of_tickets INT NOT NULL CHECK (number_of_tickets >= 1),
		status TEXT NOT NULL CHECK (status IN ('pending_confirmation', 'confirmed', 'cancelled')),
		total_price_cents BIGINT NOT NULL,
		cancel_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_user_idx ON bookings (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS bookings_event_idx ON bookings (event_id, status)`,
	`CREATE INDEX IF NOT EXISTS bookings_pending_idx ON bookings (created_at) WHERE status = 'pending_confirmation'`,
	`CREATE TABLE IF NOT EXISTS tickets (
		unique_id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL REFERENCES bookings (id),
		event_id TEXT NOT NULL REFERENCES events (id),
		payload TEXT NOT NULL,
		qr_code_data_url TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('active', 'scanned', 'cancelled')),
		scanned_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS tickets_booking_idx ON tickets (booking_id)`,
	`CREATE INDEX IF NOT EXISTS tickets_event_idx ON tickets (event_id)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
