package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS businesses (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL,
		time_zone           TEXT NOT NULL,
		granularity_minutes INT  NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS services (
		business_id    TEXT NOT NULL REFERENCES businesses(id),
		id             TEXT NOT NULL,
		name           TEXT NOT NULL,
		duration_minutes INT NOT NULL,
		price_currency TEXT,
		price_amount   TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (business_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS staff (
		business_id TEXT NOT NULL REFERENCES businesses(id),
		id          TEXT NOT NULL,
		name        TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (business_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		business_id TEXT NOT NULL REFERENCES businesses(id),
		id          TEXT NOT NULL,
		name        TEXT NOT NULL,
		phone       TEXT,
		email       TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (business_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS availability_rules (
		business_id  TEXT NOT NULL REFERENCES businesses(id),
		staff_id     TEXT NOT NULL DEFAULT '',
		day_of_week  INT  NOT NULL,
		start_minute INT  NOT NULL,
		end_minute   INT  NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (business_id, staff_id, day_of_week)
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		seq         BIGSERIAL,
		business_id TEXT NOT NULL REFERENCES businesses(id),
		id          TEXT NOT NULL,
		service_id  TEXT NOT NULL,
		staff_id    TEXT,
		client_id   TEXT NOT NULL,
		start_time  TIMESTAMPTZ NOT NULL,
		end_time    TIMESTAMPTZ NOT NULL,
		status      TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (business_id, id),
		CHECK (start_time < end_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_occupancy
		ON appointments (business_id, staff_id, start_time)
		WHERE status = 'scheduled'`,
	`CREATE TABLE IF NOT EXISTS event_logs (
		id             BIGSERIAL PRIMARY KEY,
		event_type     TEXT NOT NULL,
		business_id    TEXT NOT NULL,
		appointment_id TEXT,
		payload        JSONB,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the schema if it does not exist yet. Statements are
// idempotent so startup can always run them.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
