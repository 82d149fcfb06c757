package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// schemaDDL is idempotent: safe to run on every startup.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
    user_id    TEXT PRIMARY KEY,
    email      TEXT NOT NULL,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    event_id   TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS orders (
    order_id  TEXT PRIMARY KEY,
    user_id   TEXT NOT NULL,
    amount    NUMERIC(18,2) NOT NULL,
    status    TEXT NOT NULL,
    placed_at TIMESTAMPTZ NOT NULL,
    event_id  TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id);
CREATE INDEX IF NOT EXISTS idx_orders_placed_at ON orders (placed_at DESC);

CREATE TABLE IF NOT EXISTS payments (
    payment_id TEXT PRIMARY KEY,
    order_id   TEXT NOT NULL,
    amount     NUMERIC(18,2) NOT NULL,
    status     TEXT NOT NULL,
    settled_at TIMESTAMPTZ NOT NULL,
    event_id   TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_payments_order_id ON payments (order_id);

CREATE TABLE IF NOT EXISTS inventory (
    sku              TEXT PRIMARY KEY,
    quantity         INTEGER NOT NULL,
    last_adjusted_at TIMESTAMPTZ NOT NULL,
    event_id         TEXT NOT NULL
);
`

// EnsureSchema creates the projection tables if they do not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("exec schema ddl: %w", err)
	}
	return nil
}

// EnsureSchemaWithRetry retries schema creation with a fixed backoff.
// Exhausting the budget is fatal to process startup; the caller should
// treat the returned error as terminal.
func EnsureSchemaWithRetry(ctx context.Context, db DBTX, attempts int, delay time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := EnsureSchema(ctx, db); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("attempts", attempts).
				Msg("schema init failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		log.Info().Msg("database schema initialized")
		return nil
	}
	return fmt.Errorf("initialize schema after %d attempts: %w", attempts, lastErr)
}
