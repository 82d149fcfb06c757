// Package store materializes business events into their latest-known
// entity projections. Every write is an idempotent merge: rows are keyed
// by the business key, and the event id that last wrote a row is kept as
// a secondary identity used purely for duplicate-delivery suppression.
package store

import (
	"context"
	"errors"

	"github.com/streamhouse/eventpipe/internal/events"
)

// ErrNotFound is returned by read operations when no row matches.
var ErrNotFound = errors.New("not found")

// Store applies one decoded event to the relational projections.
//
// Applying the same eventId twice produces no observable change beyond
// the first application. Applying two different eventIds for the same
// business key reflects the most recently processed one; no event-time
// ordering is enforced.
type Store interface {
	Apply(ctx context.Context, ev events.Event) error
}

// Reader is the read side consumed by the query service.
type Reader interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	RecentOrdersByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	PaymentForOrder(ctx context.Context, orderID string) (*Payment, error)
}
