package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/streamhouse/eventpipe/internal/events"
)

// Repository is the Postgres-backed Store and Reader.
type Repository struct {
	db DBTX
}

func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Apply dispatches one decoded event to its projection. Each variant is
// a conditional merge: redelivery of an already-applied event id is a
// no-op, otherwise the row for the business key is inserted or
// overwritten by processing order.
func (r *Repository) Apply(ctx context.Context, ev events.Event) error {
	switch p := ev.Payload.(type) {
	case events.UserCreated:
		return r.applyUserCreated(ctx, ev.Envelope, p)
	case events.OrderPlaced:
		return r.applyOrderPlaced(ctx, ev.Envelope, p)
	case events.PaymentSettled:
		return r.applyPaymentSettled(ctx, ev.Envelope, p)
	case events.InventoryAdjusted:
		return r.applyInventoryAdjusted(ctx, ev.Envelope, p)
	default:
		return fmt.Errorf("%w: %T", events.ErrUnsupportedEventType, ev.Payload)
	}
}

// eventApplied reports whether any row in the relation was already
// written by this event id.
func (r *Repository) eventApplied(ctx context.Context, table, eventID string) (bool, error) {
	var applied bool
	sql := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE event_id = $1)", table)
	if err := r.db.QueryRow(ctx, sql, eventID).Scan(&applied); err != nil {
		return false, fmt.Errorf("check event id in %s: %w", table, err)
	}
	return applied, nil
}

const upsertUserSQL = `
INSERT INTO users (user_id, email, name, created_at, event_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE
SET email = EXCLUDED.email, name = EXCLUDED.name, event_id = EXCLUDED.event_id`

func (r *Repository) applyUserCreated(ctx context.Context, env events.Envelope, p events.UserCreated) error {
	applied, err := r.eventApplied(ctx, "users", env.EventID)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	if _, err := r.db.Exec(ctx, upsertUserSQL, p.UserID, p.Email, p.Name, env.Timestamp, env.EventID); err != nil {
		return fmt.Errorf("upsert user %s: %w", p.UserID, err)
	}
	return nil
}

const upsertOrderSQL = `
INSERT INTO orders (order_id, user_id, amount, status, placed_at, event_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (order_id) DO UPDATE
SET amount = EXCLUDED.amount, status = EXCLUDED.status, event_id = EXCLUDED.event_id`

func (r *Repository) applyOrderPlaced(ctx context.Context, env events.Envelope, p events.OrderPlaced) error {
	applied, err := r.eventApplied(ctx, "orders", env.EventID)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	if _, err := r.db.Exec(ctx, upsertOrderSQL, p.OrderID, p.UserID, p.Amount.String(), p.Status, env.Timestamp, env.EventID); err != nil {
		return fmt.Errorf("upsert order %s: %w", p.OrderID, err)
	}
	return nil
}

const upsertPaymentSQL = `
INSERT INTO payments (payment_id, order_id, amount, status, settled_at, event_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (payment_id) DO UPDATE
SET amount = EXCLUDED.amount, status = EXCLUDED.status, event_id = EXCLUDED.event_id`

func (r *Repository) applyPaymentSettled(ctx context.Context, env events.Envelope, p events.PaymentSettled) error {
	applied, err := r.eventApplied(ctx, "payments", env.EventID)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	if _, err := r.db.Exec(ctx, upsertPaymentSQL, p.PaymentID, p.OrderID, p.Amount.String(), p.Status, env.Timestamp, env.EventID); err != nil {
		return fmt.Errorf("upsert payment %s: %w", p.PaymentID, err)
	}
	return nil
}

const upsertInventorySQL = `
INSERT INTO inventory (sku, quantity, last_adjusted_at, event_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (sku) DO UPDATE
SET quantity = EXCLUDED.quantity, last_adjusted_at = EXCLUDED.last_adjusted_at, event_id = EXCLUDED.event_id`

func (r *Repository) applyInventoryAdjusted(ctx context.Context, env events.Envelope, p events.InventoryAdjusted) error {
	applied, err := r.eventApplied(ctx, "inventory", env.EventID)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	if _, err := r.db.Exec(ctx, upsertInventorySQL, p.Sku, p.NewQuantity, env.Timestamp, env.EventID); err != nil {
		return fmt.Errorf("upsert inventory %s: %w", p.Sku, err)
	}
	return nil
}

const getUserSQL = `
SELECT user_id, email, name, created_at, event_id
FROM users
WHERE user_id = $1`

func (r *Repository) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, getUserSQL, userID).
		Scan(&u.UserID, &u.Email, &u.Name, &u.CreatedAt, &u.EventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &u, nil
}

const recentOrdersSQL = `
SELECT order_id, user_id, amount::text, status, placed_at, event_id
FROM orders
WHERE user_id = $1
ORDER BY placed_at DESC
LIMIT $2`

func (r *Repository) RecentOrdersByUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	rows, err := r.db.Query(ctx, recentOrdersSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.OrderID, &o.UserID, &o.Amount, &o.Status, &o.PlacedAt, &o.EventID); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const getOrderSQL = `
SELECT order_id, user_id, amount::text, status, placed_at, event_id
FROM orders
WHERE order_id = $1`

func (r *Repository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := r.db.QueryRow(ctx, getOrderSQL, orderID).
		Scan(&o.OrderID, &o.UserID, &o.Amount, &o.Status, &o.PlacedAt, &o.EventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return &o, nil
}

const paymentForOrderSQL = `
SELECT payment_id, order_id, amount::text, status, settled_at, event_id
FROM payments
WHERE order_id = $1
LIMIT 1`

func (r *Repository) PaymentForOrder(ctx context.Context, orderID string) (*Payment, error) {
	var p Payment
	err := r.db.QueryRow(ctx, paymentForOrderSQL, orderID).
		Scan(&p.PaymentID, &p.OrderID, &p.Amount, &p.Status, &p.SettledAt, &p.EventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment for order %s: %w", orderID, err)
	}
	return &p, nil
}
