package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/streamhouse/eventpipe/internal/events"
)

// Memory is an in-process Store and Reader with the same merge contract
// as the Postgres repository. It backs local development and tests that
// must not depend on a running database.
type Memory struct {
	mu        sync.Mutex
	users     map[string]User
	orders    map[string]Order
	payments  map[string]Payment
	inventory map[string]Inventory

	// applied event ids, per relation
	userEvents      map[string]struct{}
	orderEvents     map[string]struct{}
	paymentEvents   map[string]struct{}
	inventoryEvents map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		users:           make(map[string]User),
		orders:          make(map[string]Order),
		payments:        make(map[string]Payment),
		inventory:       make(map[string]Inventory),
		userEvents:      make(map[string]struct{}),
		orderEvents:     make(map[string]struct{}),
		paymentEvents:   make(map[string]struct{}),
		inventoryEvents: make(map[string]struct{}),
	}
}

func (m *Memory) Apply(ctx context.Context, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch p := ev.Payload.(type) {
	case events.UserCreated:
		if _, dup := m.userEvents[ev.EventID]; dup {
			return nil
		}
		u := User{UserID: p.UserID, Email: p.Email, Name: p.Name, CreatedAt: ev.Timestamp, EventID: ev.EventID}
		if existing, ok := m.users[p.UserID]; ok {
			u.CreatedAt = existing.CreatedAt
		}
		m.users[p.UserID] = u
		m.userEvents[ev.EventID] = struct{}{}

	case events.OrderPlaced:
		if _, dup := m.orderEvents[ev.EventID]; dup {
			return nil
		}
		o := Order{OrderID: p.OrderID, UserID: p.UserID, Amount: p.Amount.String(), Status: p.Status, PlacedAt: ev.Timestamp, EventID: ev.EventID}
		if existing, ok := m.orders[p.OrderID]; ok {
			o.UserID = existing.UserID
			o.PlacedAt = existing.PlacedAt
		}
		m.orders[p.OrderID] = o
		m.orderEvents[ev.EventID] = struct{}{}

	case events.PaymentSettled:
		if _, dup := m.paymentEvents[ev.EventID]; dup {
			return nil
		}
		pay := Payment{PaymentID: p.PaymentID, OrderID: p.OrderID, Amount: p.Amount.String(), Status: p.Status, SettledAt: ev.Timestamp, EventID: ev.EventID}
		if existing, ok := m.payments[p.PaymentID]; ok {
			pay.OrderID = existing.OrderID
			pay.SettledAt = existing.SettledAt
		}
		m.payments[p.PaymentID] = pay
		m.paymentEvents[ev.EventID] = struct{}{}

	case events.InventoryAdjusted:
		if _, dup := m.inventoryEvents[ev.EventID]; dup {
			return nil
		}
		m.inventory[p.Sku] = Inventory{Sku: p.Sku, Quantity: p.NewQuantity, LastAdjustedAt: ev.Timestamp, EventID: ev.EventID}
		m.inventoryEvents[ev.EventID] = struct{}{}

	default:
		return fmt.Errorf("%w: %T", events.ErrUnsupportedEventType, ev.Payload)
	}
	return nil
}

func (m *Memory) GetUser(ctx context.Context, userID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) RecentOrdersByUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].PlacedAt.After(orders[j].PlacedAt)
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (m *Memory) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *Memory) PaymentForOrder(ctx context.Context, orderID string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetInventory(ctx context.Context, sku string) (*Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.inventory[sku]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}
