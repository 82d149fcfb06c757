package store

import "time"

// User is the materialized projection of UserCreated events.
type User struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	EventID   string    `json:"-"`
}

// Order is the materialized projection of OrderPlaced events. Amount is
// a string-formatted decimal backed by NUMERIC(18,2).
type Order struct {
	OrderID  string    `json:"orderId"`
	UserID   string    `json:"userId"`
	Amount   string    `json:"amount"`
	Status   string    `json:"status"`
	PlacedAt time.Time `json:"placedAt"`
	EventID  string    `json:"-"`
}

// Payment is the materialized projection of PaymentSettled events.
type Payment struct {
	PaymentID string    `json:"paymentId"`
	OrderID   string    `json:"orderId"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	SettledAt time.Time `json:"settledAt"`
	EventID   string    `json:"-"`
}

// Inventory is the materialized projection of InventoryAdjusted events.
type Inventory struct {
	Sku            string    `json:"sku"`
	Quantity       int       `json:"quantity"`
	LastAdjustedAt time.Time `json:"lastAdjustedAt"`
	EventID        string    `json:"-"`
}
