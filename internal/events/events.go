package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Transport header keys. eventId and eventType are duplicated from the
// JSON body so consumers can dispatch without deserializing it; eventKey
// carries the business key of the event.
const (
	HeaderEventID   = "eventId"
	HeaderEventType = "eventType"
	HeaderEventKey  = "eventKey"
)

// Event type tags as they appear on the wire.
const (
	TypeUserCreated       = "UserCreatedEvent"
	TypeOrderPlaced       = "OrderPlacedEvent"
	TypePaymentSettled    = "PaymentSettledEvent"
	TypeInventoryAdjusted = "InventoryAdjustedEvent"
)

// ErrUnsupportedEventType is returned when a type tag has no registered
// payload variant.
var ErrUnsupportedEventType = errors.New("unsupported event type")

// Envelope carries the identity of an event, independent of its payload.
// EventID is producer-generated and globally unique; the business key
// lives on the payload.
type Envelope struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload is one of the closed set of business facts.
type Payload interface {
	// Type returns the wire tag of the variant.
	Type() string
	// BusinessKey returns the natural key of the entity this event
	// projects onto (userId, orderId, paymentId, sku).
	BusinessKey() string
}

// Event is a decoded envelope plus its typed payload.
type Event struct {
	Envelope
	Payload Payload
}

type UserCreated struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

func (UserCreated) Type() string          { return TypeUserCreated }
func (p UserCreated) BusinessKey() string { return p.UserID }

type OrderPlaced struct {
	OrderID string      `json:"orderId"`
	UserID  string      `json:"userId"`
	Amount  json.Number `json:"amount"`
	Status  string      `json:"status"`
}

func (OrderPlaced) Type() string          { return TypeOrderPlaced }
func (p OrderPlaced) BusinessKey() string { return p.OrderID }

type PaymentSettled struct {
	PaymentID string      `json:"paymentId"`
	OrderID   string      `json:"orderId"`
	Amount    json.Number `json:"amount"`
	Status    string      `json:"status"`
}

func (PaymentSettled) Type() string          { return TypePaymentSettled }
func (p PaymentSettled) BusinessKey() string { return p.PaymentID }

type InventoryAdjusted struct {
	Sku            string `json:"sku"`
	QuantityChange int    `json:"quantityChange"`
	// NewQuantity is the already-resolved absolute quantity computed by
	// the producer, never negative.
	NewQuantity int `json:"newQuantity"`
}

func (InventoryAdjusted) Type() string          { return TypeInventoryAdjusted }
func (p InventoryAdjusted) BusinessKey() string { return p.Sku }

// decoders maps wire tags to payload variants. The set is closed; tags
// outside it are an ErrUnsupportedEventType, not a silent drop.
var decoders = map[string]func([]byte) (Payload, error){
	TypeUserCreated:       decodeAs[UserCreated],
	TypeOrderPlaced:       decodeAs[OrderPlaced],
	TypePaymentSettled:    decodeAs[PaymentSettled],
	TypeInventoryAdjusted: decodeAs[InventoryAdjusted],
}

func decodeAs[P Payload](data []byte) (Payload, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Decode parses a flat wire-format JSON body into an Event. eventType
// comes from transport metadata so dispatch happens before the body is
// touched.
func Decode(eventType string, data []byte) (Event, error) {
	decode, ok := decoders[eventType]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnsupportedEventType, eventType)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	payload, err := decode(data)
	if err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", eventType, err)
	}

	return Event{Envelope: env, Payload: payload}, nil
}

// Marshal produces the flat wire-format body: envelope fields and
// payload fields merged into a single JSON object.
func Marshal(env Envelope, payload Payload) ([]byte, error) {
	merged := map[string]json.RawMessage{}

	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(pb, &merged); err != nil {
		return nil, fmt.Errorf("flatten payload: %w", err)
	}

	eb, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	envFields := map[string]json.RawMessage{}
	if err := json.Unmarshal(eb, &envFields); err != nil {
		return nil, fmt.Errorf("flatten envelope: %w", err)
	}
	for k, v := range envFields {
		merged[k] = v
	}

	return json.Marshal(merged)
}
