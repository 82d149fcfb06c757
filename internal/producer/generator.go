// Package producer emits a continuous stream of synthetic business
// events for exercising the pipeline end to end.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/streamhouse/eventpipe/internal/events"
	"github.com/streamhouse/eventpipe/internal/natsutil"
)

// Publisher publishes one message with headers and waits for the
// broker's acknowledgement.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg) error
}

// Generator produces random events of the four variants. Orders
// reference previously created users so the read side has joinable
// data.
type Generator struct {
	pub      Publisher
	rng      *rand.Rand
	minDelay time.Duration
	maxDelay time.Duration
	userIDs  []string
}

func NewGenerator(pub Publisher, minDelay, maxDelay time.Duration) *Generator {
	return &Generator{
		pub:      pub,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

// Run emits events at a random cadence until the context is cancelled.
// Publish failures are logged and the generator keeps going.
func (g *Generator) Run(ctx context.Context) error {
	log.Info().
		Dur("min_delay", g.minDelay).
		Dur("max_delay", g.maxDelay).
		Msg("producer started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("producer stopped")
			return nil
		default:
		}

		if err := g.emitOne(ctx); err != nil {
			log.Error().Err(err).Msg("failed to produce event")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("producer stopped")
			return nil
		case <-time.After(g.nextDelay()):
		}
	}
}

func (g *Generator) nextDelay() time.Duration {
	if g.maxDelay <= g.minDelay {
		return g.minDelay
	}
	return g.minDelay + time.Duration(g.rng.Int63n(int64(g.maxDelay-g.minDelay)))
}

func (g *Generator) emitOne(ctx context.Context) error {
	payload := g.nextPayload()
	if payload == nil {
		// OrderPlaced rolled before any user exists; skip this tick.
		return nil
	}

	env := events.Envelope{
		EventID:   uuid.NewString(),
		EventType: payload.Type(),
		Timestamp: time.Now().UTC(),
	}
	return g.publish(ctx, env, payload)
}

func (g *Generator) nextPayload() events.Payload {
	switch g.rng.Intn(4) {
	case 0:
		userID := "user-" + uuid.NewString()
		g.userIDs = append(g.userIDs, userID)
		return events.UserCreated{
			UserID: userID,
			Email:  userID + "@example.com",
			Name:   "User " + userID[5:13],
		}
	case 1:
		if len(g.userIDs) == 0 {
			return nil
		}
		return events.OrderPlaced{
			OrderID: "order-" + uuid.NewString(),
			UserID:  g.userIDs[g.rng.Intn(len(g.userIDs))],
			Amount:  g.randomAmount(),
			Status:  "Placed",
		}
	case 2:
		return events.PaymentSettled{
			PaymentID: "payment-" + uuid.NewString(),
			OrderID:   "order-" + uuid.NewString(),
			Amount:    g.randomAmount(),
			Status:    "Settled",
		}
	default:
		change := g.rng.Intn(61) - 10 // [-10, 50]
		newQty := 100 + change
		if newQty < 0 {
			newQty = 0
		}
		return events.InventoryAdjusted{
			Sku:            fmt.Sprintf("SKU-%03d", 1+g.rng.Intn(99)),
			QuantityChange: change,
			NewQuantity:    newQty,
		}
	}
}

func (g *Generator) randomAmount() json.Number {
	return json.Number(fmt.Sprintf("%d", 10+g.rng.Intn(990)))
}

func (g *Generator) publish(ctx context.Context, env events.Envelope, payload events.Payload) error {
	body, err := events.Marshal(env, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.EventType, err)
	}

	msg := &nats.Msg{
		Subject: natsutil.EventsSubjectPrefix + env.EventType,
		Data:    body,
		Header:  nats.Header{},
	}
	msg.Header.Set(events.HeaderEventID, env.EventID)
	msg.Header.Set(events.HeaderEventType, env.EventType)
	msg.Header.Set(events.HeaderEventKey, payload.BusinessKey())

	if err := g.pub.PublishMsg(ctx, msg); err != nil {
		return err
	}

	log.Info().
		Str("event_id", env.EventID).
		Str("event_type", env.EventType).
		Str("key", payload.BusinessKey()).
		Msg("produced event")
	return nil
}
