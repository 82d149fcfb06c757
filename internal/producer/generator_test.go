package producer

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/streamhouse/eventpipe/internal/events"
	"github.com/streamhouse/eventpipe/internal/natsutil"
)

type capturePublisher struct {
	msgs []*nats.Msg
}

func (c *capturePublisher) PublishMsg(ctx context.Context, msg *nats.Msg) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func newSeededGenerator(pub Publisher, seed int64) *Generator {
	g := NewGenerator(pub, time.Millisecond, 2*time.Millisecond)
	g.rng = rand.New(rand.NewSource(seed))
	return g
}

func TestEmittedRecordsAreSelfConsistent(t *testing.T) {
	pub := &capturePublisher{}
	g := newSeededGenerator(pub, 1)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if err := g.emitOne(ctx); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	if len(pub.msgs) == 0 {
		t.Fatal("no events produced")
	}

	for _, msg := range pub.msgs {
		eventType := msg.Header.Get(events.HeaderEventType)
		eventID := msg.Header.Get(events.HeaderEventID)
		key := msg.Header.Get(events.HeaderEventKey)

		if !strings.HasPrefix(msg.Subject, natsutil.EventsSubjectPrefix) {
			t.Errorf("subject = %q", msg.Subject)
		}
		if msg.Subject != natsutil.EventsSubjectPrefix+eventType {
			t.Errorf("subject %q does not carry type %q", msg.Subject, eventType)
		}

		ev, err := events.Decode(eventType, msg.Data)
		if err != nil {
			t.Fatalf("body of %s does not decode: %v", eventType, err)
		}
		// Headers must mirror the body so consumers can dispatch
		// without deserializing.
		if ev.EventID != eventID {
			t.Errorf("header eventId %q != body %q", eventID, ev.EventID)
		}
		if ev.EventType != eventType {
			t.Errorf("header eventType %q != body %q", eventType, ev.EventType)
		}
		if ev.Payload.BusinessKey() != key {
			t.Errorf("header key %q != payload key %q", key, ev.Payload.BusinessKey())
		}
		if ev.Timestamp.IsZero() {
			t.Error("missing timestamp")
		}
	}
}

func TestOrdersReferenceCreatedUsers(t *testing.T) {
	pub := &capturePublisher{}
	g := newSeededGenerator(pub, 42)

	ctx := context.Background()
	for i := 0; i < 200; i++ {
		if err := g.emitOne(ctx); err != nil {
			t.Fatal(err)
		}
	}

	users := map[string]bool{}
	sawOrder := false
	for _, msg := range pub.msgs {
		eventType := msg.Header.Get(events.HeaderEventType)
		ev, err := events.Decode(eventType, msg.Data)
		if err != nil {
			t.Fatal(err)
		}
		switch p := ev.Payload.(type) {
		case events.UserCreated:
			users[p.UserID] = true
		case events.OrderPlaced:
			sawOrder = true
			if !users[p.UserID] {
				t.Errorf("order %s references unknown user %s", p.OrderID, p.UserID)
			}
			if n, err := p.Amount.Int64(); err != nil || n < 10 || n > 999 {
				t.Errorf("amount = %v", p.Amount)
			}
		case events.InventoryAdjusted:
			if p.NewQuantity < 0 {
				t.Errorf("negative resolved quantity %d", p.NewQuantity)
			}
		}
	}
	if !sawOrder {
		t.Fatal("seed produced no orders")
	}
}
