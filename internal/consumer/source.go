package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/streamhouse/eventpipe/internal/events"
)

// Record is one inbound transport record. EventID and EventType come
// from transport headers so dispatch happens before the body is
// deserialized; Key carries the business key.
type Record struct {
	EventID   string
	EventType string
	Key       string
	Data      []byte

	ack func() error
}

// NewRecord builds a record with its commit callback. Sources own the
// callback; the loop invokes it exactly once per record.
func NewRecord(eventID, eventType, key string, data []byte, ack func() error) *Record {
	return &Record{EventID: eventID, EventType: eventType, Key: key, Data: data, ack: ack}
}

// Commit acknowledges the record back to the broker so it is never
// redelivered to this consumer group.
func (r *Record) Commit() error {
	return r.ack()
}

// Source yields the next record, blocking up to the source's poll
// timeout. A nil record with nil error means the poll timed out.
type Source interface {
	Next(ctx context.Context) (*Record, error)
}

// JetStreamSource pulls records one at a time from a durable
// explicit-ack consumer, preserving per-subject delivery order.
type JetStreamSource struct {
	consumer    jetstream.Consumer
	pollTimeout time.Duration
}

func NewJetStreamSource(consumer jetstream.Consumer, pollTimeout time.Duration) *JetStreamSource {
	return &JetStreamSource{consumer: consumer, pollTimeout: pollTimeout}
}

func (s *JetStreamSource) Next(ctx context.Context) (*Record, error) {
	batch, err := s.consumer.Fetch(1, jetstream.FetchMaxWait(s.pollTimeout))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch record: %w", err)
	}

	for msg := range batch.Messages() {
		headers := msg.Headers()
		return NewRecord(
			headers.Get(events.HeaderEventID),
			headers.Get(events.HeaderEventType),
			headers.Get(events.HeaderEventKey),
			msg.Data(),
			msg.Ack,
		), nil
	}

	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}
	return nil, nil
}
