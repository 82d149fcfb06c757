// Package natsutil owns broker bootstrapping: connection options,
// stream and consumer provisioning, and a small publish wrapper.
package natsutil

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	// EventsStream holds the inbound business-event topic.
	EventsStream = "EVENTS"
	// EventsSubjectPrefix is prepended to the event type tag to form
	// the publish subject.
	EventsSubjectPrefix = "events."
	// EventsFilterSubject matches every event subject.
	EventsFilterSubject = "events.>"

	// DLQStream holds dead-lettered events.
	DLQStream = "EVENTS_DLQ"
	// DLQSubject is the dead-letter append subject.
	DLQSubject = "dlq.events"

	// ConsumerName is the durable consumer shared by all pipeline
	// instances; the broker balances deliveries across them.
	ConsumerName = "event-consumer-group"

	maxReconnects = -1
	reconnectWait = 2 * time.Second
)

// Connect dials NATS with reconnect handling and opens a JetStream
// context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return nc, js, nil
}

// EnsureStreams provisions the event and dead-letter streams. Safe to
// call on every startup.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      EventsStream,
			Subjects:  []string{EventsFilterSubject},
			Retention: jetstream.LimitsPolicy,
			Storage:   jetstream.FileStorage,
		},
		{
			Name:      DLQStream,
			Subjects:  []string{DLQSubject},
			Retention: jetstream.LimitsPolicy,
			Storage:   jetstream.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("stream ready")
	}
	return nil
}

// EnsureConsumer creates or reuses the durable explicit-ack pull
// consumer. Explicit ack gives the loop manual offset commit; an
// unacked record is redelivered after AckWait.
func EnsureConsumer(ctx context.Context, js jetstream.JetStream) (jetstream.Consumer, error) {
	stream, err := js.Stream(ctx, EventsStream)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", EventsStream, err)
	}

	cfg := jetstream.ConsumerConfig{
		Name:          ConsumerName,
		Durable:       ConsumerName,
		Description:   "business event pipeline consumer",
		FilterSubject: EventsFilterSubject,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxAckPending: 1,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create consumer: %w", err)
		}
		log.Info().Str("consumer", ConsumerName).Msg("created JetStream consumer")
	} else {
		log.Info().Str("consumer", ConsumerName).Msg("using existing JetStream consumer")
	}

	return consumer, nil
}

// Publisher publishes via JetStream and waits for the stream's ack, so
// callers know the message is durably stored.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// PublishMsg publishes a message with headers and waits for the ack.
func (p *Publisher) PublishMsg(ctx context.Context, msg *nats.Msg) error {
	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Subject, err)
	}
	return nil
}
