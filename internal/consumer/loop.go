// Package consumer drives the event pipeline: poll the broker,
// dispatch by type tag, persist or dead-letter, commit, repeat. One
// sequential loop per process; ordering and commit discipline live
// here.
package consumer

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/streamhouse/eventpipe/internal/events"
)

// Applier applies one decoded event idempotently.
type Applier interface {
	Apply(ctx context.Context, ev events.Event) error
}

// DeadLetterer records an event that could not be applied. It never
// returns an error; append failures are its own concern.
type DeadLetterer interface {
	Route(ctx context.Context, eventID string, payload []byte, cause error)
}

// Loop is the consumption state machine:
// Polling → Dispatching → (Persisting | Routing) → Committing → Polling.
type Loop struct {
	source  Source
	store   Applier
	dlq     DeadLetterer
	metrics *Metrics
	clock   clockwork.Clock
}

func NewLoop(source Source, store Applier, dlq DeadLetterer, metrics *Metrics, clock clockwork.Clock) *Loop {
	return &Loop{
		source:  source,
		store:   store,
		dlq:     dlq,
		metrics: metrics,
		clock:   clock,
	}
}

// Run processes records until the context is cancelled. No record-level
// failure terminates the loop.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Msg("consumption loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("consumption loop stopped")
			return nil
		default:
		}
		l.step(ctx)
		l.metrics.MaybeReport()
	}
}

// step runs one poll→dispatch→persist-or-route→commit cycle. A failed
// persist dead-letters the record; the offset is committed on both
// branches so a poison message never blocks the partition. Anything
// that escapes persist and routing (e.g. a commit failure) is logged
// and the loop moves on.
func (l *Loop) step(ctx context.Context) {
	rec, err := l.source.Next(ctx)
	if err != nil {
		log.Error().Err(err).Msg("poll failed")
		return
	}
	if rec == nil {
		// Poll timeout: not an error, loop again.
		return
	}

	start := l.clock.Now()
	log.Debug().
		Str("event_id", rec.EventID).
		Str("event_type", rec.EventType).
		Msg("processing event")

	persistErr := l.persist(ctx, rec)
	if persistErr != nil {
		log.Error().
			Err(persistErr).
			Str("event_id", rec.EventID).
			Str("event_type", rec.EventType).
			Msg("persist failed")
		l.dlq.Route(ctx, rec.EventID, rec.Data, persistErr)
		l.metrics.RecordDeadLettered()
	}

	// Exactly one commit per record, whichever branch was taken. A
	// dead-lettered record is handled, not pending.
	if err := rec.Commit(); err != nil {
		log.Error().Err(err).Str("event_id", rec.EventID).Msg("commit failed")
		return
	}

	if persistErr == nil {
		l.metrics.RecordProcessed()
		l.metrics.ObserveLatency(l.clock.Since(start))
	}
}

func (l *Loop) persist(ctx context.Context, rec *Record) error {
	ev, err := events.Decode(rec.EventType, rec.Data)
	if err != nil {
		return err
	}
	return l.store.Apply(ctx, ev)
}
