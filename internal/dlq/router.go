// Package dlq isolates poison messages: events the store could not
// apply are packaged with their error context and appended to a durable
// dead-letter stream for out-of-band inspection and replay.
package dlq

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSubject is the dead-letter stream subject.
const DefaultSubject = "dlq.events"

// Entry is the wire form of a dead-lettered event. OriginalPayload is
// preserved verbatim so the event can be replayed.
type Entry struct {
	EventID         string    `json:"eventId"`
	OriginalPayload string    `json:"originalPayload"`
	ErrorMessage    string    `json:"errorMessage"`
	StackTrace      string    `json:"stackTrace"`
	FailedAt        time.Time `json:"failedAt"`
}

// Publisher appends a message to a durable sink and waits for the
// sink's acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Router packages failed events into dead-letter entries. Routing is
// fire-and-forget from the consumption loop's perspective: an append
// failure is logged and the event is lost, never escalated.
type Router struct {
	pub     Publisher
	subject string
}

func NewRouter(pub Publisher, subject string) *Router {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Router{pub: pub, subject: subject}
}

// Route appends a dead-letter entry for the given event. The raw
// payload goes in undecoded; cause carries the triggering failure.
func (r *Router) Route(ctx context.Context, eventID string, payload []byte, cause error) {
	entry := Entry{
		EventID:         eventID,
		OriginalPayload: string(payload),
		ErrorMessage:    cause.Error(),
		StackTrace:      string(debug.Stack()),
		FailedAt:        time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("failed to marshal dead-letter entry")
		return
	}

	if err := r.pub.Publish(ctx, r.subject, data); err != nil {
		log.Error().
			Err(err).
			Str("event_id", eventID).
			Str("subject", r.subject).
			Msg("dead-letter append failed, event lost")
		return
	}

	log.Warn().
		Str("event_id", eventID).
		Str("error", entry.ErrorMessage).
		Msg("event routed to dead-letter stream")
}
