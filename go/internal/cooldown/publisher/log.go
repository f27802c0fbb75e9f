package publisher

import (
	"context"

	"github.com/mcdev12/finoxa/go/internal/cooldown/events"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogPublisher only logs events. It is used when NATS is not configured.
type LogPublisher struct {
	level zerolog.Level
}

func NewLogPublisher(level zerolog.Level) *LogPublisher {
	return &LogPublisher{level: level}
}

func (p *LogPublisher) Publish(_ context.Context, env events.Envelope) error {
	log.WithLevel(p.level).
		Str("event_id", env.EventID.String()).
		Str("event_type", env.EventType).
		Str("session_id", env.SessionID.String()).
		Str("flow", env.Flow).
		RawJSON("payload", env.Payload).
		Msg("cooldown event")
	return nil
}

// Fanout publishes every event to each publisher in order. It returns the first
// error but still attempts the remaining publishers.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, env events.Envelope) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, env); err != nil && first == nil {
			first = err
		}
	}
	return first
}
