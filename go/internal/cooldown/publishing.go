package cooldown

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/finoxa/go/internal/cooldown/events"
	"github.com/rs/zerolog/log"
)

// publishingObserver turns countdown transitions into cooldown events.
type publishingObserver struct {
	scope     Scope
	publisher Publisher
	clock     clockwork.Clock
	interval  time.Duration
	remaining func() int
}

func (o *publishingObserver) OnStart() {
	now := o.clock.Now()
	n := o.remaining()
	o.publish(events.TypeCooldownStarted, now, events.CooldownStartedPayload{
		SessionID:    o.scope.SessionID.String(),
		Flow:         string(o.scope.Flow),
		RemainingSec: n,
		StartedAt:    now.UTC(),
		EndsAt:       now.Add(time.Duration(n) * o.interval).UTC(),
	})
}

func (o *publishingObserver) OnTick(remaining int) {
	now := o.clock.Now()
	o.publish(events.TypeCooldownTicked, now, events.CooldownTickedPayload{
		SessionID:    o.scope.SessionID.String(),
		Flow:         string(o.scope.Flow),
		RemainingSec: remaining,
		TickedAt:     now.UTC(),
	})
}

func (o *publishingObserver) OnComplete() {
	now := o.clock.Now()
	o.publish(events.TypeCooldownCompleted, now, events.CooldownCompletedPayload{
		SessionID:   o.scope.SessionID.String(),
		Flow:        string(o.scope.Flow),
		CompletedAt: now.UTC(),
	})
}

func (o *publishingObserver) publish(eventType string, at time.Time, payload any) {
	env, err := events.NewEnvelope(eventType, o.scope.SessionID, string(o.scope.Flow), at, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build cooldown event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := o.publisher.Publish(ctx, env); err != nil {
		log.Error().
			Err(err).
			Str("event_type", eventType).
			Str("scope", o.scope.String()).
			Msg("failed to publish cooldown event")
	}
}
