package main

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/mcdev12/finoxa/go/internal/cooldown/events"
	"github.com/rs/zerolog/log"
)

// chanPublisher hands cooldown events to the terminal loop. Events are dropped
// when the loop falls behind; the next tick carries the current value anyway.
type chanPublisher struct {
	ch chan events.Envelope
}

func newChanPublisher(buffer int) *chanPublisher {
	return &chanPublisher{ch: make(chan events.Envelope, buffer)}
}

func (p *chanPublisher) Publish(_ context.Context, env events.Envelope) error {
	select {
	case p.ch <- env:
	default:
		log.Debug().Str("event_type", env.EventType).Msg("render queue full, dropping event")
	}
	return nil
}

func (p *chanPublisher) Events() <-chan events.Envelope {
	return p.ch
}

type renderer struct {
	out  io.Writer
	last atomic.Int64
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) remaining(seconds int) {
	r.last.Store(int64(seconds))
	fmt.Fprintf(r.out, "\rResend available in %s   ", formatRemaining(seconds))
}

// lastSeen returns the most recently rendered remaining value.
func (r *renderer) lastSeen() int {
	return int(r.last.Load())
}

// follow renders events until the cooldown completes or ctx is done.
func (r *renderer) follow(ctx context.Context, in <-chan events.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-in:
			switch env.EventType {
			case events.TypeCooldownStarted:
				var p events.CooldownStartedPayload
				if err := env.Decode(&p); err != nil {
					return err
				}
				r.remaining(p.RemainingSec)
			case events.TypeCooldownTicked:
				var p events.CooldownTickedPayload
				if err := env.Decode(&p); err != nil {
					return err
				}
				r.remaining(p.RemainingSec)
			case events.TypeCooldownCompleted:
				r.last.Store(0)
				fmt.Fprintf(r.out, "\rYou can resend the email now.      \n")
				return nil
			}
		}
	}
}

func formatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
