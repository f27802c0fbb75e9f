// Package publisher moves cooldown events off the countdown goroutines and onto
// a transport.
package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcdev12/finoxa/go/internal/cooldown/events"
	"github.com/rs/zerolog/log"
)

// Publisher delivers a single envelope.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

var ErrDispatcherClosed = errors.New("dispatcher closed")

type DispatcherConfig struct {
	QueueSize      int
	PublishTimeout time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:      1024,
		PublishTimeout: 5 * time.Second,
	}
}

// Dispatcher hands envelopes to a Publisher on a single worker goroutine, so
// events leave in the order they were queued. When the queue is full new events
// are dropped with a warning rather than stalling the caller.
type Dispatcher struct {
	next   Publisher
	config DispatcherConfig
	queue  chan events.Envelope

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

func NewDispatcher(next Publisher, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultDispatcherConfig().QueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultDispatcherConfig().PublishTimeout
	}
	d := &Dispatcher{
		next:   next,
		config: cfg,
		queue:  make(chan events.Envelope, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish queues env. It never blocks.
func (d *Dispatcher) Publish(_ context.Context, env events.Envelope) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- env:
	default:
		d.dropped.Add(1)
		log.Warn().
			Str("event_type", env.EventType).
			Str("session_id", env.SessionID.String()).
			Int("queue_size", d.config.QueueSize).
			Msg("dispatcher queue full, dropping event")
	}
	return nil
}

// Dropped returns how many events were dropped because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be published or for
// ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for env := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.PublishTimeout)
		if err := d.next.Publish(ctx, env); err != nil {
			log.Error().
				Err(err).
				Str("event_id", env.EventID.String()).
				Str("event_type", env.EventType).
				Msg("failed to publish event")
		}
		cancel()
	}
}
