package cooldown

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/mcdev12/finoxa/go/internal/kvstore"
	"github.com/rs/zerolog/log"
)

const storeTimeout = 5 * time.Second

// Persister is a countdown observer that mirrors the remaining value into a store
// so that a later mount resumes where this one stopped. Store failures are logged
// and never reach the controller.
type Persister struct {
	store     kvstore.Store
	key       string
	remaining func() int

	mu       sync.Mutex
	detached bool
}

// NewPersister creates a Persister writing to key. remaining supplies the value
// written on start and may be nil.
func NewPersister(store kvstore.Store, key string, remaining func() int) *Persister {
	return &Persister{store: store, key: key, remaining: remaining}
}

func (p *Persister) OnStart() {
	if p.remaining == nil {
		return
	}
	p.write(p.remaining())
}

func (p *Persister) OnTick(remaining int) {
	p.write(remaining)
}

func (p *Persister) OnComplete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.store.Remove(ctx, p.key); err != nil {
		log.Error().Err(err).Str("key", p.key).Msg("failed to clear persisted cooldown")
	}
}

// Detach stops all further writes. A write in progress finishes before Detach
// returns.
func (p *Persister) Detach() {
	p.mu.Lock()
	p.detached = true
	p.mu.Unlock()
}

func (p *Persister) write(remaining int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.store.Set(ctx, p.key, strconv.Itoa(remaining)); err != nil {
		log.Error().Err(err).Str("key", p.key).Int("remaining", remaining).Msg("failed to persist cooldown")
	}
}

// parsePersisted interprets a stored value. Anything but a non-negative integer is
// rejected.
func parsePersisted(value string) (int, bool) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
