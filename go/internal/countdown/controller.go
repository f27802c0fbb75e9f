package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the tick period used when Options.Interval is not set.
const DefaultInterval = time.Second

// Options configures a Controller.
type Options struct {
	// Interval is the tick period. Defaults to DefaultInterval.
	Interval time.Duration
	// AutoStart begins ticking as soon as the controller is constructed.
	AutoStart bool
	// Observer receives start, tick and completion notifications.
	Observer Observer
	// Clock drives the ticker. Defaults to the real clock; tests pass a fake.
	Clock clockwork.Clock
}

// Controller is a resumable countdown. It decrements its remaining value once per
// interval and notifies its Observer; it holds no opinion about persistence.
type Controller struct {
	clock    clockwork.Clock
	interval time.Duration
	observer Observer

	// cb serializes observer callbacks across runs. Lock order is cb, then mu.
	cb sync.Mutex

	mu        sync.Mutex
	remaining int
	running   bool
	ticker    clockwork.Ticker
	stop      chan struct{}
	// run identifies the current run. Start and Stop bump it so that a fire which
	// was already queued for an older run is discarded.
	run uint64
}

// New creates a Controller counting down from initialSeconds. Negative values are
// clamped to zero, in which case the first tick after Start completes the countdown.
func New(initialSeconds int, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Observer == nil {
		opts.Observer = ObserverFuncs{}
	}

	c := &Controller{
		clock:     opts.Clock,
		interval:  opts.Interval,
		observer:  opts.Observer,
		remaining: clamp(initialSeconds),
	}

	if opts.AutoStart {
		c.Start()
	}
	return c
}

// Start begins a run. Calling Start while a run is active is a no-op. If a
// callback of an earlier run is still executing, Start waits for it to return.
// Observers must not call Start themselves.
func (c *Controller) Start() {
	c.cb.Lock()
	defer c.cb.Unlock()

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.run++
	run := c.run
	c.mu.Unlock()

	c.observer.OnStart()

	c.mu.Lock()
	defer c.mu.Unlock()
	// Stopped (or restarted) from inside OnStart.
	if c.run != run {
		return
	}
	c.ticker = c.clock.NewTicker(c.interval)
	c.stop = make(chan struct{})
	go c.loop(run, c.ticker, c.stop)
}

// Stop cancels the live run, if any. Once Stop returns no queued fire will reach
// the Observer; a tick whose callbacks are already executing runs to completion.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.run++
	c.halt()
}

// SetRemaining overwrites the remaining value without changing the run state.
func (c *Controller) SetRemaining(seconds int) {
	c.mu.Lock()
	c.remaining = clamp(seconds)
	c.mu.Unlock()
}

// Remaining returns the current countdown value in seconds.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Running reports whether a run is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Interval returns the tick period.
func (c *Controller) Interval() time.Duration {
	return c.interval
}

func (c *Controller) loop(run uint64, ticker clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if !c.tick(run) {
				return
			}
		}
	}
}

// tick applies one fire of the given run and reports whether the run continues.
func (c *Controller) tick(run uint64) bool {
	c.cb.Lock()
	defer c.cb.Unlock()

	c.mu.Lock()
	if c.run != run || !c.running {
		c.mu.Unlock()
		return false
	}

	if c.remaining <= 1 {
		c.remaining = 0
		c.halt()
		c.mu.Unlock()
		c.observer.OnComplete()
		return false
	}

	c.remaining--
	remaining := c.remaining
	c.mu.Unlock()

	c.observer.OnTick(remaining)
	return true
}

// halt releases the ticker and marks the controller idle. Callers hold c.mu.
func (c *Controller) halt() {
	c.running = false
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func clamp(seconds int) int {
	if seconds < 0 {
		return 0
	}
	return seconds
}
