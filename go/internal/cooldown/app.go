package cooldown

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/finoxa/go/internal/countdown"
	"github.com/mcdev12/finoxa/go/internal/kvstore"
	"github.com/rs/zerolog/log"
)

// Config wires an App to its collaborators. Store is required.
type Config struct {
	Store     kvstore.Store
	Flows     map[Flow]FlowConfig
	Interval  time.Duration
	Clock     clockwork.Clock
	Resender  Resender
	Audit     AuditLog
	Publisher Publisher
	// Counter and Limit bound resends per email across sessions.
	Counter ResendCounter
	Limit   ResendLimit
}

// mount is a cooldown view that is currently on screen.
type mount struct {
	ctrl      *countdown.Controller
	persister *Persister
}

// App owns the countdown controllers of every mounted cooldown and decides what
// is persisted for them.
type App struct {
	store     kvstore.Store
	flows     map[Flow]FlowConfig
	interval  time.Duration
	clock     clockwork.Clock
	resender  Resender
	audit     AuditLog
	publisher Publisher
	counter   ResendCounter
	limit     ResendLimit

	mu      sync.Mutex
	mounted map[Scope]*mount
	closed  bool
}

// NewApp creates a new cooldown App
func NewApp(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("cooldown store is required")
	}
	if len(cfg.Flows) == 0 {
		cfg.Flows = DefaultFlows()
	}
	for flow, fc := range cfg.Flows {
		if fc.Seconds <= 0 {
			return nil, fmt.Errorf("flow %s: cooldown must be positive, got %d", flow, fc.Seconds)
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = countdown.DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &App{
		store:     cfg.Store,
		flows:     cfg.Flows,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		resender:  cfg.Resender,
		audit:     cfg.Audit,
		publisher: cfg.Publisher,
		counter:   cfg.Counter,
		limit:     cfg.Limit,
		mounted:   make(map[Scope]*mount),
	}, nil
}

// Flow returns the configuration of flow.
func (a *App) Flow(flow Flow) (FlowConfig, error) {
	fc, ok := a.flows[flow]
	if !ok {
		return FlowConfig{}, fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}
	return fc, nil
}

// Mount brings a cooldown view on screen. A persisted value resumes the countdown
// immediately; without one the view starts idle at zero and resend is available.
// Mounting a scope twice returns the live state.
func (a *App) Mount(ctx context.Context, scope Scope) (State, error) {
	if err := a.check(scope); err != nil {
		return State{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m, err := a.mountLocked(ctx, scope)
	if err != nil {
		return State{}, err
	}
	return stateOf(scope, m), nil
}

func (a *App) mountLocked(ctx context.Context, scope Scope) (*mount, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if m, ok := a.mounted[scope]; ok {
		return m, nil
	}

	initial, resume, err := a.loadPersisted(ctx, scope)
	if err != nil {
		return nil, err
	}

	m := &mount{}
	remaining := func() int { return m.ctrl.Remaining() }
	m.persister = NewPersister(a.store, scope.Key(), remaining)

	observers := countdown.Observers{m.persister}
	if a.publisher != nil {
		observers = append(observers, &publishingObserver{
			scope:     scope,
			publisher: a.publisher,
			clock:     a.clock,
			interval:  a.interval,
			remaining: remaining,
		})
	}

	// Started explicitly below, once m.ctrl is set for the observers.
	m.ctrl = countdown.New(initial, countdown.Options{
		Interval: a.interval,
		Observer: observers,
		Clock:    a.clock,
	})
	a.mounted[scope] = m

	if resume {
		m.ctrl.Start()
	}

	log.Info().
		Str("scope", scope.String()).
		Int("remaining", initial).
		Bool("resumed", resume).
		Msg("mounted cooldown")
	return m, nil
}

// loadPersisted reads the scope's stored value. Values that are not non-negative
// integers are removed and treated as absent.
func (a *App) loadPersisted(ctx context.Context, scope Scope) (int, bool, error) {
	value, ok, err := a.store.Get(ctx, scope.Key())
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cooldown %s: %w", scope, err)
	}
	if !ok {
		return 0, false, nil
	}

	n, valid := parsePersisted(value)
	if !valid {
		log.Warn().Str("scope", scope.String()).Str("value", value).Msg("discarding invalid persisted cooldown")
		if err := a.store.Remove(ctx, scope.Key()); err != nil {
			return 0, false, fmt.Errorf("failed to discard cooldown %s: %w", scope, err)
		}
		return 0, false, nil
	}
	a.logWriter(ctx, scope)
	return n, true, nil
}

// logWriter records which process last wrote a resumed value, for stores that
// track it.
func (a *App) logWriter(ctx context.Context, scope Scope) {
	wr, ok := a.store.(kvstore.WriterReporter)
	if !ok {
		return
	}
	attrs, found, err := wr.Writer(ctx, scope.Key())
	if err != nil {
		log.Warn().Err(err).Str("scope", scope.String()).Msg("failed to read cooldown writer")
		return
	}
	if found && len(attrs) > 0 {
		log.Info().Str("scope", scope.String()).Interface("writer", attrs).Msg("resuming cooldown persisted by writer")
	}
}

// Unmount takes a view off screen. Its controller stops; the persisted value is
// kept so that the next Mount resumes from it.
func (a *App) Unmount(_ context.Context, scope Scope) error {
	if err := scope.validate(); err != nil {
		return err
	}

	a.mu.Lock()
	m, ok := a.mounted[scope]
	delete(a.mounted, scope)
	a.mu.Unlock()

	if ok {
		m.ctrl.Stop()
		log.Info().Str("scope", scope.String()).Int("remaining", m.ctrl.Remaining()).Msg("unmounted cooldown")
	}
	return nil
}

// Seed stores the flow's full cooldown without mounting anything. It is used by
// the pages that send the first email and then navigate to the cooldown view.
func (a *App) Seed(ctx context.Context, scope Scope) error {
	if err := a.check(scope); err != nil {
		return err
	}
	fc, _ := a.Flow(scope.Flow)

	if err := a.store.Set(ctx, scope.Key(), strconv.Itoa(fc.Seconds)); err != nil {
		return fmt.Errorf("failed to seed cooldown %s: %w", scope, err)
	}
	log.Info().Str("scope", scope.String()).Int("seconds", fc.Seconds).Msg("seeded cooldown")
	return nil
}

// Resend restarts the flow's cooldown and asks the auth backend to send the email
// again. It is rejected while the cooldown is running and, with a Limit set, once
// the email used up its resends for the window. A failed send is returned
// wrapped in ErrResendFailed but leaves the cooldown running.
func (a *App) Resend(ctx context.Context, scope Scope, email string) (State, error) {
	if err := a.check(scope); err != nil {
		return State{}, err
	}
	if email == "" {
		return State{}, ErrEmailRequired
	}
	fc, _ := a.Flow(scope.Flow)
	if err := a.checkLimit(ctx, email); err != nil {
		return State{}, err
	}

	a.mu.Lock()
	m, err := a.mountLocked(ctx, scope)
	if err != nil {
		a.mu.Unlock()
		return State{}, err
	}
	if m.ctrl.Running() {
		a.mu.Unlock()
		return stateOf(scope, m), fmt.Errorf("%w: %d seconds left", ErrCooldownActive, m.ctrl.Remaining())
	}
	if err := a.store.Set(ctx, scope.Key(), strconv.Itoa(fc.Seconds)); err != nil {
		a.mu.Unlock()
		return State{}, fmt.Errorf("failed to persist cooldown %s: %w", scope, err)
	}
	m.ctrl.SetRemaining(fc.Seconds)
	m.ctrl.Start()
	state := stateOf(scope, m)
	a.mu.Unlock()

	sendErr := a.send(ctx, fc.Resend, email)
	a.record(ctx, scope, email, sendErr)
	if sendErr != nil {
		return state, fmt.Errorf("%w: %w", ErrResendFailed, sendErr)
	}

	log.Info().Str("scope", scope.String()).Str("kind", string(fc.Resend)).Msg("resent email")
	return state, nil
}

// checkLimit rejects email once it reached the configured number of resends
// within the window. Counter errors are logged and let the resend through.
func (a *App) checkLimit(ctx context.Context, email string) error {
	if a.counter == nil || !a.limit.enabled() {
		return nil
	}
	n, err := a.counter.CountSince(ctx, email, a.clock.Now().Add(-a.limit.Window))
	if err != nil {
		log.Error().Err(err).Msg("failed to count recent resends")
		return nil
	}
	if n >= a.limit.Max {
		return fmt.Errorf("%w: %d in the last %s", ErrResendLimited, n, a.limit.Window)
	}
	return nil
}

func (a *App) send(ctx context.Context, kind ResendKind, email string) error {
	if a.resender == nil {
		log.Warn().Str("kind", string(kind)).Msg("no resender configured, skipping email")
		return nil
	}
	return a.resender.Resend(ctx, kind, email)
}

func (a *App) record(ctx context.Context, scope Scope, email string, sendErr error) {
	if a.audit == nil {
		return
	}
	attempt := ResendAttempt{
		ID:          uuid.New(),
		SessionID:   scope.SessionID,
		Flow:        scope.Flow,
		Email:       email,
		Err:         sendErr,
		RequestedAt: a.clock.Now().UTC(),
	}
	if err := a.audit.RecordResend(ctx, attempt); err != nil {
		log.Error().Err(err).Str("scope", scope.String()).Msg("failed to record resend attempt")
	}
}

// Clear ends the cooldown for good, as after a successful verification: the
// controller stops and the persisted value is removed.
func (a *App) Clear(ctx context.Context, scope Scope) error {
	if err := a.check(scope); err != nil {
		return err
	}

	a.mu.Lock()
	m, ok := a.mounted[scope]
	delete(a.mounted, scope)
	a.mu.Unlock()

	if ok {
		m.ctrl.Stop()
		m.persister.Detach()
	}
	if err := a.store.Remove(ctx, scope.Key()); err != nil {
		return fmt.Errorf("failed to clear cooldown %s: %w", scope, err)
	}
	log.Info().Str("scope", scope.String()).Msg("cleared cooldown")
	return nil
}

// State reports the live state of a mounted scope, or the persisted value of an
// unmounted one. A valid persisted value is reported as Pending because mounting
// resumes it.
func (a *App) State(ctx context.Context, scope Scope) (State, error) {
	if err := a.check(scope); err != nil {
		return State{}, err
	}

	a.mu.Lock()
	m, ok := a.mounted[scope]
	a.mu.Unlock()
	if ok {
		return stateOf(scope, m), nil
	}

	state := State{SessionID: scope.SessionID, Flow: scope.Flow}
	value, found, err := a.store.Get(ctx, scope.Key())
	if err != nil {
		return State{}, fmt.Errorf("failed to read cooldown %s: %w", scope, err)
	}
	if found {
		state.RemainingSec, state.Pending = parsePersisted(value)
	}
	return state, nil
}

// Mounted returns the number of mounted scopes.
func (a *App) Mounted() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.mounted)
}

// Close stops every controller. Persisted values are kept.
func (a *App) Close() {
	a.mu.Lock()
	mounted := a.mounted
	a.mounted = make(map[Scope]*mount)
	a.closed = true
	a.mu.Unlock()

	for _, m := range mounted {
		m.ctrl.Stop()
	}
	log.Info().Int("stopped", len(mounted)).Msg("cooldown app closed")
}

func (a *App) check(scope Scope) error {
	if err := scope.validate(); err != nil {
		return err
	}
	_, err := a.Flow(scope.Flow)
	return err
}

func stateOf(scope Scope, m *mount) State {
	return State{
		SessionID:    scope.SessionID,
		Flow:         scope.Flow,
		RemainingSec: m.ctrl.Remaining(),
		Running:      m.ctrl.Running(),
		Mounted:      true,
	}
}
