package cooldown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/finoxa/go/internal/cooldown/events"
	"github.com/mcdev12/finoxa/go/internal/kvstore"
)

type capturePublisher struct {
	ch chan events.Envelope
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{ch: make(chan events.Envelope, 256)}
}

func (p *capturePublisher) Publish(_ context.Context, env events.Envelope) error {
	p.ch <- env
	return nil
}

func (p *capturePublisher) next(t *testing.T) events.Envelope {
	t.Helper()
	select {
	case env := <-p.ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cooldown event")
		return events.Envelope{}
	}
}

func (p *capturePublisher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case env := <-p.ch:
		t.Fatalf("unexpected %s event", env.EventType)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeResender struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *fakeResender) Resend(_ context.Context, kind ResendKind, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, string(kind)+":"+email)
	return r.err
}

type fakeAudit struct {
	mu       sync.Mutex
	attempts []ResendAttempt
}

func (a *fakeAudit) RecordResend(_ context.Context, attempt ResendAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, attempt)
	return nil
}

type fixture struct {
	app      *App
	store    *kvstore.MemoryStore
	clock    *clockwork.FakeClock
	events   *capturePublisher
	resender *fakeResender
	audit    *fakeAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    kvstore.NewMemoryStore(),
		clock:    clockwork.NewFakeClock(),
		events:   newCapturePublisher(),
		resender: &fakeResender{},
		audit:    &fakeAudit{},
	}
	app, err := NewApp(Config{
		Store: f.store,
		Flows: map[Flow]FlowConfig{
			FlowSignup:        {Seconds: 3, Resend: ResendSignup},
			FlowLogin:         {Seconds: 3, Resend: ResendSignup},
			FlowResetPassword: {Seconds: 5, Resend: ResendRecovery},
		},
		Clock:     f.clock,
		Resender:  f.resender,
		Audit:     f.audit,
		Publisher: f.events,
	})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(app.Close)
	f.app = app
	return f
}

// tick advances the clock one interval and returns the event it produced.
func (f *fixture) tick(t *testing.T) events.Envelope {
	t.Helper()
	f.clock.Advance(time.Second)
	return f.events.next(t)
}

func (f *fixture) persisted(t *testing.T, scope Scope) (string, bool) {
	t.Helper()
	v, ok, err := f.store.Get(context.Background(), scope.Key())
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return v, ok
}

func newScope(flow Flow) Scope {
	return Scope{SessionID: uuid.New(), Flow: flow}
}

func TestMount_NoPersistedValueIsIdle(t *testing.T) {
	f := newFixture(t)
	scope := newScope(FlowSignup)

	state, err := f.app.Mount(context.Background(), scope)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if state.Running || state.RemainingSec != 0 || !state.Mounted {
		t.Errorf("state = %+v, want idle mounted at 0", state)
	}
	if !state.CanResend() {
		t.Error("expected resend to be available")
	}
	f.events.expectNone(t)
}

func TestMount_ResumesPersistedCountdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := newScope(FlowSignup)
	if err := f.store.Set(ctx, scope.Key(), "2"); err != nil {
		t.Fatal(err)
	}

	state, err := f.app.Mount(ctx, scope)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if !state.Running || state.RemainingSec != 2 {
		t.Fatalf("state = %+v, want running at 2", state)
	}

	started := f.events.next(t)
	if started.EventType != events.TypeCooldownStarted {
		t.Fatalf("first event = %s, want %s", started.EventType, events.TypeCooldownStarted)
	}
	var sp events.CooldownStartedPayload
	if err := started.Decode(&sp); err != nil {
		t.Fatal(err)
	}
	if sp.RemainingSec != 2 {
		t.Errorf("started remaining = %d, want 2", sp.RemainingSec)
	}

	if env := f.tick(t); env.EventType != events.TypeCooldownTicked {
		t.Fatalf("event = %s, want %s", env.EventType, events.TypeCooldownTicked)
	}
	if v, _ := f.persisted(t, scope); v != "1" {
		t.Errorf("persisted = %q, want %q", v, "1")
	}

	if env := f.tick(t); env.EventType != events.TypeCooldownCompleted {
		t.Fatalf("event = %s, want %s", env.EventType, events.TypeCooldownCompleted)
	}
	if _, ok := f.persisted(t, scope); ok {
		t.Error("expected persisted value to be removed on completion")
	}

	state, _ = f.app.State(ctx, scope)
	if state.Running || state.RemainingSec != 0 {
		t.Errorf("state after completion = %+v, want idle at 0", state)
	}
}

func TestMount_PersistedZeroCompletesOnFirstTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := newScope(FlowLogin)
	_ = f.store.Set(ctx, scope.Key(), "0")

	if _, err := f.app.Mount(ctx, scope); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	f.events.next(t) // started
	if env := f.tick(t); env.EventType != events.TypeCooldownCompleted {
		t.Fatalf("event = %s, want %s", env.EventType, events.TypeCooldownCompleted)
	}
	if _, ok := f.persisted(t, scope); ok {
		t.Error("expected persisted value to be removed")
	}
}

func TestMount_InvalidPersistedValueIsDiscarded(t *testing.T) {
	for _, value := range []string{"abc", "-4", "", "1.5"} {
		t.Run(value, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			scope := newScope(FlowSignup)
			_ = f.store.Set(ctx, scope.Key(), value)

			state, err := f.app.Mount(ctx, scope)
			if err != nil {
				t.Fatalf("Mount: %v", err)
			}
			if state.Running {
				t.Error("expected idle controller for invalid value")
			}
			if _, ok := f.persisted(t, scope); ok {
				t.Error("expected invalid value to be removed")
			}
		})
	}
}

func TestMount_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := newScope(FlowSignup)
	_ = f.store.Set(ctx, scope.Key(), "3")

	if _, err := f.app.Mount(ctx, scope); err != nil {
		t.Fatal(err)
	}
	f.events.next(t)
	if _, err := f.app.Mount(ctx, scope); err != nil {
		t.Fatal(err)
	}
	f.events.expectNone(t)
	if got := f.app.Mounted(); got != 1 {
		t.Errorf("Mounted() = %d, want 1", got)
	}
}

func TestUnmountThenMountResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := newScope(FlowResetPassword)
	_ = f.store.Set(ctx, scope.Key(), "5")

	if _, err := f.app.Mount(ctx, scope); err != nil {
		t.Fatal(err)
	}
	f.events.next(t)
	f.tick(t) // 4
	f.tick(t) // 3

	if err := f.app.Unmount(ctx, scope); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	f.clock.Advance(time.Second)
	f.events.expectNone(t)

	if v, _ := f.persisted(t, scope); v != "3" {
		t.Fatalf("persisted after unmount = %q, want %q", v, "3")
	}

	state, err := f.app.Mount(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	if !state.Running || state.RemainingSec != 3 {
		t.Errorf("state after remount = %+v, want running at 3", state)
	}
}

func TestResend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := newScope(FlowSignup)

	state, err := f.app.Resend(ctx, scope, "user@example.com")
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if !state.Running || state.RemainingSec != 3 {
		t.Errorf("state = %+v, want running at 3", state)
	}
	if v, _ := f.persisted(t, scope); v != "3" {
		t.Errorf("persisted = %q, want %q", v, "3")
	}
	if len(f.resender.calls) != 1 || f.resender.calls[0] != "signup:user@example.com" {
		t.Errorf("resender calls = %v", f.resender.calls)
	}
	if len(f.audit.attempts) != 1 || f.audit.attempts[0].Err != nil {
		t.Errorf("audit attempts = %+v", f.audit.attempts)
	}

	if _, err := f.app.Resend(ctx, scope, "user@example.com"); !errors.Is(err, ErrCooldownActive) {
		t.Errorf("second Resend = %v, want ErrCooldownActive", err)
	}
	if len(f.resender.calls) != 1 {
		t.Errorf("resender called during cooldown")
	}
}

func TestResend_AfterCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := newScope(FlowResetPassword)

	if _, err := f.app.Resend(ctx, scope, "a@b.c"); err != nil {
		t.Fatal(err)
	}
	f.events.next(t) // started
	for i := 0; i < 4; i++ {
		f.tick(t)
	}
	if env := f.tick(t); env.EventType != events.TypeCooldownCompleted {
		t.Fatalf("event = %s, want completion", env.EventType)
	}

	state, err := f.app.Resend(ctx, scope, "a@b.c")
	if err != nil {
		t.Fatalf("Resend after completion: %v", err)
	}
	if !state.Running || state.RemainingSec != 5 {
		t.Errorf("state = %+v, want running at 5", state)
	}
	if f.resender.calls[1] != "recovery:a@b.c" {
		t.Errorf("resender call = %q", f.resender.calls[1])
	}
}

func TestResend_FailureKeepsCooldown(t *testing.T) {
	f := newFixture(t)
	f.resender.err = errors.New("rate limited")
	scope := newScope(FlowSignup)

	state, err := f.app.Resend(context.Background(), scope, "user@example.com")
	if !errors.Is(err, ErrResendFailed) {
		t.Fatalf("Resend = %v, want ErrResendFailed", err)
	}
	if !state.Running {
		t.Error("expected cooldown to keep running after a failed send")
	}
	if len(f.audit.attempts) != 1 || f.audit.attempts[0].Err == nil {
		t.Errorf("expected failed attempt to be audited, got %+v", f.audit.attempts)
	}
}

func TestResend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		scope Scope
		email string
		want  error
	}{
		{"missing session", Scope{Flow: FlowSignup}, "a@b.c", ErrInvalidScope},
		{"unknown flow", Scope{SessionID: uuid.New(), Flow: "magic-link"}, "a@b.c", ErrUnknownFlow},
		{"missing email", newScope(FlowSignup), "", ErrEmailRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.app.Resend(ctx, tt.scope, tt.email); !errors.Is(err, tt.want) {
				t.Errorf("Resend() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := newScope(FlowSignup)

	if _, err := f.app.Resend(ctx, scope, "user@example.com"); err != nil {
		t.Fatal(err)
	}
	f.events.next(t)
	f.tick(t)

	if err := f.app.Clear(ctx, scope); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	f.clock.Advance(time.Second)
	f.events.expectNone(t)

	if _, ok := f.persisted(t, scope); ok {
		t.Error("expected persisted value to be removed")
	}
	state, err := f.app.State(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	if state.Mounted || state.Running || state.RemainingSec != 0 {
		t.Errorf("state after Clear = %+v", state)
	}
}

func TestFlowsAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := uuid.New()
	signup := Scope{SessionID: session, Flow: FlowSignup}
	reset := Scope{SessionID: session, Flow: FlowResetPassword}

	if err := f.app.Seed(ctx, reset); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	state, err := f.app.Mount(ctx, signup)
	if err != nil {
		t.Fatal(err)
	}
	if state.Running {
		t.Error("seeding one flow must not start another")
	}
	if state, _ := f.app.State(ctx, reset); state.RemainingSec != 5 || state.Mounted {
		t.Errorf("reset state = %+v, want unmounted at 5", state)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := newScope(FlowSignup)
	_ = f.store.Set(ctx, scope.Key(), "3")

	if _, err := f.app.Mount(ctx, scope); err != nil {
		t.Fatal(err)
	}
	f.events.next(t)
	f.app.Close()

	f.clock.Advance(time.Second)
	f.events.expectNone(t)
	if v, _ := f.persisted(t, scope); v != "3" {
		t.Errorf("persisted after Close = %q, want %q", v, "3")
	}
	if _, err := f.app.Mount(ctx, scope); !errors.Is(err, ErrClosed) {
		t.Errorf("Mount after Close = %v, want ErrClosed", err)
	}
}

func TestParseFlow(t *testing.T) {
	tests := []struct {
		in      string
		want    Flow
		wantErr bool
	}{
		{"signup", FlowSignup, false},
		{"login", FlowLogin, false},
		{"reset-password", FlowResetPassword, false},
		{"reset_password", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFlow(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFlow(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFlow(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScopeKey(t *testing.T) {
	id := uuid.MustParse("6f1c8a2e-0d4b-4c39-9a63-2b7f5e1d0c44")
	got := Scope{SessionID: id, Flow: FlowResetPassword}.Key()
	want := "cooldown:reset-password:6f1c8a2e-0d4b-4c39-9a63-2b7f5e1d0c44"
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestState_UnmountedScope(t *testing.T) {
	tests := []struct {
		name          string
		stored        string
		store         bool
		wantRemaining int
		wantPending   bool
	}{
		{name: "absent", wantRemaining: 0, wantPending: false},
		{name: "seconds left", stored: "4", store: true, wantRemaining: 4, wantPending: true},
		{name: "zero left", stored: "0", store: true, wantRemaining: 0, wantPending: true},
		{name: "invalid", stored: "soon", store: true, wantRemaining: 0, wantPending: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			scope := newScope(FlowSignup)
			if tt.store {
				if err := f.store.Set(ctx, scope.Key(), tt.stored); err != nil {
					t.Fatal(err)
				}
			}

			state, err := f.app.State(ctx, scope)
			if err != nil {
				t.Fatalf("State: %v", err)
			}
			if state.Mounted || state.Running {
				t.Errorf("state = %+v, want unmounted and stopped", state)
			}
			if state.RemainingSec != tt.wantRemaining || state.Pending != tt.wantPending {
				t.Errorf("state = %+v, want remaining %d pending %v", state, tt.wantRemaining, tt.wantPending)
			}
			if state.CanResend() == tt.wantPending {
				t.Errorf("CanResend() = %v with pending %v", state.CanResend(), tt.wantPending)
			}
		})
	}
}

func TestSeed_BlocksResendBeforeMount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := newScope(FlowResetPassword)

	if err := f.app.Seed(ctx, scope); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	state, err := f.app.State(ctx, scope)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.CanResend() {
		t.Errorf("State after Seed = %+v, want resend unavailable", state)
	}

	if _, err := f.app.Resend(ctx, scope, "user@example.com"); !errors.Is(err, ErrCooldownActive) {
		t.Errorf("Resend after Seed = %v, want ErrCooldownActive", err)
	}
	if len(f.resender.calls) != 0 {
		t.Errorf("resender calls = %v, want none", f.resender.calls)
	}
}

type fakeCounter struct {
	n     int
	err   error
	since time.Time
}

func (c *fakeCounter) CountSince(_ context.Context, _ string, since time.Time) (int, error) {
	c.since = since
	return c.n, c.err
}

func TestResend_Limit(t *testing.T) {
	tests := []struct {
		name    string
		counter *fakeCounter
		limit   ResendLimit
		wantErr error
	}{
		{name: "under limit", counter: &fakeCounter{n: 2}, limit: ResendLimit{Max: 3, Window: time.Hour}},
		{name: "at limit", counter: &fakeCounter{n: 3}, limit: ResendLimit{Max: 3, Window: time.Hour}, wantErr: ErrResendLimited},
		{name: "disabled", counter: &fakeCounter{n: 10}, limit: ResendLimit{}},
		{name: "counter fails open", counter: &fakeCounter{err: errors.New("db down")}, limit: ResendLimit{Max: 1, Window: time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			resender := &fakeResender{}
			app, err := NewApp(Config{
				Store:    kvstore.NewMemoryStore(),
				Clock:    clock,
				Resender: resender,
				Counter:  tt.counter,
				Limit:    tt.limit,
			})
			if err != nil {
				t.Fatalf("NewApp: %v", err)
			}
			t.Cleanup(app.Close)

			scope := newScope(FlowSignup)
			_, err = app.Resend(context.Background(), scope, "user@example.com")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resend = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if len(resender.calls) != 0 {
					t.Errorf("resender calls = %v, want none", resender.calls)
				}
				if app.Mounted() != 0 {
					t.Errorf("Mounted() = %d, want 0 after limited resend", app.Mounted())
				}
				return
			}
			if len(resender.calls) != 1 {
				t.Errorf("resender calls = %v, want one", resender.calls)
			}
			if tt.limit.Max > 0 && !tt.counter.since.Equal(clock.Now().Add(-tt.limit.Window)) {
				t.Errorf("counted since %v, want %v", tt.counter.since, clock.Now().Add(-tt.limit.Window))
			}
		})
	}
}

// reportingStore is a MemoryStore that also reports the writer of each key.
type reportingStore struct {
	*kvstore.MemoryStore
	mu      sync.Mutex
	queried []string
	err     error
}

func (s *reportingStore) Writer(_ context.Context, key string) (map[string]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queried = append(s.queried, key)
	return map[string]string{"host": "other"}, true, s.err
}

func TestMount_ReportsWriterOnResume(t *testing.T) {
	tests := []struct {
		name      string
		stored    bool
		err       error
		wantQuery bool
	}{
		{name: "resumed value", stored: true, wantQuery: true},
		{name: "writer lookup fails", stored: true, err: errors.New("db down"), wantQuery: true},
		{name: "nothing persisted", stored: false, wantQuery: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &reportingStore{MemoryStore: kvstore.NewMemoryStore(), err: tt.err}
			app, err := NewApp(Config{Store: store, Clock: clockwork.NewFakeClock()})
			if err != nil {
				t.Fatalf("NewApp: %v", err)
			}
			t.Cleanup(app.Close)

			ctx := context.Background()
			scope := newScope(FlowLogin)
			if tt.stored {
				if err := store.Set(ctx, scope.Key(), "30"); err != nil {
					t.Fatal(err)
				}
			}
			state, err := app.Mount(ctx, scope)
			if err != nil {
				t.Fatalf("Mount: %v", err)
			}
			if state.Running != tt.stored {
				t.Errorf("Running = %v, want %v", state.Running, tt.stored)
			}

			store.mu.Lock()
			defer store.mu.Unlock()
			if got := len(store.queried) > 0; got != tt.wantQuery {
				t.Fatalf("Writer queried = %v, want %v", got, tt.wantQuery)
			}
			if tt.wantQuery && store.queried[0] != scope.Key() {
				t.Errorf("Writer queried %q, want %q", store.queried[0], scope.Key())
			}
		})
	}
}
