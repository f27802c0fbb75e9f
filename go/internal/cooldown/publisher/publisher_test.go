package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/finoxa/go/internal/cooldown/events"
	"github.com/rs/zerolog"
)

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
	gate  chan struct{}
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, env events.Envelope) error {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, env.EventType)
	return p.err
}

func (p *recordingPublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

func envelope(t *testing.T, eventType string) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(eventType, uuid.New(), "signup", time.Now(), map[string]int{"remaining_sec": 1})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestDispatcher_PreservesOrder(t *testing.T) {
	rec := &recordingPublisher{}
	d := NewDispatcher(rec, DispatcherConfig{QueueSize: 16})

	want := []string{
		events.TypeCooldownStarted,
		events.TypeCooldownTicked,
		events.TypeCooldownTicked,
		events.TypeCooldownCompleted,
	}
	for _, typ := range want {
		if err := d.Publish(context.Background(), envelope(t, typ)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := rec.seen()
	if len(got) != len(want) {
		t.Fatalf("published %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	rec := &recordingPublisher{gate: make(chan struct{})}
	d := NewDispatcher(rec, DispatcherConfig{QueueSize: 1})

	// The worker takes the first event and blocks on the gate; the second fills
	// the queue and the third is dropped.
	_ = d.Publish(context.Background(), envelope(t, events.TypeCooldownStarted))
	deadline := time.Now().Add(2 * time.Second)
	for len(d.queue) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never picked up the first event")
		}
		time.Sleep(time.Millisecond)
	}
	_ = d.Publish(context.Background(), envelope(t, events.TypeCooldownTicked))
	_ = d.Publish(context.Background(), envelope(t, events.TypeCooldownTicked))

	if got := d.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}

	close(rec.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(rec.seen()); got != 2 {
		t.Errorf("published %d events, want 2", got)
	}
}

func TestDispatcher_PublishAfterClose(t *testing.T) {
	d := NewDispatcher(&recordingPublisher{}, DefaultDispatcherConfig())
	if err := d.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Publish(context.Background(), envelope(t, events.TypeCooldownTicked)); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("Publish after Close = %v, want ErrDispatcherClosed", err)
	}
	// Second Close is a no-op.
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestFanout(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("down")}
	ok := &recordingPublisher{}
	f := Fanout{failing, ok, NewLogPublisher(zerolog.DebugLevel)}

	if err := f.Publish(context.Background(), envelope(t, events.TypeCooldownStarted)); err == nil {
		t.Error("expected first error to be returned")
	}
	if len(ok.seen()) != 1 {
		t.Error("publisher after the failing one was skipped")
	}
}

func TestSubject(t *testing.T) {
	env := envelope(t, events.TypeCooldownTicked)
	if got, want := Subject("cooldown.events", env), "cooldown.events.signup.CooldownTicked"; got != want {
		t.Errorf("Subject() = %q, want %q", got, want)
	}
}

func TestStreamConfig(t *testing.T) {
	sc := streamConfig(DefaultJetStreamConfig())
	if sc.Name != "COOLDOWN_EVENTS" {
		t.Errorf("stream name = %q", sc.Name)
	}
	if len(sc.Subjects) != 1 || sc.Subjects[0] != "cooldown.events.>" {
		t.Errorf("subjects = %v", sc.Subjects)
	}
	if !isStreamConfigEqual(sc, streamConfig(DefaultJetStreamConfig())) {
		t.Error("identical configs compare unequal")
	}
	other := sc
	other.Subjects = []string{"other.>"}
	if isStreamConfigEqual(sc, other) {
		t.Error("configs with different subjects compare equal")
	}
}
