package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/finoxa/go/internal/cooldown/events"
)

func envelope(t *testing.T, eventType string, payload any) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(eventType, uuid.New(), "signup", time.Now(), payload)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{-3, "0s"},
		{0, "0s"},
		{59, "59s"},
		{60, "1:00"},
		{125, "2:05"},
	}
	for _, tt := range tests {
		if got := formatRemaining(tt.in); got != tt.want {
			t.Errorf("formatRemaining(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderer_FollowUntilComplete(t *testing.T) {
	pub := newChanPublisher(8)
	ctx := context.Background()
	pub.Publish(ctx, envelope(t, events.TypeCooldownStarted, events.CooldownStartedPayload{RemainingSec: 2}))
	pub.Publish(ctx, envelope(t, events.TypeCooldownTicked, events.CooldownTickedPayload{RemainingSec: 1}))
	pub.Publish(ctx, envelope(t, events.TypeCooldownCompleted, events.CooldownCompletedPayload{}))

	var out bytes.Buffer
	r := newRenderer(&out)
	if err := r.follow(ctx, pub.Events()); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if !strings.Contains(out.String(), "Resend available in 1s") || !strings.HasSuffix(out.String(), "now.      \n") {
		t.Errorf("output = %q", out.String())
	}
	if r.lastSeen() != 0 {
		t.Errorf("last = %d, want 0", r.lastSeen())
	}
}

func TestRenderer_FollowCanceled(t *testing.T) {
	pub := newChanPublisher(8)
	pub.Publish(context.Background(), envelope(t, events.TypeCooldownTicked, events.CooldownTickedPayload{RemainingSec: 42}))

	ctx, cancel := context.WithCancel(context.Background())
	r := newRenderer(&bytes.Buffer{})
	go func() {
		for r.lastSeen() != 42 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	if err := r.follow(ctx, pub.Events()); !errors.Is(err, context.Canceled) {
		t.Fatalf("follow = %v, want context.Canceled", err)
	}
}

func TestChanPublisher_DropsWhenFull(t *testing.T) {
	pub := newChanPublisher(1)
	ctx := context.Background()
	env := envelope(t, events.TypeCooldownTicked, events.CooldownTickedPayload{RemainingSec: 5})
	if err := pub.Publish(ctx, env); err != nil {
		t.Fatal(err)
	}
	if err := pub.Publish(ctx, env); err != nil {
		t.Fatalf("Publish on full queue = %v, want nil", err)
	}
	if len(pub.Events()) != 1 {
		t.Errorf("queued = %d, want 1", len(pub.Events()))
	}
}

func TestSessionFor(t *testing.T) {
	id := uuid.New()
	got, err := sessionFor(id.String())
	if err != nil || got != id {
		t.Errorf("sessionFor(%s) = %s, %v", id, got, err)
	}
	if _, err := sessionFor("nope"); err == nil {
		t.Error("expected an error for an invalid id")
	}
	a, _ := sessionFor("")
	b, _ := sessionFor("")
	if a != b || a == uuid.Nil {
		t.Errorf("derived ids %s and %s should be equal and non-nil", a, b)
	}
}

func TestValidateEmail(t *testing.T) {
	if err := validateEmail("user@example.com"); err != nil {
		t.Errorf("valid email rejected: %v", err)
	}
	for _, bad := range []string{"", "user", "@@"} {
		if err := validateEmail(bad); err == nil {
			t.Errorf("validateEmail(%q) = nil", bad)
		}
	}
}
