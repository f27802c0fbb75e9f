package cooldown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/finoxa/go/internal/cooldown/events"
)

var (
	ErrUnknownFlow    = errors.New("unknown cooldown flow")
	ErrInvalidScope   = errors.New("invalid cooldown scope")
	ErrCooldownActive = errors.New("cooldown is still running")
	ErrEmailRequired  = errors.New("email is required to resend")
	ErrResendFailed   = errors.New("resend request failed")
	ErrResendLimited  = errors.New("too many resends for this email")
	ErrClosed         = errors.New("cooldown app is closed")
)

// Flow names an auth flow that rate-limits email resends.
type Flow string

const (
	FlowSignup        Flow = "signup"
	FlowLogin         Flow = "login"
	FlowResetPassword Flow = "reset-password"
)

// ParseFlow converts s into a known Flow.
func ParseFlow(s string) (Flow, error) {
	switch f := Flow(s); f {
	case FlowSignup, FlowLogin, FlowResetPassword:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, s)
	}
}

// ResendKind selects which email the auth backend sends.
type ResendKind string

const (
	// ResendSignup re-sends the signup verification code.
	ResendSignup ResendKind = "signup"
	// ResendRecovery re-sends the password recovery link.
	ResendRecovery ResendKind = "recovery"
)

// DefaultCooldownSeconds is the cooldown every flow starts with unless configured.
const DefaultCooldownSeconds = 60

// FlowConfig describes the cooldown for one flow.
type FlowConfig struct {
	Seconds int
	Resend  ResendKind
}

// DefaultFlows returns the built-in flow table.
func DefaultFlows() map[Flow]FlowConfig {
	return map[Flow]FlowConfig{
		FlowSignup:        {Seconds: DefaultCooldownSeconds, Resend: ResendSignup},
		FlowLogin:         {Seconds: DefaultCooldownSeconds, Resend: ResendSignup},
		FlowResetPassword: {Seconds: DefaultCooldownSeconds, Resend: ResendRecovery},
	}
}

// Scope identifies one cooldown: a browser session on one flow.
type Scope struct {
	SessionID uuid.UUID
	Flow      Flow
}

// Key returns the store key holding the scope's persisted remaining seconds.
func (s Scope) Key() string {
	return fmt.Sprintf("cooldown:%s:%s", s.Flow, s.SessionID)
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.SessionID, s.Flow)
}

func (s Scope) validate() error {
	if s.SessionID == uuid.Nil {
		return fmt.Errorf("%w: missing session id", ErrInvalidScope)
	}
	if s.Flow == "" {
		return fmt.Errorf("%w: missing flow", ErrInvalidScope)
	}
	return nil
}

// State is a snapshot of one cooldown.
type State struct {
	SessionID    uuid.UUID `json:"session_id"`
	Flow         Flow      `json:"flow"`
	RemainingSec int       `json:"remaining_sec"`
	Running      bool      `json:"running"`
	Mounted      bool      `json:"mounted"`
	// Pending is set for an unmounted cooldown whose persisted value the next
	// Mount resumes.
	Pending bool `json:"pending"`
}

// CanResend reports whether the resend action is available.
func (s State) CanResend() bool {
	return !s.Running && !s.Pending
}

// Resender asks the auth backend to send an email again.
type Resender interface {
	Resend(ctx context.Context, kind ResendKind, email string) error
}

// ResendAttempt is one recorded call to the Resender.
type ResendAttempt struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	Flow        Flow
	Email       string
	Err         error
	RequestedAt time.Time
}

// AuditLog records resend attempts.
type AuditLog interface {
	RecordResend(ctx context.Context, attempt ResendAttempt) error
}

// ResendCounter counts successful resends to an email since a point in time.
type ResendCounter interface {
	CountSince(ctx context.Context, email string, since time.Time) (int, error)
}

// ResendLimit caps resends per email over a sliding window. A zero Max disables it.
type ResendLimit struct {
	Max    int
	Window time.Duration
}

func (l ResendLimit) enabled() bool {
	return l.Max > 0 && l.Window > 0
}

// Publisher delivers cooldown events.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}
