package rpc

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/finoxa/go/internal/cooldown"
	"google.golang.org/protobuf/types/known/structpb"
)

// CooldownApp defines what the service layer needs from the cooldown application
type CooldownApp interface {
	Mount(ctx context.Context, scope cooldown.Scope) (cooldown.State, error)
	Unmount(ctx context.Context, scope cooldown.Scope) error
	Seed(ctx context.Context, scope cooldown.Scope) error
	Resend(ctx context.Context, scope cooldown.Scope, email string) (cooldown.State, error)
	Clear(ctx context.Context, scope cooldown.Scope) error
	State(ctx context.Context, scope cooldown.Scope) (cooldown.State, error)
}

// Service implements the CooldownService connect interface
type Service struct {
	app CooldownApp
}

// NewService creates a new cooldown connect service
func NewService(app CooldownApp) *Service {
	return &Service{app: app}
}

var _ CooldownServiceHandler = (*Service)(nil)

// Mount resumes or creates the cooldown of a view
func (s *Service) Mount(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	scope, err := scopeFromProto(req.Msg)
	if err != nil {
		return nil, err
	}
	state, err := s.app.Mount(ctx, scope)
	if err != nil {
		return nil, toConnectError(err)
	}
	return stateResponse(state)
}

// Unmount stops the cooldown of a view, keeping its persisted value
func (s *Service) Unmount(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	scope, err := scopeFromProto(req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.app.Unmount(ctx, scope); err != nil {
		return nil, toConnectError(err)
	}
	return s.currentState(ctx, scope)
}

// Seed stores a full cooldown before the client navigates to the view
func (s *Service) Seed(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	scope, err := scopeFromProto(req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.app.Seed(ctx, scope); err != nil {
		return nil, toConnectError(err)
	}
	return s.currentState(ctx, scope)
}

// Resend restarts the cooldown and re-sends the email
func (s *Service) Resend(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	scope, err := scopeFromProto(req.Msg)
	if err != nil {
		return nil, err
	}
	email := req.Msg.GetFields()["email"].GetStringValue()

	state, err := s.app.Resend(ctx, scope, email)
	if err != nil {
		return nil, toConnectError(err)
	}
	return stateResponse(state)
}

// Clear ends the cooldown after a successful verification
func (s *Service) Clear(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	scope, err := scopeFromProto(req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.app.Clear(ctx, scope); err != nil {
		return nil, toConnectError(err)
	}
	return s.currentState(ctx, scope)
}

// GetState returns the live or persisted state of a cooldown
func (s *Service) GetState(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	scope, err := scopeFromProto(req.Msg)
	if err != nil {
		return nil, err
	}
	return s.currentState(ctx, scope)
}

func (s *Service) currentState(ctx context.Context, scope cooldown.Scope) (*connect.Response[structpb.Struct], error) {
	state, err := s.app.State(ctx, scope)
	if err != nil {
		return nil, toConnectError(err)
	}
	return stateResponse(state)
}

func scopeFromProto(msg *structpb.Struct) (cooldown.Scope, error) {
	fields := msg.GetFields()

	sessionID, err := uuid.Parse(fields["session_id"].GetStringValue())
	if err != nil {
		return cooldown.Scope{}, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid session_id: %w", err))
	}
	flow, err := cooldown.ParseFlow(fields["flow"].GetStringValue())
	if err != nil {
		return cooldown.Scope{}, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return cooldown.Scope{SessionID: sessionID, Flow: flow}, nil
}

func stateResponse(state cooldown.State) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(map[string]any{
		"session_id":    state.SessionID.String(),
		"flow":          string(state.Flow),
		"remaining_sec": state.RemainingSec,
		"running":       state.Running,
		"mounted":       state.Mounted,
		"pending":       state.Pending,
		"can_resend":    state.CanResend(),
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, cooldown.ErrInvalidScope),
		errors.Is(err, cooldown.ErrUnknownFlow),
		errors.Is(err, cooldown.ErrEmailRequired):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, cooldown.ErrCooldownActive):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, cooldown.ErrResendLimited):
		return connect.NewError(connect.CodeResourceExhausted, err)
	case errors.Is(err, cooldown.ErrResendFailed),
		errors.Is(err, cooldown.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
