package supabase_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/finoxa/go/clients"
)

var ErrMissingEmail = errors.New("email is required")

// SupabaseClient talks to the Supabase auth API with the project's anon key.
type SupabaseClient struct {
	*clients.BaseClient
}

func NewSupabaseClient(projectURL, anonKey string) *SupabaseClient {
	client := &SupabaseClient{
		BaseClient: clients.NewBaseClient(strings.TrimRight(projectURL, "/")),
	}

	client.SetHeader(APIKeyHeader, anonKey)
	client.SetHeader(AuthorizationHeader, "Bearer "+anonKey)
	client.SetHeader(ClientInfoHeader, ClientInfo)

	return client
}

type resendRequest struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

type recoverRequest struct {
	Email string `json:"email"`
}

// ResendSignup re-sends the signup confirmation code to email.
func (c *SupabaseClient) ResendSignup(ctx context.Context, email string) error {
	return c.resend(ctx, ResendTypeSignup, email)
}

func (c *SupabaseClient) resend(ctx context.Context, kind, email string) error {
	if email == "" {
		return ErrMissingEmail
	}
	if err := c.postJSON(ctx, ResendEndpoint, resendRequest{Type: kind, Email: email}); err != nil {
		return fmt.Errorf("failed to resend %s email: %w", kind, err)
	}
	return nil
}

// ResetPasswordForEmail sends a password recovery link to email.
func (c *SupabaseClient) ResetPasswordForEmail(ctx context.Context, email string) error {
	if email == "" {
		return ErrMissingEmail
	}
	if err := c.postJSON(ctx, RecoverEndpoint, recoverRequest{Email: email}); err != nil {
		return fmt.Errorf("failed to send recovery email: %w", err)
	}
	return nil
}

// Health checks that the auth API answers.
func (c *SupabaseClient) Health(ctx context.Context) error {
	if _, err := c.Get(ctx, HealthEndpoint); err != nil {
		return fmt.Errorf("auth API at %s is unhealthy: %w", c.BaseURL(), err)
	}
	return nil
}

func (c *SupabaseClient) postJSON(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	_, err = c.Post(ctx, endpoint, bytes.NewReader(body))
	return err
}
