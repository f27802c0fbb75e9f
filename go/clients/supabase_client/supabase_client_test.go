package supabase_client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/finoxa/go/clients"
	"github.com/mcdev12/finoxa/go/internal/cooldown"
)

type captured struct {
	path   string
	apikey string
	auth   string
	ctype  string
	body   map[string]string
}

func newServer(t *testing.T, status int, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.apikey = r.Header.Get(APIKeyHeader)
		got.auth = r.Header.Get(AuthorizationHeader)
		got.ctype = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got.body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResendSignup(t *testing.T) {
	var got captured
	srv := newServer(t, http.StatusOK, &got)

	c := NewSupabaseClient(srv.URL+"/", "anon-key")
	if err := c.ResendSignup(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("ResendSignup: %v", err)
	}

	if got.path != ResendEndpoint {
		t.Errorf("path = %q, want %q", got.path, ResendEndpoint)
	}
	if got.apikey != "anon-key" || got.auth != "Bearer anon-key" {
		t.Errorf("headers apikey=%q auth=%q", got.apikey, got.auth)
	}
	if got.ctype != "application/json" {
		t.Errorf("Content-Type = %q", got.ctype)
	}
	if got.body["type"] != "signup" || got.body["email"] != "user@example.com" {
		t.Errorf("body = %v", got.body)
	}
}

func TestResetPasswordForEmail(t *testing.T) {
	var got captured
	srv := newServer(t, http.StatusOK, &got)

	c := NewSupabaseClient(srv.URL, "anon-key")
	if err := c.ResetPasswordForEmail(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("ResetPasswordForEmail: %v", err)
	}
	if got.path != RecoverEndpoint {
		t.Errorf("path = %q, want %q", got.path, RecoverEndpoint)
	}
	if _, ok := got.body["type"]; ok || got.body["email"] != "user@example.com" {
		t.Errorf("body = %v", got.body)
	}
}

func TestRateLimited(t *testing.T) {
	var got captured
	srv := newServer(t, http.StatusTooManyRequests, &got)

	c := NewSupabaseClient(srv.URL, "anon-key")
	err := c.ResendSignup(context.Background(), "user@example.com")

	var apiErr *clients.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *clients.APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || !apiErr.Retryable() {
		t.Errorf("APIError = %+v, want retryable 429", apiErr)
	}
}

func TestMissingEmail(t *testing.T) {
	c := NewSupabaseClient("http://127.0.0.1:0", "anon-key")
	if err := c.ResendSignup(context.Background(), ""); !errors.Is(err, ErrMissingEmail) {
		t.Errorf("ResendSignup(\"\") = %v, want ErrMissingEmail", err)
	}
	if err := c.ResetPasswordForEmail(context.Background(), ""); !errors.Is(err, ErrMissingEmail) {
		t.Errorf("ResetPasswordForEmail(\"\") = %v, want ErrMissingEmail", err)
	}
}

func TestCanceledContext(t *testing.T) {
	var got captured
	srv := newServer(t, http.StatusOK, &got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewSupabaseClient(srv.URL, "anon-key")
	if err := c.ResendSignup(ctx, "user@example.com"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestResend_RoutesByKind(t *testing.T) {
	tests := []struct {
		kind     cooldown.ResendKind
		wantPath string
		wantErr  bool
	}{
		{cooldown.ResendSignup, ResendEndpoint, false},
		{cooldown.ResendRecovery, RecoverEndpoint, false},
		{cooldown.ResendKind("magic"), "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			var got captured
			srv := newServer(t, http.StatusOK, &got)
			c := NewSupabaseClient(srv.URL, "anon-key")

			err := c.Resend(context.Background(), tt.kind, "user@example.com")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resend error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.path != tt.wantPath {
				t.Errorf("path = %q, want %q", got.path, tt.wantPath)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"unavailable", http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotMethod, gotKey string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath, gotMethod, gotKey = r.URL.Path, r.Method, r.Header.Get(APIKeyHeader)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewSupabaseClient(srv.URL+"/", "anon-key")
			if c.BaseURL() != srv.URL {
				t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), srv.URL)
			}
			err := c.Health(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Health() error = %v, wantErr %v", err, tt.wantErr)
			}
			if gotPath != HealthEndpoint || gotMethod != http.MethodGet || gotKey != "anon-key" {
				t.Errorf("request = %s %s apikey=%q", gotMethod, gotPath, gotKey)
			}
		})
	}
}
