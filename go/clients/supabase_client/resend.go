package supabase_client

import (
	"context"
	"fmt"

	"github.com/mcdev12/finoxa/go/internal/cooldown"
)

// Resend sends the email matching kind. It satisfies cooldown.Resender.
func (c *SupabaseClient) Resend(ctx context.Context, kind cooldown.ResendKind, email string) error {
	switch kind {
	case cooldown.ResendSignup:
		return c.ResendSignup(ctx, email)
	case cooldown.ResendRecovery:
		return c.ResetPasswordForEmail(ctx, email)
	default:
		return fmt.Errorf("unsupported resend kind %q", kind)
	}
}

var _ cooldown.Resender = (*SupabaseClient)(nil)
