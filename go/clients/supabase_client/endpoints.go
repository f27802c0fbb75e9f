package supabase_client

const (
	// Auth API endpoints
	ResendEndpoint  = "/auth/v1/resend"
	RecoverEndpoint = "/auth/v1/recover"
	HealthEndpoint  = "/auth/v1/health"

	// Resend type accepted by the resend endpoint
	ResendTypeSignup = "signup"

	// Headers
	APIKeyHeader        = "apikey"
	AuthorizationHeader = "Authorization"
	ClientInfoHeader    = "X-Client-Info"
	ClientInfo          = "finoxa-cooldown/1.0"
)
