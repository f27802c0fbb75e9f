package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/finoxa/go/internal/cooldown"
	"github.com/rs/zerolog/log"
)

// StateProvider returns the current state of a cooldown
type StateProvider interface {
	State(ctx context.Context, scope cooldown.Scope) (cooldown.State, error)
}

// StateProviderFunc adapts a function to StateProvider.
type StateProviderFunc func(ctx context.Context, scope cooldown.Scope) (cooldown.State, error)

func (f StateProviderFunc) State(ctx context.Context, scope cooldown.Scope) (cooldown.State, error) {
	return f(ctx, scope)
}

// StateResponse is the body of GET /api/cooldowns/state
type StateResponse struct {
	cooldown.State
	CanResend bool `json:"can_resend"`
}

// StateHandler handles HTTP requests for cooldown state. A client that reconnects
// reads it once and then follows the WebSocket events.
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{stateProvider: provider}
}

// HandleGetState handles GET /api/cooldowns/state?session_id=...&flow=...
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID, err := uuid.Parse(r.URL.Query().Get("session_id"))
	if err != nil {
		http.Error(w, "invalid session_id format", http.StatusBadRequest)
		return
	}
	flow, err := cooldown.ParseFlow(r.URL.Query().Get("flow"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scope := cooldown.Scope{SessionID: sessionID, Flow: flow}
	state, err := h.stateProvider.State(r.Context(), scope)
	if err != nil {
		if errors.Is(err, cooldown.ErrUnknownFlow) || errors.Is(err, cooldown.ErrInvalidScope) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Str("scope", scope.String()).Msg("failed to get cooldown state")
		http.Error(w, "Failed to get cooldown state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(StateResponse{State: state, CanResend: state.CanResend()}); err != nil {
		log.Error().Err(err).Msg("failed to encode state response")
	}
}

// RegisterStateRoutes registers state routes with an HTTP mux
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/cooldowns/state", h.HandleGetState)
}
