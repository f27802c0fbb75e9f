package resendlog

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/mcdev12/finoxa/go/internal/cooldown"
	"github.com/rs/zerolog/log"
)

// History lists recorded attempts.
type History interface {
	Recent(ctx context.Context, sessionID uuid.UUID, flow cooldown.Flow, limit int) ([]Attempt, error)
}

// Handler serves GET /api/cooldowns/resends?session_id=...&flow=...&limit=...
type Handler struct {
	history History
}

func NewHandler(history History) *Handler {
	return &Handler{history: history}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/cooldowns/resends", h.HandleRecent)
}

func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	sessionID, err := uuid.Parse(q.Get("session_id"))
	if err != nil {
		http.Error(w, "Invalid session_id", http.StatusBadRequest)
		return
	}
	flow, err := cooldown.ParseFlow(q.Get("flow"))
	if err != nil {
		http.Error(w, "Invalid flow", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
	}

	attempts, err := h.history.Recent(r.Context(), sessionID, flow, limit)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to list resend attempts")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if attempts == nil {
		attempts = []Attempt{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(attempts); err != nil {
		log.Error().Err(err).Msg("failed to encode resend attempts")
	}
}
