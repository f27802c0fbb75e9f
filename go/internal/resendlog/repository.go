// Package resendlog keeps an audit trail of verification and recovery email
// resends in Postgres.
package resendlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/finoxa/go/internal/cooldown"
)

const defaultRecentLimit = 20

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Attempt is one stored resend.
type Attempt struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SessionID   uuid.UUID `db:"session_id" json:"session_id"`
	Flow        string    `db:"flow" json:"flow"`
	Email       string    `db:"email" json:"email"`
	Succeeded   bool      `db:"succeeded" json:"succeeded"`
	Error       *string   `db:"error" json:"error,omitempty"`
	RequestedAt time.Time `db:"requested_at" json:"requested_at"`
}

type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the resend_attempts table and its lookup index.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS resend_attempts (
			id           UUID PRIMARY KEY,
			session_id   UUID NOT NULL,
			flow         TEXT NOT NULL,
			email        TEXT NOT NULL,
			succeeded    BOOLEAN NOT NULL,
			error        TEXT,
			requested_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS resend_attempts_session_flow_idx
			ON resend_attempts (session_id, flow, requested_at DESC)`,
		`CREATE INDEX IF NOT EXISTS resend_attempts_email_idx
			ON resend_attempts (email, requested_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure resend_attempts schema: %w", err)
		}
	}
	return nil
}

// RecordResend stores attempt. It satisfies cooldown.AuditLog.
func (r *Repository) RecordResend(ctx context.Context, attempt cooldown.ResendAttempt) error {
	row := fromCooldown(attempt)
	_, err := r.db.Exec(ctx, `
		INSERT INTO resend_attempts (id, session_id, flow, email, succeeded, error, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.ID, row.SessionID, row.Flow, row.Email, row.Succeeded, row.Error, row.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert resend attempt: %w", err)
	}
	return nil
}

// Recent lists the latest attempts for a session and flow, newest first.
func (r *Repository) Recent(ctx context.Context, sessionID uuid.UUID, flow cooldown.Flow, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, flow, email, succeeded, error, requested_at
		FROM resend_attempts
		WHERE session_id = $1 AND flow = $2
		ORDER BY requested_at DESC
		LIMIT $3`,
		sessionID, string(flow), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query resend attempts: %w", err)
	}
	attempts, err := pgx.CollectRows(rows, pgx.RowToStructByName[Attempt])
	if err != nil {
		return nil, fmt.Errorf("failed to scan resend attempts: %w", err)
	}
	return attempts, nil
}

// CountSince returns how many successful resends went to email after since.
func (r *Repository) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM resend_attempts
		WHERE email = $1 AND succeeded AND requested_at >= $2`,
		email, since,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count resend attempts: %w", err)
	}
	return n, nil
}

func fromCooldown(a cooldown.ResendAttempt) Attempt {
	row := Attempt{
		ID:          a.ID,
		SessionID:   a.SessionID,
		Flow:        string(a.Flow),
		Email:       a.Email,
		Succeeded:   a.Err == nil,
		RequestedAt: a.RequestedAt.UTC(),
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.RequestedAt.IsZero() {
		row.RequestedAt = time.Now().UTC()
	}
	if a.Err != nil {
		msg := a.Err.Error()
		row.Error = &msg
	}
	return row
}

var _ cooldown.AuditLog = (*Repository)(nil)
