package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mcdev12/finoxa/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// DefaultTable is the table SQLStore uses unless WithTable is given.
const DefaultTable = "persistent_values"

// SQLStore keeps values in a Postgres table. Each row also records attributes
// describing the writer (for example the instance id), which makes it possible
// to spot two processes writing the same countdown key.
type SQLStore struct {
	db         *sql.DB
	table      string
	attributes pqtype.NullRawMessage
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore) error

// WithTable overrides the table name.
func WithTable(name string) SQLOption {
	return func(s *SQLStore) error {
		if name == "" {
			return errors.New("table name cannot be empty")
		}
		s.table = name
		return nil
	}
}

// WithWriterAttributes stores attrs as JSON alongside every value written.
func WithWriterAttributes(attrs map[string]string) SQLOption {
	return func(s *SQLStore) error {
		if len(attrs) == 0 {
			s.attributes = pqtype.NullRawMessage{}
			return nil
		}
		raw, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("failed to encode writer attributes: %w", err)
		}
		s.attributes = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
		return nil
	}
}

// NewSQLStore creates a SQLStore on db.
func NewSQLStore(db *sql.DB, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{db: db, table: DefaultTable}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// EnsureSchema creates the backing table and its index if they are missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	table := pq.QuoteIdentifier(s.table)
	index := pq.QuoteIdentifier(s.table + "_updated_at_idx")
	return sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		return sqlutil.ExecAll(ctx, tx,
			`CREATE TABLE IF NOT EXISTS `+table+` (
				key        TEXT PRIMARY KEY,
				value      TEXT NOT NULL,
				attributes JSONB,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS `+index+` ON `+table+` (updated_at)`,
		)
	})
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM `+pq.QuoteIdentifier(s.table)+` WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+pq.QuoteIdentifier(s.table)+` (key, value, attributes, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, attributes = EXCLUDED.attributes, updated_at = now()`,
		key, value, s.attributes,
	)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+pq.QuoteIdentifier(s.table)+` WHERE key = $1`, key,
	); err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

// Writer returns the attributes recorded by the last writer of key.
func (s *SQLStore) Writer(ctx context.Context, key string) (map[string]string, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	var attrs pqtype.NullRawMessage
	err := s.db.QueryRowContext(ctx,
		`SELECT attributes FROM `+pq.QuoteIdentifier(s.table)+` WHERE key = $1`, key,
	).Scan(&attrs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get writer of %q: %w", key, err)
	}
	if !attrs.Valid {
		return nil, true, nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal(attrs.RawMessage, &out); err != nil {
		return nil, true, fmt.Errorf("failed to decode writer attributes: %w", err)
	}
	return out, true, nil
}
