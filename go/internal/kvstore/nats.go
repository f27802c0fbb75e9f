package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig describes the JetStream key-value bucket behind a NATSStore.
type NATSConfig struct {
	Bucket   string
	TTL      time.Duration // 0 keeps values until removed
	Replicas int
}

// DefaultNATSConfig returns the bucket settings used by the cooldown service.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Bucket:   "COOLDOWN_COUNTERS",
		TTL:      24 * time.Hour,
		Replicas: 1,
	}
}

// NATSStore keeps values in a JetStream key-value bucket.
type NATSStore struct {
	kv jetstream.KeyValue
}

// NewNATSStore creates or updates the configured bucket and returns a store on it.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, cfg NATSConfig) (*NATSStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Persisted cooldown counters",
		TTL:         cfg.TTL,
		Replicas:    cfg.Replicas,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create key-value bucket %s: %w", cfg.Bucket, err)
	}
	return &NATSStore{kv: kv}, nil
}

func (s *NATSStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	entry, err := s.kv.Get(ctx, natsKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return string(entry.Value()), true, nil
}

func (s *NATSStore) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := s.kv.PutString(ctx, natsKey(key), value); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (s *NATSStore) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := s.kv.Delete(ctx, natsKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// natsKey maps a store key onto the bucket key alphabet. Bytes outside
// [-/_a-zA-Z0-9] are written as '=' followed by two hex digits, so distinct keys
// stay distinct and the result never holds a '.'.
func natsKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-', c == '/', c == '_':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}
