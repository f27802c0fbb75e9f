// Package kvstore provides the persistent key-value stores that countdown callers
// use to carry a cooldown across restarts.
package kvstore

import (
	"context"
	"errors"
)

// ErrEmptyKey is returned when an operation is given an empty key.
var ErrEmptyKey = errors.New("kvstore: empty key")

// Store gets, sets and removes single named string values.
// A missing key is reported by ok == false with a nil error, and removing a
// missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// WriterReporter is implemented by stores that record who last wrote a key.
type WriterReporter interface {
	Writer(ctx context.Context, key string) (attrs map[string]string, ok bool, err error)
}

func checkKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}
