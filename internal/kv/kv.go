package kv

import (
	"context"
	"fmt"
	"regexp"
)

// Store is a key-value store holding string values.
type Store interface {
	// Get returns the value for key. ok is false when the key has never been set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set overwrites the value for key.
	Set(ctx context.Context, key, value string) error
	// Close releases any resources held by the store.
	Close() error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateKey rejects keys that cannot be used as file names or gist file names.
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
