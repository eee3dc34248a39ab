package kv

import (
	"context"
	"fmt"

	"github.com/pfrederiksen/calendar-events/internal/crypto"
)

// Encrypted seals values before handing them to the wrapped store.
type Encrypted struct {
	inner Store
	enc   *crypto.Encryptor
}

// NewEncrypted wraps inner. With a nil encryptor values pass through as-is.
func NewEncrypted(inner Store, enc *crypto.Encryptor) *Encrypted {
	return &Encrypted{inner: inner, enc: enc}
}

func (e *Encrypted) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	plain, err := e.enc.Open(v)
	if err != nil {
		return "", false, fmt.Errorf("decrypting %s: %w", key, err)
	}
	return plain, true, nil
}

func (e *Encrypted) Set(ctx context.Context, key, value string) error {
	sealed, err := e.enc.Seal(value)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	return e.inner.Set(ctx, key, sealed)
}

func (e *Encrypted) Close() error {
	return e.inner.Close()
}
