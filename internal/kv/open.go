package kv

import (
	"context"
	"fmt"

	"github.com/pfrederiksen/calendar-events/internal/config"
	"github.com/pfrederiksen/calendar-events/internal/crypto"
)

// Open builds the backend selected by cfg, wrapped in Encrypted when an
// encryption key is configured.
func Open(ctx context.Context, cfg config.Storage) (Store, error) {
	if err := ValidateKey(cfg.Key); err != nil {
		return nil, err
	}

	var (
		s   Store
		err error
	)

	switch cfg.Backend {
	case config.BackendMemory:
		s = NewMemory()
	case config.BackendFile:
		s, err = NewFile(cfg.DataDir)
	case config.BackendSQLite:
		s, err = OpenSQLite(ctx, cfg.SQLitePath)
	case config.BackendRedis:
		r := NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err = r.Ping(ctx); err != nil {
			_ = r.Close()
		}
		s = r
	case config.BackendGist:
		s, err = NewGist(cfg.Gist.ID, cfg.Gist.Token)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Backend, err)
	}

	if cfg.EncryptionKey != "" {
		s = NewEncrypted(s, crypto.NewEncryptor(cfg.EncryptionKey))
	}
	return s, nil
}
