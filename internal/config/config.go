// Package config loads calendar-events settings from an optional YAML file
// and environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage backends understood by kv.Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendGist   = "gist"
)

// DefaultKey is the single storage key holding the serialized collection.
const DefaultKey = "calendar-events"

// RedisConfig describes a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

// GistConfig describes a GitHub Gist used as a remote blob store.
type GistConfig struct {
	ID    string `yaml:"id" env:"ID"`
	Token string `yaml:"token" env:"TOKEN"`
}

// Storage selects and configures the backing key-value store.
type Storage struct {
	// Backend is one of memory, file, sqlite, redis or gist.
	Backend string `yaml:"backend" env:"BACKEND"`
	// Key is the storage key holding the event collection.
	Key string `yaml:"key" env:"KEY"`
	// DataDir is where the file backend keeps one JSON file per key.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`

	Redis RedisConfig `yaml:"redis" envPrefix:"REDIS_"`
	Gist  GistConfig  `yaml:"gist" envPrefix:"GIST_"`

	// EncryptionKey, when set, seals stored values with AES-GCM.
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
}

// Config is the top-level configuration.
type Config struct {
	Storage  Storage `yaml:"storage" envPrefix:"CALENDAR_EVENTS_"`
	LogLevel string  `yaml:"log_level" env:"CALENDAR_EVENTS_LOG_LEVEL"`
	Listen   string  `yaml:"listen" env:"CALENDAR_EVENTS_LISTEN"`
	Timezone string  `yaml:"timezone" env:"CALENDAR_EVENTS_TIMEZONE"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: Storage{
			Backend:    BackendFile,
			Key:        DefaultKey,
			DataDir:    "~/.local/share/calendar-events",
			SQLitePath: "~/.local/share/calendar-events/events.db",
		},
		LogLevel: "info",
		Listen:   "127.0.0.1:8080",
		Timezone: "UTC",
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Storage.Key == "" {
		c.Storage.Key = def.Storage.Key
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = def.Storage.DataDir
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = def.Storage.SQLitePath
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
}

// Validate checks backend-specific requirements.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendFile, BackendSQLite:
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("redis backend requires storage.redis.addr")
		}
	case BackendGist:
		if c.Storage.Gist.ID == "" {
			return errors.New("gist backend requires storage.gist.id")
		}
		if c.Storage.Gist.Token == "" {
			return errors.New("gist backend requires storage.gist.token")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured display timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads the configuration like Read and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads the YAML file at path (skipped when path is empty or the file
// does not exist), applies environment overrides and normalizes. It does not
// validate, so callers can apply further overrides first.
func Read(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(ExpandHome(path))
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Normalize()
	return cfg, nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
