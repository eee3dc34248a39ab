package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/calendar-events/internal/config"
	"github.com/pfrederiksen/calendar-events/internal/kv"
	"github.com/pfrederiksen/calendar-events/internal/logger"
	"github.com/pfrederiksen/calendar-events/internal/store"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	backend    string
	dataDir    string
	format     string
	verbose    bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "calendar-events",
		Short: "Manage a persistent list of calendar events",
		Long: `A CLI tool to manage calendar events.
Every change is written through to the configured storage backend
(file, sqlite, redis or a GitHub Gist) under a single key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "~/.config/calendar-events/config.yaml", "Path to YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "Storage backend: memory, file, sqlite, redis or gist")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory for the file backend")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "Output format: text or json")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(
		newAddCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
		newListCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newServeCmd(opts),
		newGistInitCmd(opts),
	)

	return cmd
}

// outputFormat validates the --format flag.
func (o *rootOptions) outputFormat() (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(o.format))
	if format != FormatText && format != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", o.format)
	}
	return format, nil
}

// loadConfig reads the config file and environment, applies flag
// overrides and validates the result.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Read(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if o.backend != "" {
		cfg.Storage.Backend = o.backend
	}
	if o.dataDir != "" {
		cfg.Storage.DataDir = o.dataDir
		cfg.Storage.SQLitePath = filepath.Join(o.dataDir, "events.db")
	}
	if o.verbose {
		cfg.LogLevel = string(logger.LevelDebug)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is the per-invocation wiring: configuration, logger, backend and
// the hydrated store.
type session struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *logger.Metrics
	backend kv.Store
	store   *store.Store
}

func (o *rootOptions) open(ctx context.Context, stderr io.Writer) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log := logger.New(level, stderr)
	logger.SetDefault(log)
	metrics := logger.DefaultMetrics()

	log.Debug("opening storage", logger.Fields{
		"backend":   cfg.Storage.Backend,
		"key":       cfg.Storage.Key,
		"encrypted": cfg.Storage.EncryptionKey != "",
	})

	backend, err := kv.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	s := store.New(ctx, backend,
		store.WithKey(cfg.Storage.Key),
		store.WithLogger(log),
		store.WithMetrics(metrics),
	)
	if err := s.Err(); err != nil {
		_ = backend.Close()
		return nil, err
	}

	return &session{cfg: cfg, log: log, metrics: metrics, backend: backend, store: s}, nil
}

func (s *session) Close() error {
	return s.backend.Close()
}

// withSession opens a session for the duration of fn.
func (o *rootOptions) withSession(cmd *cobra.Command, fn func(*session) error) (err error) {
	sess, err := o.open(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing storage: %w", cerr)
		}
	}()
	return fn(sess)
}

// Execute runs the CLI
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, store.ErrPersist) {
			fmt.Fprintln(os.Stderr, "The change was not saved.")
		}
		stop()
		os.Exit(ExitError)
	}
}
