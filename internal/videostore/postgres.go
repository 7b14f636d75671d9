package videostore

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Config configures the Postgres-backed Store.
type Config struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	OperationTimeout    time.Duration
	ApplicationName     string
	SkipMigrations      bool
	Logger              *slog.Logger
}

// Option mutates a Config.
type Option func(*Config)

func WithPoolLimits(min, max int32) Option {
	return func(cfg *Config) {
		cfg.MinConnections = min
		cfg.MaxConnections = max
	}
}

func WithOperationTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.OperationTimeout = d
		}
	}
}

func WithApplicationName(name string) Option {
	return func(cfg *Config) { cfg.ApplicationName = name }
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		if logger != nil {
			cfg.Logger = logger
		}
	}
}

// WithSkipMigrations disables the automatic schema bootstrap on New,
// for deployments that apply migrations out of band.
func WithSkipMigrations() Option {
	return func(cfg *Config) { cfg.SkipMigrations = true }
}

const defaultOperationTimeout = 10 * time.Second

func newConfig(dsn string, opts ...Option) Config {
	cfg := Config{
		DSN:              dsn,
		MaxConnections:   10,
		MinConnections:   1,
		MaxConnLifetime:  30 * time.Minute,
		MaxConnIdleTime:  5 * time.Minute,
		OperationTimeout: defaultOperationTimeout,
		ApplicationName:  "videoingest-orchestrator",
		Logger:           slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// PostgresStore is the pgx/pgxpool-backed Store implementation.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

// New opens a pool against dsn, applies the embedded migrations unless
// disabled, and returns a ready Store.
func New(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("videostore: dsn is required")
	}
	cfg := newConfig(dsn, opts...)

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("videostore: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConnections
	poolCfg.MinConns = cfg.MinConnections
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ApplicationName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("videostore: open pool: %w", err)
	}

	store := &PostgresStore{pool: pool, timeout: cfg.OperationTimeout, logger: cfg.Logger}
	if !cfg.SkipMigrations {
		if err := store.applyMigrations(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return store, nil
}

func (s *PostgresStore) applyMigrations(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("videostore: read embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("videostore: read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("videostore: apply migration %s: %w", name, err)
		}
	}
	s.logger.Info("videostore: migrations applied", "count", len(names))
	return nil
}

func (s *PostgresStore) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity to the underlying Postgres pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

var _ Store = (*PostgresStore)(nil)
