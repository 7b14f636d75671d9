// Package uploadsession is the Upload Session Manager (§4.3): session
// selection (single-PUT vs multipart), presigned URL minting and refresh,
// per-part checksum registry, completion validation, and abort. It owns
// the UploadSession row exclusively (§3.4) and talks to the object store
// only through internal/objectstore.Store.
package uploadsession

import (
	"time"

	"github.com/google/uuid"
)

const (
	defaultMultipartThreshold    = 100 << 20 // 100 MiB
	defaultMultipartChunkBytes   = 50 << 20  // 50 MiB
	minPartBytes                 = 5 << 20   // 5 MiB
	maxPartBytes                 = 5 << 30   // 5 GiB
	defaultMaxParts              = 10000
	defaultPresignTTL            = time.Hour
	defaultValidationParallelism = 5
	defaultValidationWall        = 120 * time.Second
)

// Config holds the §6.4 thresholds governing session selection and
// completion validation.
type Config struct {
	MultipartThreshold    int64
	MultipartChunkBytes   int64
	MaxParts              int
	PresignTTL            time.Duration
	ValidationParallelism int
	ValidationWall        time.Duration
	PersistSingleAsSession bool
}

// Option mutates a Config.
type Option func(*Config)

func WithMultipartThreshold(bytes int64) Option {
	return func(cfg *Config) {
		if bytes > 0 {
			cfg.MultipartThreshold = bytes
		}
	}
}

func WithMultipartChunkBytes(bytes int64) Option {
	return func(cfg *Config) {
		if bytes > 0 {
			cfg.MultipartChunkBytes = bytes
		}
	}
}

func WithMaxParts(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxParts = n
		}
	}
}

func WithPresignTTL(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.PresignTTL = d
		}
	}
}

func WithValidationParallelism(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.ValidationParallelism = n
		}
	}
}

func WithValidationWall(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.ValidationWall = d
		}
	}
}

// WithPersistSingleAsSession controls the §9.1 open-question resolution:
// whether single-PUT uploads always materialize an UploadSession row.
// Default true.
func WithPersistSingleAsSession(persist bool) Option {
	return func(cfg *Config) { cfg.PersistSingleAsSession = persist }
}

func newConfig(opts ...Option) Config {
	cfg := Config{
		MultipartThreshold:     defaultMultipartThreshold,
		MultipartChunkBytes:    defaultMultipartChunkBytes,
		MaxParts:               defaultMaxParts,
		PresignTTL:             defaultPresignTTL,
		ValidationParallelism:  defaultValidationParallelism,
		ValidationWall:         defaultValidationWall,
		PersistSingleAsSession: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func newID() string {
	return uuid.NewString()
}
