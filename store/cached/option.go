package cached

import (
	"log/slog"
	"os"
	"time"
)

const (
	DefaultMaxSize = 1 << 30
	DefaultTTL     = 24 * time.Hour
)

type options struct {
	dir     string
	maxSize int64
	ttl     time.Duration
	logger  *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		dir:     os.TempDir(),
		maxSize: DefaultMaxSize,
		ttl:     DefaultTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures the cached store.
type Option func(*options)

// WithDir sets the parent directory of the cache. Default is os.TempDir().
func WithDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.dir = dir
		}
	}
}

// WithMaxSize bounds the cache in bytes. Default is 1GiB.
// Files that do not fit are served but not cached.
func WithMaxSize(size int64) Option {
	return func(o *options) {
		if size > 0 {
			o.maxSize = size
		}
	}
}

// WithTTL sets how long cached files stay valid. Default is 24h.
// Zero keeps files until they are deleted.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
