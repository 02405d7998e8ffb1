package local

import "log/slog"

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "uploads"

type options struct {
	prefix string
	logger *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures the local store.
type Option func(*options)

// WithPrefix sets the key prefix inside the directory. Default is "uploads".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
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
