package uploads

import (
	"log/slog"

	"github.com/rbaliyan/board"
	"github.com/rbaliyan/event/v3/transport"
	"github.com/redis/go-redis/v9"
)

// Default configuration values.
const (
	DefaultPublicPrefix        = "/uploads"
	DefaultMaxConcurrentWrites = 16
	DefaultSweepBatchSize      = 100
	DefaultRecordCacheSize     = 1024
	DefaultServiceName         = "board"
	// DefaultMaxMemory is the part of a multipart request kept in memory.
	DefaultMaxMemory = 32 << 20
)

type options struct {
	logger *slog.Logger
	limits board.Limits

	publicPrefix        string
	maxConcurrentWrites int
	sweepBatchSize      int
	recordCacheSize     int
	maxMemory           int64

	serviceName    string
	eventTransport transport.Transport
	redisClient    redis.UniversalClient
}

func newOptions(opts ...Option) *options {
	o := &options{
		logger:              slog.Default(),
		limits:              board.DefaultLimits(),
		publicPrefix:        DefaultPublicPrefix,
		maxConcurrentWrites: DefaultMaxConcurrentWrites,
		sweepBatchSize:      DefaultSweepBatchSize,
		recordCacheSize:     DefaultRecordCacheSize,
		maxMemory:           DefaultMaxMemory,
		serviceName:         DefaultServiceName,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a Manager.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLimits sets the size, count and kind policy for accepted files.
// Default is board.DefaultLimits().
func WithLimits(l board.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithPublicPrefix sets the URL path under which uploads are served.
// Default is "/uploads".
func WithPublicPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.publicPrefix = prefix
		}
	}
}

// WithMaxConcurrentWrites bounds concurrent file store writes. Default is 16.
func WithMaxConcurrentWrites(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentWrites = n
		}
	}
}

// WithSweepBatchSize sets how many records Sweep examines per batch. Default is 100.
func WithSweepBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sweepBatchSize = n
		}
	}
}

// WithRecordCache sets the size of the LRU cache of records served by id.
// Zero disables the cache. Default is 1024.
func WithRecordCache(size int) Option {
	return func(o *options) {
		if size >= 0 {
			o.recordCacheSize = size
		}
	}
}

// WithMaxMemory sets how much of a multipart request is buffered in memory
// before spilling to temporary files. Default is 32MiB.
func WithMaxMemory(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMemory = n
		}
	}
}

// WithServiceName sets the prefix of the event bus name. Default is "board".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithEventTransport publishes upload events on the given transport.
// Without a transport or Redis client, events are dropped.
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		o.eventTransport = t
	}
}

// WithRedisClient publishes upload events through Redis.
// Ignored when WithEventTransport is also set.
func WithRedisClient(c redis.UniversalClient) Option {
	return func(o *options) {
		o.redisClient = c
	}
}
