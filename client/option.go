package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rbaliyan/board/retry"
)

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 60 * time.Second

type options struct {
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
	timeout    time.Duration
	token      string
	headers    http.Header
}

func newOptions(opts ...Option) *options {
	o := &options{
		httpClient: http.DefaultClient,
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default(),
		timeout:    DefaultTimeout,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a Client.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithRetryPolicy sets how failed requests are retried.
// Use retry.NoRetry() to disable retries.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTimeout bounds each attempt. Default is 60s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithToken sends "Authorization: Bearer <token>" with every request.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers.Add(key, value)
	}
}
