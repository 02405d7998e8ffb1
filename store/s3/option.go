package s3

import "log/slog"

const (
	DefaultRegion      = "us-east-1"
	DefaultPrefix      = "uploads"
	DefaultSessionName = "board-upload-store"
)

type options struct {
	bucket string
	prefix string
	region string

	// S3-compatible services (MinIO, LocalStack)
	endpoint     string
	usePathStyle bool

	accessKey    string
	secretKey    string
	sessionToken string

	roleARN         string
	roleSessionName string
	externalID      string

	logger *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		region:          DefaultRegion,
		prefix:          DefaultPrefix,
		roleSessionName: DefaultSessionName,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures the S3 store.
type Option func(*options)

// WithBucket sets the bucket name. Required.
func WithBucket(bucket string) Option {
	return func(o *options) {
		o.bucket = bucket
	}
}

// WithPrefix sets the key prefix. Default is "uploads".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithRegion sets the AWS region. Default is "us-east-1".
func WithRegion(region string) Option {
	return func(o *options) {
		if region != "" {
			o.region = region
		}
	}
}

// WithEndpoint sets a custom endpoint for S3-compatible services.
// pathStyle enables path-style addressing, which MinIO needs.
func WithEndpoint(endpoint string, pathStyle bool) Option {
	return func(o *options) {
		o.endpoint = endpoint
		o.usePathStyle = pathStyle
	}
}

// WithStaticCredentials sets an access key pair and an optional session token.
func WithStaticCredentials(accessKey, secretKey, sessionToken string) Option {
	return func(o *options) {
		o.accessKey = accessKey
		o.secretKey = secretKey
		o.sessionToken = sessionToken
	}
}

// WithAssumeRole makes the store assume roleARN through STS.
// externalID may be empty.
func WithAssumeRole(roleARN, externalID string) Option {
	return func(o *options) {
		o.roleARN = roleARN
		o.externalID = externalID
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
