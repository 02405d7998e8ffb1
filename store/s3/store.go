// Package s3 stores uploaded files in AWS S3 or an S3-compatible service.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rbaliyan/board/store"
)

const scheme = "s3"

// Store implements store.FileStore on S3.
type Store struct {
	client *s3.Client
	tm     *transfermanager.Client
	bucket string
	prefix string
	logger *slog.Logger
}

var _ store.FileStore = (*Store)(nil)

// New creates an S3 file store.
// The context is used for credential loading.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := newOptions(opts...)
	if o.bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	awsCfg, err := loadConfig(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
			so.UsePathStyle = o.usePathStyle
		}
	})

	return &Store{
		client: client,
		tm:     transfermanager.New(client),
		bucket: o.bucket,
		prefix: o.prefix,
		logger: o.logger,
	}, nil
}

// loadConfig picks static keys, an assumed role, or the default credential chain.
func loadConfig(ctx context.Context, o *options) (aws.Config, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(o.region)}

	switch {
	case o.accessKey != "" && o.secretKey != "":
		creds := credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, o.sessionToken)
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))
	case o.roleARN != "":
		base, err := config.LoadDefaultConfig(ctx, config.WithRegion(o.region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("base config for role: %w", err)
		}
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), o.roleARN, func(ro *stscreds.AssumeRoleOptions) {
			ro.RoleSessionName = o.roleSessionName
			if o.externalID != "" {
				ro.ExternalID = aws.String(o.externalID)
			}
		})
		loadOpts = append(loadOpts, config.WithCredentialsProvider(aws.NewCredentialsCache(provider)))
	}

	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// Upload writes content under a fresh key and returns an s3://bucket/key URI.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	key := store.ObjectKey(s.prefix, filename)

	_, err := s.tm.UploadObject(ctx, &transfermanager.UploadObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        content,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3: upload %s: %w", key, err)
	}

	s.logger.Debug("stored upload in s3", "bucket", s.bucket, "key", key)
	return fmt.Sprintf("%s://%s/%s", scheme, s.bucket, key), nil
}

// Load streams the object behind uri.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := store.ParseURI(scheme, uri)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3: %s: %w", key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("s3: get %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes the object behind uri. Deleting a missing object succeeds.
func (s *Store) Delete(ctx context.Context, uri string) error {
	bucket, key, err := store.ParseURI(scheme, uri)
	if err != nil {
		return err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}

	s.logger.Debug("deleted upload from s3", "bucket", bucket, "key", key)
	return nil
}
