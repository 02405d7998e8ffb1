// Package gcs stores uploaded files in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/storage"
	"github.com/rbaliyan/board/store"
	"google.golang.org/api/option"
)

const (
	scheme     = "gs"
	storageRW  = "https://www.googleapis.com/auth/devstorage.read_write"
)

// Store implements store.FileStore on Google Cloud Storage.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

var _ store.FileStore = (*Store)(nil)

// New creates a GCS file store. Close releases the underlying client.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := newOptions(opts...)
	if o.bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}

	clientOpts, err := clientOptions(o)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}

	return &Store{
		client: client,
		bucket: o.bucket,
		prefix: o.prefix,
		logger: o.logger,
	}, nil
}

// clientOptions resolves explicit credentials; with none set, the client
// falls back to Application Default Credentials.
func clientOptions(o *options) ([]option.ClientOption, error) {
	var opts []option.ClientOption

	if o.credentialsJSON != nil || o.credentialsFile != "" {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{storageRW},
			CredentialsJSON: o.credentialsJSON,
			CredentialsFile: o.credentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs: detect credentials: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))
	}
	if o.endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.endpoint), option.WithoutAuthentication())
	}
	return opts, nil
}

// Upload writes content under a fresh key and returns a gs://bucket/key URI.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	key := store.ObjectKey(s.prefix, filename)

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, content); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs: finalize %s: %w", key, err)
	}

	s.logger.Debug("stored upload in gcs", "bucket", s.bucket, "key", key)
	return fmt.Sprintf("%s://%s/%s", scheme, s.bucket, key), nil
}

// Load streams the object behind uri.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := store.ParseURI(scheme, uri)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gcs: %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs: read %s: %w", key, err)
	}
	return r, nil
}

// Delete removes the object behind uri. Deleting a missing object succeeds.
func (s *Store) Delete(ctx context.Context, uri string) error {
	bucket, key, err := store.ParseURI(scheme, uri)
	if err != nil {
		return err
	}

	err = s.client.Bucket(bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: delete %s: %w", key, err)
	}

	s.logger.Debug("deleted upload from gcs", "bucket", bucket, "key", key)
	return nil
}

// Close closes the GCS client.
func (s *Store) Close() error {
	return s.client.Close()
}
