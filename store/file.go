// Package store defines the storage interfaces used by the upload service:
// FileStore holds file bytes, RecordStore holds upload records.
package store

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStore handles the actual file storage operations.
// Implementations can support S3, GCS, local filesystem, memory, etc.
type FileStore interface {
	// Upload stores content and returns a URI for later retrieval.
	Upload(ctx context.Context, filename, contentType string, content io.Reader) (uri string, err error)

	// Load returns a reader for the file content.
	// Caller is responsible for closing the reader.
	Load(ctx context.Context, uri string) (io.ReadCloser, error)

	// Delete removes the file from storage.
	Delete(ctx context.Context, uri string) error
}

// ObjectKey builds a unique, date-partitioned object key for filename under prefix.
func ObjectKey(prefix, filename string) string {
	now := time.Now().UTC()
	return path.Join(prefix, now.Format("2006/01/02"), uuid.NewString(), path.Base(filename))
}

// ParseURI splits a "scheme://bucket/key" URI. It fails with ErrInvalidURI when
// the scheme does not match or the key is missing.
func ParseURI(scheme, uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, scheme+"://")
	if !ok {
		return "", "", &URIError{URI: uri, Reason: "expected " + scheme + " scheme"}
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", &URIError{URI: uri, Reason: "missing bucket or key"}
	}
	return bucket, key, nil
}
