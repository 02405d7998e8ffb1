// Package local stores uploaded files in a directory on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/rbaliyan/board/store"
)

const scheme = "local://"

// Store implements store.FileStore in a directory.
// URIs have the form local://<key>; keys cannot escape the directory.
type Store struct {
	root   *os.Root
	prefix string
	logger *slog.Logger
}

var _ store.FileStore = (*Store)(nil)

// New opens dir, creating it if needed. Close releases the directory handle.
func New(dir string, opts ...Option) (*Store, error) {
	o := newOptions(opts...)
	if dir == "" {
		return nil, errors.New("local: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local: create %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("local: open %s: %w", dir, err)
	}
	return &Store{root: root, prefix: o.prefix, logger: o.logger}, nil
}

// Upload writes content to a temp file and renames it into place, so readers
// never observe a partial file.
func (s *Store) Upload(ctx context.Context, filename, _ string, content io.Reader) (string, error) {
	key := store.ObjectKey(s.prefix, filename)
	if err := s.root.MkdirAll(path.Dir(key), 0o755); err != nil {
		return "", fmt.Errorf("local: mkdir: %w", err)
	}

	tmp := key + ".part"
	f, err := s.root.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("local: create: %w", err)
	}
	_, err = io.Copy(f, contextReader{ctx: ctx, r: content})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = s.root.Rename(tmp, key)
	}
	if err != nil {
		_ = s.root.Remove(tmp)
		return "", fmt.Errorf("local: write %s: %w", key, err)
	}

	s.logger.Debug("stored upload on disk", "key", key)
	return scheme + key, nil
}

func (s *Store) Load(_ context.Context, uri string) (io.ReadCloser, error) {
	key, err := parse(uri)
	if err != nil {
		return nil, err
	}
	f, err := s.root.Open(key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("local: %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("local: open %s: %w", key, err)
	}
	return f, nil
}

// Delete removes the file behind uri. Deleting a missing file succeeds.
func (s *Store) Delete(_ context.Context, uri string) error {
	key, err := parse(uri)
	if err != nil {
		return err
	}
	if err := s.root.Remove(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local: delete %s: %w", key, err)
	}
	s.logger.Debug("deleted upload from disk", "key", key)
	return nil
}

// Close releases the directory handle.
func (s *Store) Close() error {
	return s.root.Close()
}

func parse(uri string) (string, error) {
	key, ok := strings.CutPrefix(uri, scheme)
	if !ok || key == "" {
		return "", &store.URIError{URI: uri, Reason: "expected local scheme"}
	}
	return key, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
