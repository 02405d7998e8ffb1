// Package cached keeps a local disk copy of files read from a slower FileStore.
package cached

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rbaliyan/board/store"
	"golang.org/x/crypto/blake2b"
)

// Store wraps a store.FileStore with a size-bounded, TTL-expiring disk cache.
// Uploads go straight to the backend; files are cached on their first full read.
type Store struct {
	backend store.FileStore
	dir     string
	maxSize int64
	ttl     time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	size int64

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ store.FileStore = (*Store)(nil)

// New wraps backend. Close stops the expiry loop.
func New(backend store.FileStore, opts ...Option) (*Store, error) {
	o := newOptions(opts...)

	dir := filepath.Join(o.dir, "board-uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cached: create cache dir: %w", err)
	}

	s := &Store{
		backend: backend,
		dir:     dir,
		maxSize: o.maxSize,
		ttl:     o.ttl,
		logger:  o.logger,
		stop:    make(chan struct{}),
	}
	s.size = s.scan()

	if s.ttl > 0 {
		s.wg.Add(1)
		go s.expireLoop()
	}
	return s, nil
}

func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	return s.backend.Upload(ctx, filename, contentType, content)
}

// Load serves uri from the cache when a fresh copy exists, otherwise from the
// backend while copying it into the cache.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	p := s.path(uri)

	if info, err := os.Stat(p); err == nil {
		if s.fresh(info.ModTime()) {
			if f, err := os.Open(p); err == nil {
				s.logger.Debug("cache hit", "uri", uri)
				now := time.Now()
				_ = os.Chtimes(p, now, now)
				return f, nil
			}
		} else {
			s.evict(p, info.Size())
		}
	}

	s.logger.Debug("cache miss", "uri", uri)
	rc, err := s.backend.Load(ctx, uri)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.dir, "tmp-*")
	if err != nil {
		s.logger.Warn("cache temp file", "error", err)
		return rc, nil
	}
	return &teeReader{src: rc, tmp: tmp, dst: p, store: s}, nil
}

// Delete removes uri from the cache and the backend.
func (s *Store) Delete(ctx context.Context, uri string) error {
	p := s.path(uri)
	if info, err := os.Stat(p); err == nil {
		s.evict(p, info.Size())
	}
	return s.backend.Delete(ctx, uri)
}

// Size reports the bytes currently held in the cache.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Clear removes every cached file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("cached: read cache dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			_ = os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
	s.size = 0
	return nil
}

// Close stops the expiry loop. It does not close the backend.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

func (s *Store) path(uri string) string {
	sum := blake2b.Sum256([]byte(uri))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:]))
}

func (s *Store) fresh(mod time.Time) bool {
	return s.ttl <= 0 || time.Since(mod) < s.ttl
}

func (s *Store) evict(p string, size int64) {
	if err := os.Remove(p); err == nil {
		s.grow(-size)
	}
}

// reserve claims n bytes of cache space.
func (s *Store) reserve(n int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size+n > s.maxSize {
		return false
	}
	s.size += n
	return true
}

func (s *Store) grow(delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = max(s.size+delta, 0)
}

func (s *Store) scan() int64 {
	var total int64
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("cache scan", "error", err)
		return 0
	}
	for _, e := range entries {
		if info, err := e.Info(); err == nil && !e.IsDir() {
			total += info.Size()
		}
	}
	return total
}

func (s *Store) expireLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.expire()
		}
	}
}

func (s *Store) expire() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("cache expire", "error", err)
		return
	}

	var removed int
	var freed int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || e.IsDir() || s.fresh(info.ModTime()) {
			continue
		}
		if os.Remove(filepath.Join(s.dir, e.Name())) == nil {
			removed++
			freed += info.Size()
		}
	}
	if removed > 0 {
		s.grow(-freed)
		s.logger.Info("cache expired", "removed", removed, "freed_bytes", freed)
	}
}

// teeReader copies the backend stream into a temp file and promotes it into
// the cache on Close, but only when the stream was read to EOF.
type teeReader struct {
	src   io.ReadCloser
	tmp   *os.File
	dst   string
	store *Store

	n       int64
	eof     bool
	failed  bool
	closed  bool
}

func (r *teeReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 && !r.failed {
		if _, werr := r.tmp.Write(p[:n]); werr != nil {
			r.failed = true
		}
		r.n += int64(n)
	}
	if errors.Is(err, io.EOF) {
		r.eof = true
	}
	return n, err
}

func (r *teeReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	srcErr := r.src.Close()
	tmpName := r.tmp.Name()
	if err := r.tmp.Close(); err != nil || !r.eof || r.failed || !r.store.reserve(r.n) {
		_ = os.Remove(tmpName)
		return srcErr
	}
	if err := os.Rename(tmpName, r.dst); err != nil {
		_ = os.Remove(tmpName)
		r.store.grow(-r.n)
		r.store.logger.Warn("cache promote", "error", err)
		return srcErr
	}
	r.store.logger.Debug("cached upload", "path", r.dst, "size", r.n)
	return srcErr
}
