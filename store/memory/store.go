// Package memory provides in-memory FileStore and RecordStore implementations.
// They are meant for tests and single-process development servers; nothing is persisted.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rbaliyan/board/store"
)

const fileScheme = "mem://"

// Files implements store.FileStore in memory.
type Files struct {
	mu    sync.RWMutex
	files map[string][]byte
}

var _ store.FileStore = (*Files)(nil)

// NewFiles creates an empty in-memory file store.
func NewFiles() *Files {
	return &Files{files: make(map[string][]byte)}
}

func (f *Files) Upload(ctx context.Context, filename, _ string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("memory: read content: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	uri := fileScheme + uuid.NewString() + "/" + filename
	f.mu.Lock()
	f.files[uri] = data
	f.mu.Unlock()
	return uri, nil
}

func (f *Files) Load(_ context.Context, uri string) (io.ReadCloser, error) {
	if !strings.HasPrefix(uri, fileScheme) {
		return nil, &store.URIError{URI: uri, Reason: "not a memory uri"}
	}
	f.mu.RLock()
	data, ok := f.files[uri]
	f.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *Files) Delete(_ context.Context, uri string) error {
	f.mu.Lock()
	delete(f.files, uri)
	f.mu.Unlock()
	return nil
}

// Len returns the number of stored files.
func (f *Files) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.files)
}

// connState is embedded by stores that require Connect before use.
type connState struct {
	connected int32
}

func (c *connState) connect() error {
	if !atomic.CompareAndSwapInt32(&c.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

func (c *connState) close() {
	atomic.StoreInt32(&c.connected, 0)
}

func (c *connState) check() error {
	if atomic.LoadInt32(&c.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}
