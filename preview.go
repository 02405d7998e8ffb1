package board

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPreviewPrefix prefixes references issued by MemoryPreviews.
const DefaultPreviewPrefix = "blob:board/"

// PreviewStore allocates local preview references for staged files.
// Allocate never fails; Release may, and callers treat that as non-fatal.
type PreviewStore interface {
	Allocate(data []byte, mimeType string) string
	Release(ref string) error
}

type preview struct {
	data     []byte
	mimeType string
	created  time.Time
}

// MemoryPreviews keeps preview content in process memory and serves it over HTTP.
// Mount it where the prefix points, e.g. with WithPreviewPrefix("/preview/").
type MemoryPreviews struct {
	prefix string

	mu       sync.RWMutex
	previews map[string]*preview
}

// Ensure MemoryPreviews implements PreviewStore.
var _ PreviewStore = (*MemoryPreviews)(nil)

// NewMemoryPreviews creates an empty preview store issuing references under prefix.
// An empty prefix uses DefaultPreviewPrefix.
func NewMemoryPreviews(prefix string) *MemoryPreviews {
	if prefix == "" {
		prefix = DefaultPreviewPrefix
	}
	return &MemoryPreviews{
		prefix:   prefix,
		previews: make(map[string]*preview),
	}
}

// Allocate stores data and returns a new, unique reference.
func (p *MemoryPreviews) Allocate(data []byte, mimeType string) string {
	ref := p.prefix + uuid.NewString()
	p.mu.Lock()
	p.previews[ref] = &preview{data: data, mimeType: mimeType, created: time.Now()}
	p.mu.Unlock()
	return ref
}

// Release frees the preview. Releasing an unknown reference returns ErrPreviewNotFound.
func (p *MemoryPreviews) Release(ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.previews[ref]; !ok {
		return ErrPreviewNotFound
	}
	delete(p.previews, ref)
	return nil
}

// Open returns the content and MIME type behind a live reference.
func (p *MemoryPreviews) Open(ref string) ([]byte, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pv, ok := p.previews[ref]
	if !ok {
		return nil, "", ErrPreviewNotFound
	}
	return pv.data, pv.mimeType, nil
}

// Len returns the number of live previews.
func (p *MemoryPreviews) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.previews)
}

// ServeHTTP serves a live preview. The request path is matched against the
// reference with the prefix's scheme and host stripped.
func (p *MemoryPreviews) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
	if name == "" {
		http.NotFound(w, r)
		return
	}
	p.mu.RLock()
	pv, ok := p.previews[p.prefix+name]
	p.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", pv.mimeType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, pv.created, bytes.NewReader(pv.data))
}
