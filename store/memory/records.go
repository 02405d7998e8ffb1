package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/board/store"
)

// Records implements store.RecordStore in memory.
// A single mutex makes every reference-count update atomic.
type Records struct {
	connState

	mu     sync.Mutex
	byID   map[string]*store.Record
	byHash map[string]string
}

var _ store.RecordStore = (*Records)(nil)

// NewRecords creates an empty in-memory record store.
func NewRecords() *Records {
	return &Records{
		byID:   make(map[string]*store.Record),
		byHash: make(map[string]string),
	}
}

func (r *Records) Connect(_ context.Context) error {
	return r.connect()
}

func (r *Records) Close(_ context.Context) error {
	r.close()
	return nil
}

func (r *Records) Create(_ context.Context, rec *store.Record) error {
	if err := r.check(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Hash != "" {
		if _, ok := r.byHash[rec.Hash]; ok {
			return store.ErrDuplicateEntry
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, ok := r.byID[rec.ID]; ok {
		return store.ErrDuplicateEntry
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	r.byID[rec.ID] = rec.Clone()
	if rec.Hash != "" {
		r.byHash[rec.Hash] = rec.ID
	}
	return nil
}

func (r *Records) Get(_ context.Context, id string) (*store.Record, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *Records) GetByHash(_ context.Context, hash string) (*store.Record, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *Records) IncrementRef(_ context.Context, id string) error {
	if err := r.check(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.RefCount++
	return nil
}

func (r *Records) DecrementRefAndDeleteIfZero(_ context.Context, id string) (bool, string, error) {
	if err := r.check(); err != nil {
		return false, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return false, "", store.ErrNotFound
	}
	rec.RefCount--
	if rec.RefCount > 0 {
		return false, "", nil
	}
	r.removeLocked(rec)
	return true, rec.URI, nil
}

func (r *Records) DeleteIfUnreferenced(_ context.Context, id string) (string, error) {
	if err := r.check(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return "", store.ErrNotFound
	}
	if rec.RefCount > 0 {
		return "", store.ErrInUse
	}
	r.removeLocked(rec)
	return rec.URI, nil
}

func (r *Records) ListUnreferenced(_ context.Context, before time.Time, limit int) ([]*store.Record, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	var out []*store.Record
	for _, rec := range r.byID {
		if rec.RefCount <= 0 && rec.CreatedAt.Before(before) {
			out = append(out, rec.Clone())
		}
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *store.Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Records) removeLocked(rec *store.Record) {
	delete(r.byID, rec.ID)
	if rec.Hash != "" {
		delete(r.byHash, rec.Hash)
	}
}
