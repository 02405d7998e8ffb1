// Package uploads implements the upload endpoint behind board sessions.
//
// A Manager stores file bytes in a store.FileStore and tracks each upload in
// a store.RecordStore. Identical content is stored once: uploads are keyed by
// a BLAKE2b-256 hash. Records start with a zero reference count; posts that
// keep an upload call AddRef, and RemoveRef deletes the upload when the last
// reference goes away. Uploads nobody referenced are removed by Sweep after a
// grace period.
//
// Handler exposes the manager over HTTP and Uploader adapts it to
// board.Uploader for in-process use.
package uploads

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rbaliyan/board"
	"github.com/rbaliyan/board/store"
	"github.com/rbaliyan/event/v3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/semaphore"
)

// Manager coordinates file and record storage for uploads.
type Manager struct {
	files   store.FileStore
	records store.RecordStore
	opts    *options
	logger  *slog.Logger

	writes *semaphore.Weighted
	cache  *lru.Cache[string, *store.Record]

	bus    *event.Bus
	events *Events

	connected int32
}

// NewManager creates a manager. Call Connect before use.
func NewManager(files store.FileStore, records store.RecordStore, opts ...Option) (*Manager, error) {
	if files == nil {
		return nil, ErrFileStoreRequired
	}
	if records == nil {
		return nil, ErrRecordStoreRequired
	}
	o := newOptions(opts...)

	m := &Manager{
		files:   files,
		records: records,
		opts:    o,
		logger:  o.logger,
		writes:  semaphore.NewWeighted(int64(o.maxConcurrentWrites)),
	}
	if o.recordCacheSize > 0 {
		cache, err := lru.New[string, *store.Record](o.recordCacheSize)
		if err != nil {
			return nil, fmt.Errorf("uploads: record cache: %w", err)
		}
		m.cache = cache
	}
	return m, nil
}

// Connect connects the record store and the event bus.
func (m *Manager) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&m.connected, 0, 1) {
		return ErrAlreadyConnected
	}
	if err := m.records.Connect(ctx); err != nil && !errors.Is(err, store.ErrAlreadyConnected) {
		atomic.StoreInt32(&m.connected, 0)
		return fmt.Errorf("connect record store: %w", err)
	}
	if err := m.initEventBus(ctx); err != nil {
		m.records.Close(ctx)
		atomic.StoreInt32(&m.connected, 0)
		return fmt.Errorf("init event bus: %w", err)
	}
	m.logger.Info("upload manager connected", "public_prefix", m.opts.publicPrefix)
	return nil
}

// Close closes the event bus and the record store. It waits for in-flight
// file writes until ctx is done.
func (m *Manager) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&m.connected, 1, 0) {
		return nil
	}

	var errs []error
	if err := m.writes.Acquire(ctx, int64(m.opts.maxConcurrentWrites)); err != nil {
		m.logger.Warn("timeout waiting for in-flight uploads", "error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown: %w", err))
	} else {
		m.writes.Release(int64(m.opts.maxConcurrentWrites))
	}
	if err := m.bus.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close event bus: %w", err))
	}
	if err := m.records.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close record store: %w", err))
	}
	return errors.Join(errs...)
}

// Events returns the manager's events. Nil before Connect.
func (m *Manager) Events() *Events {
	return m.events
}

// Limits returns the policy applied to accepted files.
func (m *Manager) Limits() board.Limits {
	return m.opts.limits
}

func (m *Manager) checkConnected() error {
	if atomic.LoadInt32(&m.connected) == 0 {
		return ErrNotConnected
	}
	return nil
}

// Upload stores f and returns its record. If an upload with identical
// content exists, that record is returned and nothing is written.
// Empty files are accepted. The record's reference count is not changed.
func (m *Manager) Upload(ctx context.Context, f *board.File) (*store.Record, error) {
	rec, _, err := m.upload(ctx, f)
	return rec, err
}

// UploadResult stores f like Upload and converts the record, reporting
// whether identical content was already stored.
func (m *Manager) UploadResult(ctx context.Context, f *board.File) (board.UploadResult, error) {
	rec, dedup, err := m.upload(ctx, f)
	if err != nil {
		return board.UploadResult{}, err
	}
	res := m.Result(rec)
	res.Deduplicated = dedup
	return res, nil
}

func (m *Manager) upload(ctx context.Context, f *board.File) (*store.Record, bool, error) {
	if err := m.checkConnected(); err != nil {
		return nil, false, err
	}
	if err := m.opts.limits.Check(f, 0); err != nil {
		return nil, false, err
	}

	hash := Hash(f.Data)
	if rec, err := m.records.GetByHash(ctx, hash); err == nil {
		m.logger.Debug("deduplicated upload", "id", rec.ID, "filename", f.Name)
		m.publishUploaded(ctx, m.uploadedEvent(rec, true))
		return rec, true, nil
	} else if !store.IsNotFound(err) {
		return nil, false, fmt.Errorf("lookup hash: %w", err)
	}

	mimeType := f.MIMEType
	if mimeType == "" {
		mimeType = board.DetectMIMEType(f.Name, f.Data)
	}

	if err := m.writes.Acquire(ctx, 1); err != nil {
		return nil, false, err
	}
	uri, err := m.files.Upload(ctx, f.Name, mimeType, bytes.NewReader(f.Data))
	m.writes.Release(1)
	if err != nil {
		return nil, false, fmt.Errorf("store file: %w", err)
	}

	rec := &store.Record{
		Filename:    f.Name,
		ContentType: mimeType,
		Kind:        string(board.ClassifyMediaKind(f.Name)),
		Size:        int64(len(f.Data)),
		URI:         uri,
		Hash:        hash,
	}
	if err := m.records.Create(ctx, rec); err != nil {
		m.deleteFile(ctx, uri)
		if store.IsDuplicateEntry(err) {
			// lost a race with an identical upload
			existing, gerr := m.records.GetByHash(ctx, hash)
			if gerr == nil {
				m.publishUploaded(ctx, m.uploadedEvent(existing, true))
				return existing, true, nil
			}
		}
		return nil, false, fmt.Errorf("create record: %w", err)
	}

	m.logger.Debug("stored upload", "id", rec.ID, "filename", rec.Filename, "size", rec.Size)
	m.publishUploaded(ctx, m.uploadedEvent(rec, false))
	return rec, false, nil
}

// Get returns the record with the given id.
func (m *Manager) Get(ctx context.Context, id string) (*store.Record, error) {
	if err := m.checkConnected(); err != nil {
		return nil, err
	}
	if m.cache != nil {
		if rec, ok := m.cache.Get(id); ok {
			return rec.Clone(), nil
		}
	}
	rec, err := m.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		m.cache.Add(id, rec.Clone())
	}
	return rec, nil
}

// Open returns the content and record of an upload.
// The caller must close the reader.
func (m *Manager) Open(ctx context.Context, id string) (io.ReadCloser, *store.Record, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := m.files.Load(ctx, rec.URI)
	if err != nil {
		if store.IsNotFound(err) {
			m.forget(id)
		}
		return nil, nil, fmt.Errorf("load file: %w", err)
	}
	return rc, rec, nil
}

// AddRef records one more post using the upload.
func (m *Manager) AddRef(ctx context.Context, id string) error {
	if err := m.checkConnected(); err != nil {
		return err
	}
	if err := m.records.IncrementRef(ctx, id); err != nil {
		return err
	}
	m.forget(id)
	return nil
}

// RemoveRef releases one reference and deletes the upload when none remain.
func (m *Manager) RemoveRef(ctx context.Context, id string) error {
	if err := m.checkConnected(); err != nil {
		return err
	}
	deleted, uri, err := m.records.DecrementRefAndDeleteIfZero(ctx, id)
	if err != nil {
		return fmt.Errorf("release upload: %w", err)
	}
	m.forget(id)
	if !deleted {
		return nil
	}
	if uri != "" {
		if err := m.files.Delete(ctx, uri); err != nil {
			return fmt.Errorf("delete file: %w", err)
		}
	}
	m.publishDeleted(ctx, FileDeletedEvent{ID: id, Reason: ReasonReleased, DeletedAt: time.Now().UTC()})
	return nil
}

// Delete removes an upload that no post references. It fails with ErrInUse otherwise.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.checkConnected(); err != nil {
		return err
	}
	return m.deleteUnreferenced(ctx, id, ReasonDeleted)
}

func (m *Manager) deleteUnreferenced(ctx context.Context, id, reason string) error {
	uri, err := m.records.DeleteIfUnreferenced(ctx, id)
	if err != nil {
		return err
	}
	m.forget(id)
	if err := m.files.Delete(ctx, uri); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	m.publishDeleted(ctx, FileDeletedEvent{ID: id, Reason: reason, DeletedAt: time.Now().UTC()})
	return nil
}

func (m *Manager) forget(id string) {
	if m.cache != nil {
		m.cache.Remove(id)
	}
}

// deleteFile removes a file written for a record that was never created.
func (m *Manager) deleteFile(ctx context.Context, uri string) {
	if err := m.files.Delete(context.WithoutCancel(ctx), uri); err != nil {
		m.logger.Warn("failed to delete orphaned file", "uri", uri, "error", err)
	}
}

// URL returns the public URL of rec: <prefix>/<id><ext>.
func (m *Manager) URL(rec *store.Record) string {
	return strings.TrimSuffix(m.opts.publicPrefix, "/") + "/" + rec.ID + strings.ToLower(path.Ext(rec.Filename))
}

// Result converts rec into the upload endpoint's response.
func (m *Manager) Result(rec *store.Record) board.UploadResult {
	return board.UploadResult{
		URL:      m.URL(rec),
		Filename: rec.Filename,
		Size:     rec.Size,
		Kind:     board.MediaKind(rec.Kind),
		MIMEType: rec.ContentType,
	}
}

func (m *Manager) uploadedEvent(rec *store.Record, dedup bool) FileUploadedEvent {
	return FileUploadedEvent{
		ID:           rec.ID,
		URL:          m.URL(rec),
		Filename:     rec.Filename,
		ContentType:  rec.ContentType,
		Kind:         rec.Kind,
		Size:         rec.Size,
		Deduplicated: dedup,
		UploadedAt:   time.Now().UTC(),
	}
}

// IDFromURL extracts the upload id from a URL or path produced by URL.
func IDFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return IDFromName(path.Base(u.Path))
}

// IDFromName extracts the upload id from the last URL segment, "<id><ext>".
func IDFromName(name string) (string, error) {
	id := strings.TrimSuffix(name, path.Ext(name))
	if id == "" || id == "." || id == "/" || strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, name)
	}
	return id, nil
}

// Hash returns the hex BLAKE2b-256 digest used to deduplicate uploads.
func Hash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
