package board

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Session is the attachment registry of one draft.
//
// The composition surface calls Stage when the user inserts a file and embeds
// the returned preview reference. The submission form calls Commit on save and
// Cleanup on cancel or after a successful save:
//
//	s := board.NewSession()
//	defer s.Cleanup()
//	a := s.Stage(file)
//	content := "<p>hi</p>" + board.Embed(a)
//	content, err := s.Commit(ctx, content, uploader)
//
// When the uploader implements Referencer, Commit also adds one reference per
// uploaded attachment so the upload service keeps the file; otherwise the
// caller must reference the URLs before the service's orphan sweep runs.
//
// A Session is safe for concurrent use. It is never shared between drafts.
type Session struct {
	opts   *options
	logger *slog.Logger
	otel   *otelInstrumentation

	mu      sync.Mutex
	entries map[string]*staged
	// generation changes on every Cleanup so an in-flight Commit can tell
	// that the registry it snapshotted is gone.
	generation uint64
	seq        uint64
}

// NewSession creates an empty draft session.
func NewSession(opts ...Option) *Session {
	o := newOptions(opts...)
	instr, err := newOtelInstrumentation(o)
	if err != nil {
		o.logger.Warn("board: otel metrics disabled", "error", err)
	}
	return &Session{
		opts:    o,
		logger:  o.logger,
		otel:    instr,
		entries: make(map[string]*staged),
	}
}

// Stage registers f with the draft and allocates its preview reference.
// It never touches the network and never fails. Size and type policy must be
// applied by the caller beforehand (see Limits). The PreviewStore's Allocate
// runs with the registry locked and must not call back into the session.
func (s *Session) Stage(src *File) Attachment {
	f := *src
	f.normalize()
	att := Attachment{
		ID:       uuid.NewString(),
		Name:     f.Name,
		Size:     f.Size,
		Kind:     ClassifyMediaKind(f.Name),
		MIMEType: f.MIMEType,
	}

	// Allocating under the lock orders Stage against Cleanup: the preview is
	// either released by a Cleanup that follows or belongs to the next draft.
	s.mu.Lock()
	att.PreviewRef = s.opts.previews.Allocate(f.Data, f.MIMEType)
	s.seq++
	s.entries[att.ID] = &staged{att: att, data: f.Data, seq: s.seq}
	s.mu.Unlock()

	s.logger.Debug("staged attachment", "id", att.ID, "filename", att.Name, "size", att.Size, "kind", att.Kind)
	return att
}

// Get returns a snapshot of the staged attachment with the given id.
func (s *Session) Get(id string) (Attachment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Attachment{}, false
	}
	return e.att, true
}

// Attachments returns snapshots of all staged attachments in staging order.
func (s *Session) Attachments() []Attachment {
	s.mu.Lock()
	entries := s.sortedLocked()
	s.mu.Unlock()

	out := make([]Attachment, len(entries))
	for i, e := range entries {
		out[i] = e.att
	}
	return out
}

// PendingCount returns the number of staged attachments.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// PendingBytes returns the total size of all staged attachments.
func (s *Session) PendingBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, e := range s.entries {
		total += e.att.Size
	}
	return total
}

// Cleanup releases every preview reference and empties the registry.
// It is idempotent and may run while a Commit is in flight; that commit then
// fails with ErrDraftAbandoned. Release failures are logged, never returned.
func (s *Session) Cleanup() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*staged)
	s.generation++
	s.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	for id, e := range entries {
		if err := s.opts.previews.Release(e.att.PreviewRef); err != nil {
			s.logger.Warn("failed to release preview", "error", err, "id", id, "ref", e.att.PreviewRef)
		}
	}
	s.logger.Debug("draft session cleaned up", "released", len(entries))
}

// sortedLocked returns registry entries in staging order. Caller holds s.mu.
func (s *Session) sortedLocked() []*staged {
	entries := make([]*staged, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}
