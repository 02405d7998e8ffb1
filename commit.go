package board

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// pendingUpload is a snapshot of a registry entry taken when a commit starts.
type pendingUpload struct {
	att  Attachment
	data []byte
}

func (p pendingUpload) file() *File {
	return &File{Name: p.att.Name, Size: p.att.Size, MIMEType: p.att.MIMEType, Data: p.data}
}

// Commit uploads every staged attachment that has no remote URL yet and
// returns content with all preview references replaced by remote URLs.
//
// Uploads run concurrently and the uploader is invoked at most once per
// attachment per call. If any upload fails the commit fails as a whole: an
// *UploadError naming every failed file is returned together with the
// unchanged content, and no attachment receives a remote URL. Uploads that did
// succeed in the failed attempt are removed when up implements Remover, except
// those the uploader reported as deduplicated.
// The registry is left intact, so Commit can simply be called again.
//
// If up implements Referencer, every new upload gets one reference before
// the content is rewritten; a reference failure fails the commit like an
// upload failure does.
//
// Attachments uploaded by an earlier successful commit are not uploaded again,
// but their references are still rewritten.
func (s *Session) Commit(ctx context.Context, content string, up Uploader) (string, error) {
	if up == nil {
		return content, ErrUploaderRequired
	}

	s.mu.Lock()
	gen := s.generation
	var pending []pendingUpload
	var pendingBytes int64
	for _, e := range s.sortedLocked() {
		if e.att.Uploaded() {
			continue
		}
		pending = append(pending, pendingUpload{att: e.att, data: e.data})
		pendingBytes += e.att.Size
	}
	s.mu.Unlock()

	ctx, end := s.otel.startCommit(ctx, len(pending), pendingBytes)
	out, err := s.commit(ctx, gen, content, pending, up)
	end(err)
	return out, err
}

func (s *Session) commit(ctx context.Context, gen uint64, content string, pending []pendingUpload, up Uploader) (string, error) {
	uploaded, err := s.uploadAll(ctx, pending, up)
	if err != nil {
		s.discard(ctx, up, uploaded, nil)
		return content, err
	}
	referenced, err := s.reference(ctx, up, pending, uploaded)
	if err != nil {
		s.discard(ctx, up, uploaded, referenced)
		return content, err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.discard(ctx, up, uploaded, referenced)
		return content, ErrDraftAbandoned
	}

	byRef := make(map[string]string, len(s.entries))
	byID := make(map[string]string, len(s.entries))
	superseded := make(map[string]UploadResult)
	for id, e := range s.entries {
		url := e.att.RemoteURL
		if fresh, ok := uploaded[id]; ok {
			if url == "" {
				url = fresh.URL
			} else {
				// A concurrent commit got there first; its URL stands.
				if fresh.URL == url {
					fresh.Deduplicated = true
				}
				superseded[id] = fresh
			}
		}
		if url == "" {
			continue
		}
		byRef[e.att.PreviewRef] = url
		byID[id] = url
	}

	rewritten, err := RewriteContent(content, byRef, byID)
	if err != nil {
		s.mu.Unlock()
		s.discard(ctx, up, uploaded, referenced)
		return content, fmt.Errorf("board: rewrite content: %w", err)
	}

	if s.opts.contentPolicy != nil {
		rewritten = s.opts.contentPolicy.Sanitize(rewritten)
	}

	for id, res := range uploaded {
		if e, ok := s.entries[id]; ok && e.att.RemoteURL == "" {
			e.att.RemoteURL = res.URL
		}
	}
	s.mu.Unlock()

	if len(superseded) > 0 {
		s.discard(ctx, up, superseded, referenced)
	}
	s.logger.Debug("draft committed", "uploaded", len(uploaded), "referenced", len(referenced), "rewritten", len(byRef))
	return rewritten, nil
}

// uploadAll fans out one upload per pending attachment and joins them.
// The first failure cancels the uploads still in flight. It returns the
// results of the uploads that succeeded, keyed by attachment id, even on failure.
func (s *Session) uploadAll(ctx context.Context, pending []pendingUpload, up Uploader) (map[string]UploadResult, error) {
	results := make([]UploadResult, len(pending))
	errs := make([]error, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	if n := s.opts.maxConcurrentUploads; n > 0 {
		g.SetLimit(n)
	}
	for i, p := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			res, err := up.Upload(gctx, p.file())
			if err == nil && res.URL == "" {
				err = ErrEmptyUploadURL
			}
			s.otel.recordUpload(ctx, p.att, err)
			if err != nil {
				s.logger.Debug("attachment upload failed", "id", p.att.ID, "filename", p.att.Name, "error", err)
				errs[i] = err
				return err
			}
			results[i] = res
			return nil
		})
	}
	waitErr := g.Wait()

	uploaded := make(map[string]UploadResult, len(pending))
	var failures []UploadFailure
	for i, p := range pending {
		if errs[i] != nil {
			failures = append(failures, UploadFailure{AttachmentID: p.att.ID, Filename: p.att.Name, Err: errs[i]})
			continue
		}
		if results[i].URL != "" {
			uploaded[p.att.ID] = results[i]
		}
	}
	if waitErr != nil || len(failures) > 0 {
		return uploaded, &UploadError{Failures: failures}
	}
	return uploaded, nil
}

// reference adds one reference per new upload when up implements Referencer.
// It returns the attachment ids that were referenced, even on failure.
func (s *Session) reference(ctx context.Context, up Uploader, pending []pendingUpload, uploaded map[string]UploadResult) (map[string]bool, error) {
	ref, ok := up.(Referencer)
	if !ok {
		return nil, nil
	}
	referenced := make(map[string]bool, len(uploaded))
	var failures []UploadFailure
	for _, p := range pending {
		res, ok := uploaded[p.att.ID]
		if !ok {
			continue
		}
		if err := ref.AddRef(ctx, res.URL); err != nil {
			failures = append(failures, UploadFailure{
				AttachmentID: p.att.ID,
				Filename:     p.att.Name,
				Err:          fmt.Errorf("%w: %w", ErrReferenceFailed, err),
			})
			continue
		}
		referenced[p.att.ID] = true
	}
	if len(failures) > 0 {
		return referenced, &UploadError{Failures: failures}
	}
	return referenced, nil
}

// discard undoes uploads no draft content will reference: references this
// commit added are released, and uploads it created are removed. Deduplicated
// uploads belong to whoever stored the content first and are left in place.
// Both steps are best effort; anything left behind is swept by the upload service.
func (s *Session) discard(ctx context.Context, up Uploader, results map[string]UploadResult, referenced map[string]bool) {
	if len(results) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if ref, ok := up.(Referencer); ok {
		for id, res := range results {
			if !referenced[id] {
				continue
			}
			if err := ref.ReleaseRef(ctx, res.URL); err != nil {
				s.logger.Warn("failed to release upload reference", "error", err, "url", res.URL)
			}
		}
	}

	var urls []string
	for _, res := range results {
		if !res.Deduplicated {
			urls = append(urls, res.URL)
		}
	}
	if len(urls) == 0 {
		return
	}
	rm, ok := up.(Remover)
	if !ok {
		s.logger.Warn("uploader cannot remove files; leaving orphaned uploads", "count", len(urls))
		return
	}
	for _, url := range urls {
		if err := rm.Remove(ctx, url); err != nil {
			s.logger.Warn("failed to remove orphaned upload", "error", err, "url", url)
		}
	}
}
