package board

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// referencingUploader adds reference counting to fakeUploader.
type referencingUploader struct {
	*fakeUploader
	refMu   sync.Mutex
	refs    map[string]int
	failRef map[string]error
}

func newReferencingUploader() *referencingUploader {
	return &referencingUploader{
		fakeUploader: newFakeUploader(),
		refs:         make(map[string]int),
		failRef:      make(map[string]error),
	}
}

func (u *referencingUploader) AddRef(_ context.Context, url string) error {
	u.refMu.Lock()
	defer u.refMu.Unlock()
	for suffix, err := range u.failRef {
		if strings.HasSuffix(url, suffix) {
			return err
		}
	}
	u.refs[url]++
	return nil
}

func (u *referencingUploader) ReleaseRef(_ context.Context, url string) error {
	u.refMu.Lock()
	defer u.refMu.Unlock()
	u.refs[url]--
	return nil
}

func (u *referencingUploader) totalRefs() int {
	u.refMu.Lock()
	defer u.refMu.Unlock()
	n := 0
	for _, c := range u.refs {
		n += c
	}
	return n
}

func (u *referencingUploader) refCount(url string) int {
	u.refMu.Lock()
	defer u.refMu.Unlock()
	return u.refs[url]
}

func TestCommitReferences(t *testing.T) {
	ctx := context.Background()

	t.Run("one reference per upload", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		up := newReferencingUploader()

		a := s.Stage(mustFile("a.png", "png"))
		b := s.Stage(mustFile("b.pdf", "pdf"))
		content := Embed(a) + Embed(a) + Embed(b)

		if _, err := s.Commit(ctx, content, up); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, id := range []string{a.ID, b.ID} {
			got, _ := s.Get(id)
			if up.refCount(got.RemoteURL) != 1 {
				t.Errorf("expected 1 reference for %s, got %d", got.RemoteURL, up.refCount(got.RemoteURL))
			}
		}

		// Nothing pending: a second commit adds no references.
		if _, err := s.Commit(ctx, content, up); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if up.totalRefs() != 2 {
			t.Errorf("expected 2 references, got %d", up.totalRefs())
		}
	})

	t.Run("reference failure fails the commit", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		up := newReferencingUploader()
		up.failRef["b.pdf"] = errors.New("record gone")

		a := s.Stage(mustFile("a.png", "png"))
		s.Stage(mustFile("b.pdf", "pdf"))
		content := Embed(a)

		out, err := s.Commit(ctx, content, up)
		if !errors.Is(err, ErrReferenceFailed) || !errors.Is(err, ErrUploadFailed) {
			t.Fatalf("expected reference failure, got %v", err)
		}
		ue, ok := IsUploadError(err)
		if !ok || len(ue.Failures) != 1 || ue.Failures[0].Filename != "b.pdf" {
			t.Errorf("expected b.pdf to be named, got %v", err)
		}
		if out != content {
			t.Errorf("content changed on failure: %q", out)
		}
		if up.totalRefs() != 0 {
			t.Errorf("expected references released, got %d", up.totalRefs())
		}
		if removed := up.removedURLs(); len(removed) != 2 {
			t.Errorf("expected both uploads removed, got %v", removed)
		}
		for _, att := range s.Attachments() {
			if att.Uploaded() {
				t.Errorf("%s got a remote url from a failed commit", att.Name)
			}
		}
	})

	t.Run("deduplicated uploads are never removed", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		up := newReferencingUploader()
		up.dedup["copy.png"] = true
		up.setFail("bad.txt", errors.New("boom"))

		s.Stage(mustFile("copy.png", "shared"))
		s.Stage(mustFile("fresh.png", "fresh"))
		s.Stage(mustFile("bad.txt", "bad"))

		if _, err := s.Commit(ctx, "", up); !errors.Is(err, ErrUploadFailed) {
			t.Fatalf("expected ErrUploadFailed, got %v", err)
		}
		for _, url := range up.removedURLs() {
			if strings.HasSuffix(url, "copy.png") {
				t.Errorf("deduplicated upload %s was removed", url)
			}
		}
	})

	t.Run("abandon releases references", func(t *testing.T) {
		s := NewSession()
		up := newReferencingUploader()
		up.block = make(chan struct{})

		s.Stage(mustFile("a.png", "png"))
		done := make(chan error, 1)
		go func() {
			_, err := s.Commit(ctx, "", up)
			done <- err
		}()

		deadline := time.Now().Add(5 * time.Second)
		for up.callCount("a.png") == 0 {
			if time.Now().After(deadline) {
				t.Fatal("upload never started")
			}
			time.Sleep(time.Millisecond)
		}
		s.Cleanup()
		close(up.block)

		if err := <-done; !errors.Is(err, ErrDraftAbandoned) {
			t.Errorf("expected ErrDraftAbandoned, got %v", err)
		}
		if up.totalRefs() != 0 {
			t.Errorf("expected no references left, got %d", up.totalRefs())
		}
	})
}
