package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeUploader records calls, fails configured filenames and remembers removals.
type fakeUploader struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]error
	dedup   map[string]bool
	removed []string
	seq     atomic.Int64
	// block, when set, is waited on before every upload returns.
	block chan struct{}
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{calls: make(map[string]int), fail: make(map[string]error), dedup: make(map[string]bool)}
}

func (u *fakeUploader) Upload(ctx context.Context, f *File) (UploadResult, error) {
	u.mu.Lock()
	u.calls[f.Name]++
	err := u.fail[f.Name]
	dup := u.dedup[f.Name]
	u.mu.Unlock()

	if u.block != nil {
		select {
		case <-u.block:
		case <-ctx.Done():
			return UploadResult{}, ctx.Err()
		}
	}
	if err != nil {
		return UploadResult{}, err
	}
	n := u.seq.Add(1)
	return UploadResult{
		URL:          fmt.Sprintf("/uploads/%d-%s", n, f.Name),
		Filename:     f.Name,
		Size:         f.Size,
		Kind:         ClassifyMediaKind(f.Name),
		MIMEType:     f.MIMEType,
		Deduplicated: dup,
	}, nil
}

func (u *fakeUploader) Remove(_ context.Context, url string) error {
	u.mu.Lock()
	u.removed = append(u.removed, url)
	u.mu.Unlock()
	return nil
}

func (u *fakeUploader) callCount(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[name]
}

func (u *fakeUploader) setFail(name string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err == nil {
		delete(u.fail, name)
		return
	}
	u.fail[name] = err
}

func (u *fakeUploader) removedURLs() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.removed...)
}

func TestCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("requires uploader", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		out, err := s.Commit(ctx, "<p>x</p>", nil)
		if !errors.Is(err, ErrUploaderRequired) {
			t.Errorf("expected ErrUploaderRequired, got %v", err)
		}
		if out != "<p>x</p>" {
			t.Errorf("expected unchanged content, got %q", out)
		}
	})

	t.Run("uploads and rewrites every reference", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		up := newFakeUploader()

		img := s.Stage(mustFile("a.png", "png"))
		doc := s.Stage(mustFile("b.pdf", "pdf"))
		content := "<p>hello</p>" + Embed(img) + Embed(doc)

		out, err := s.Commit(ctx, content, up)
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		for _, a := range []Attachment{img, doc} {
			if strings.Contains(out, a.PreviewRef) {
				t.Errorf("preview ref %s left in content", a.PreviewRef)
			}
			got, _ := s.Get(a.ID)
			if !got.Uploaded() {
				t.Fatalf("attachment %s not uploaded", a.Name)
			}
			if !strings.Contains(out, got.RemoteURL) {
				t.Errorf("expected %s in content %q", got.RemoteURL, out)
			}
			if up.callCount(a.Name) != 1 {
				t.Errorf("expected 1 upload of %s, got %d", a.Name, up.callCount(a.Name))
			}
		}
		if strings.Contains(out, MarkerAttr) {
			t.Errorf("marker left in content %q", out)
		}
		if !strings.Contains(out, "<p>hello</p>") {
			t.Errorf("surrounding content lost: %q", out)
		}
	})

	t.Run("rewrites repeated references", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		up := newFakeUploader()

		a := s.Stage(mustFile("a.png", "png"))
		content := fmt.Sprintf(`<img src="%[1]s"><p>between</p><img src="%[1]s"><a href="%[1]s">link</a>`, a.PreviewRef)

		out, err := s.Commit(ctx, content, up)
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		got, _ := s.Get(a.ID)
		if n := strings.Count(out, got.RemoteURL); n != 3 {
			t.Errorf("expected 3 rewritten references, got %d in %q", n, out)
		}
	})

	t.Run("all or nothing on failure", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		up := newFakeUploader()
		up.setFail("b.pdf", errors.New("network down"))

		img := s.Stage(mustFile("a.png", "png"))
		doc := s.Stage(mustFile("b.pdf", "pdf"))
		content := Embed(img) + Embed(doc)

		out, err := s.Commit(ctx, content, up)
		ue, ok := IsUploadError(err)
		if !ok {
			t.Fatalf("expected UploadError, got %v", err)
		}
		if !errors.Is(err, ErrUploadFailed) {
			t.Error("expected error to wrap ErrUploadFailed")
		}
		names := ue.Filenames()
		if len(names) == 0 || !containsString(names, "b.pdf") {
			t.Errorf("expected b.pdf among failures, got %v", names)
		}
		if out != content {
			t.Errorf("expected unchanged content on failure")
		}
		for _, a := range s.Attachments() {
			if a.Uploaded() {
				t.Errorf("attachment %s got a remote url from a failed commit", a.Name)
			}
		}
		if s.PendingCount() != 2 {
			t.Errorf("registry should be intact, got %d", s.PendingCount())
		}
	})

	t.Run("removes uploads of a failed attempt", func(t *testing.T) {
		s := NewSession(WithMaxConcurrentUploads(1))
		defer s.Cleanup()
		up := newFakeUploader()
		up.setFail("z.pdf", errors.New("boom"))

		s.Stage(mustFile("a.png", "png"))
		s.Stage(mustFile("z.pdf", "pdf"))

		if _, err := s.Commit(ctx, "", up); err == nil {
			t.Fatal("expected commit to fail")
		}
		removed := up.removedURLs()
		if len(removed) != 1 || !strings.HasSuffix(removed[0], "a.png") {
			t.Errorf("expected the a.png upload removed, got %v", removed)
		}
	})

	t.Run("retry after failure succeeds", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		up := newFakeUploader()
		up.setFail("b.pdf", errors.New("flaky"))

		img := s.Stage(mustFile("a.png", "png"))
		doc := s.Stage(mustFile("b.pdf", "pdf"))
		content := Embed(img) + Embed(doc)

		if _, err := s.Commit(ctx, content, up); err == nil {
			t.Fatal("expected first commit to fail")
		}
		up.setFail("b.pdf", nil)
		out, err := s.Commit(ctx, content, up)
		if err != nil {
			t.Fatalf("second commit: %v", err)
		}
		for _, a := range s.Attachments() {
			if !a.Uploaded() || !strings.Contains(out, a.RemoteURL) {
				t.Errorf("attachment %s not committed", a.Name)
			}
		}
	})

	t.Run("skips attachments already uploaded", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		up := newFakeUploader()

		a := s.Stage(mustFile("a.png", "png"))
		if _, err := s.Commit(ctx, Embed(a), up); err != nil {
			t.Fatalf("first commit: %v", err)
		}
		b := s.Stage(mustFile("b.png", "other"))
		out, err := s.Commit(ctx, Embed(a)+Embed(b), up)
		if err != nil {
			t.Fatalf("second commit: %v", err)
		}
		if up.callCount("a.png") != 1 {
			t.Errorf("expected a.png uploaded once, got %d", up.callCount("a.png"))
		}
		ga, _ := s.Get(a.ID)
		if !strings.Contains(out, ga.RemoteURL) {
			t.Errorf("expected earlier upload still rewritten in %q", out)
		}
	})

	t.Run("empty upload url is a failure", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		s.Stage(mustFile("a.png", "png"))
		up := UploadFunc(func(context.Context, *File) (UploadResult, error) {
			return UploadResult{}, nil
		})
		_, err := s.Commit(ctx, "", up)
		if !errors.Is(err, ErrEmptyUploadURL) {
			t.Errorf("expected ErrEmptyUploadURL, got %v", err)
		}
	})

	t.Run("nothing pending", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		out, err := s.Commit(ctx, "<p>plain</p>", newFakeUploader())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "<p>plain</p>" {
			t.Errorf("expected unchanged content, got %q", out)
		}
	})

	t.Run("abandoned during commit", func(t *testing.T) {
		s := NewSession()
		up := newFakeUploader()
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
		if removed := up.removedURLs(); len(removed) != 1 {
			t.Errorf("expected abandoned upload removed, got %v", removed)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		s := NewSession()
		defer s.Cleanup()
		s.Stage(mustFile("a.png", "png"))

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Commit(cctx, "", newFakeUploader())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("sanitizes with content policy", func(t *testing.T) {
		s := NewSession(WithContentPolicy(ContentPolicy()))
		defer s.Cleanup()
		up := newFakeUploader()

		a := s.Stage(mustFile("a.png", "png"))
		content := `<p onclick="evil()">hi</p><script>alert(1)</script>` + Embed(a)
		out, err := s.Commit(ctx, content, up)
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if strings.Contains(out, "<script") || strings.Contains(out, "onclick") {
			t.Errorf("unsafe markup kept: %q", out)
		}
		got, _ := s.Get(a.ID)
		if !strings.Contains(out, got.RemoteURL) {
			t.Errorf("expected image url kept in %q", out)
		}
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
