package board

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMemoryPreviews(t *testing.T) {
	t.Run("allocate open release", func(t *testing.T) {
		p := NewMemoryPreviews("")
		ref := p.Allocate([]byte("data"), "text/plain")
		if !strings.HasPrefix(ref, DefaultPreviewPrefix) {
			t.Errorf("unexpected ref %q", ref)
		}

		data, mimeType, err := p.Open(ref)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if string(data) != "data" || mimeType != "text/plain" {
			t.Errorf("unexpected preview %q %q", data, mimeType)
		}

		if err := p.Release(ref); err != nil {
			t.Fatalf("release: %v", err)
		}
		if err := p.Release(ref); !errors.Is(err, ErrPreviewNotFound) {
			t.Errorf("expected ErrPreviewNotFound on second release, got %v", err)
		}
		if _, _, err := p.Open(ref); !errors.Is(err, ErrPreviewNotFound) {
			t.Errorf("expected ErrPreviewNotFound after release, got %v", err)
		}
	})

	t.Run("unique refs for identical content", func(t *testing.T) {
		p := NewMemoryPreviews("/preview/")
		a := p.Allocate([]byte("x"), "text/plain")
		b := p.Allocate([]byte("x"), "text/plain")
		if a == b {
			t.Error("expected distinct refs")
		}
		if p.Len() != 2 {
			t.Errorf("expected 2 previews, got %d", p.Len())
		}
	})

	t.Run("serves live previews", func(t *testing.T) {
		p := NewMemoryPreviews("/preview/")
		ref := p.Allocate([]byte("<svg/>"), "image/svg+xml")

		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ref, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Body.String() != "<svg/>" {
			t.Errorf("unexpected body %q", rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
			t.Errorf("unexpected content type %q", ct)
		}

		p.Release(ref)
		rec = httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ref, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 after release, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, ref, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}
