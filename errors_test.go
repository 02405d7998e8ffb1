package board

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUploadError(t *testing.T) {
	netErr := errors.New("connection reset")
	err := &UploadError{Failures: []UploadFailure{
		{AttachmentID: "a1", Filename: "a.png", Err: netErr},
		{AttachmentID: "b2", Filename: "b.pdf", Err: ErrEmptyUploadURL},
	}}

	t.Run("Error message format", func(t *testing.T) {
		msg := err.Error()
		for _, part := range []string{"2 upload(s) failed", "a.png", "b.pdf", "connection reset"} {
			if !strings.Contains(msg, part) {
				t.Errorf("expected error message to contain %q, got %q", part, msg)
			}
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		if !errors.Is(err, ErrUploadFailed) {
			t.Error("expected ErrUploadFailed")
		}
		if !errors.Is(err, netErr) {
			t.Error("expected the individual failure to be reachable")
		}
		if !errors.Is(err, ErrEmptyUploadURL) {
			t.Error("expected ErrEmptyUploadURL")
		}
	})

	t.Run("accessors", func(t *testing.T) {
		if got := err.Filenames(); len(got) != 2 || got[0] != "a.png" || got[1] != "b.pdf" {
			t.Errorf("unexpected filenames %v", got)
		}
		if got := err.AttachmentIDs(); len(got) != 2 || got[0] != "a1" || got[1] != "b2" {
			t.Errorf("unexpected ids %v", got)
		}
	})

	t.Run("IsUploadError", func(t *testing.T) {
		wrapped := fmt.Errorf("save post: %w", err)
		ue, ok := IsUploadError(wrapped)
		if !ok || ue != err {
			t.Errorf("expected to find the upload error, got %v %v", ue, ok)
		}
		if _, ok := IsUploadError(netErr); ok {
			t.Error("plain error is not an upload error")
		}
	})

	t.Run("long failure lists are truncated", func(t *testing.T) {
		var failures []UploadFailure
		for i := 0; i < 8; i++ {
			failures = append(failures, UploadFailure{Filename: fmt.Sprintf("f%d.txt", i), Err: netErr})
		}
		msg := (&UploadError{Failures: failures}).Error()
		if !strings.Contains(msg, "and 3 more") {
			t.Errorf("expected truncation in %q", msg)
		}
		if strings.Contains(msg, "f7.txt") {
			t.Errorf("expected f7.txt to be elided from %q", msg)
		}
	})
}

func TestLimitError(t *testing.T) {
	err := &LimitError{Filename: "big.mov", Limit: 10, Actual: 20, Err: ErrFileTooLarge}
	if !errors.Is(err, ErrFileTooLarge) {
		t.Error("expected ErrFileTooLarge")
	}
	if msg := err.Error(); !strings.Contains(msg, "limit 10") || !strings.Contains(msg, "got 20") {
		t.Errorf("unexpected message %q", msg)
	}
}
