package board

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 Bytes"},
		{-5, "0 Bytes"},
		{1, "1 Bytes"},
		{1023, "1023 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{10 * 1024 * 1024, "10 MB"},
		{1234567, "1.18 MB"},
		{3 * 1024 * 1024 * 1024, "3 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.in); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLimitsCheck(t *testing.T) {
	l := Limits{MaxFileSize: 10, MaxFiles: 2, AllowedKinds: []MediaKind{KindImage, KindFile}}

	t.Run("accepts file within limits", func(t *testing.T) {
		if err := l.Check(mustFile("a.png", "small"), 0); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("file too large", func(t *testing.T) {
		err := l.Check(mustFile("a.png", "much too large"), 0)
		if !errors.Is(err, ErrFileTooLarge) {
			t.Fatalf("expected ErrFileTooLarge, got %v", err)
		}
		var le *LimitError
		if !errors.As(err, &le) || le.Limit != 10 || le.Actual != 14 {
			t.Errorf("unexpected limit error %+v", le)
		}
		if !strings.Contains(err.Error(), "a.png") {
			t.Errorf("expected filename in %q", err.Error())
		}
	})

	t.Run("too many files", func(t *testing.T) {
		if err := l.Check(mustFile("a.png", "x"), 1); err != nil {
			t.Errorf("second file should pass, got %v", err)
		}
		if err := l.Check(mustFile("a.png", "x"), 2); !errors.Is(err, ErrTooManyFiles) {
			t.Errorf("expected ErrTooManyFiles, got %v", err)
		}
	})

	t.Run("kind not allowed", func(t *testing.T) {
		err := l.Check(mustFile("a.mp4", "x"), 0)
		if !errors.Is(err, ErrKindNotAllowed) {
			t.Errorf("expected ErrKindNotAllowed, got %v", err)
		}
		if strings.Contains(err.Error(), "limit") {
			t.Errorf("kind errors carry no numeric limit: %q", err.Error())
		}
	})

	t.Run("zero limits disable checks", func(t *testing.T) {
		if err := (Limits{}).Check(mustFile("a.mov", strings.Repeat("x", 100)), 100); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("declared size wins over data", func(t *testing.T) {
		f := &File{Name: "a.png", Size: 100}
		if err := l.Check(f, 0); !errors.Is(err, ErrFileTooLarge) {
			t.Errorf("expected ErrFileTooLarge, got %v", err)
		}
	})
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.MaxFileSize != DefaultMaxFileSize || l.MaxFiles != DefaultMaxFiles {
		t.Errorf("unexpected defaults %+v", l)
	}
	if len(l.AllowedKinds) != 0 {
		t.Errorf("expected every kind allowed, got %v", l.AllowedKinds)
	}
}
