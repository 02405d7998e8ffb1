package board

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"
)

func TestClassifyMediaKind(t *testing.T) {
	tests := map[string]MediaKind{
		"photo.jpg":      KindImage,
		"photo.JPEG":     KindImage,
		"anim.webp":      KindImage,
		"clip.mkv":       KindVideo,
		"talk.MOV":       KindVideo,
		"song.flac":      KindAudio,
		"voice.m4a":      KindAudio,
		"report.pdf":     KindFile,
		"archive.tar.gz": KindFile,
		"README":         KindFile,
		"":               KindFile,
		"trailing.":      KindFile,
	}
	for name, want := range tests {
		if got := ClassifyMediaKind(name); got != want {
			t.Errorf("ClassifyMediaKind(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestDetectMIMEType(t *testing.T) {
	t.Run("by extension", func(t *testing.T) {
		if got := DetectMIMEType("a.png", nil); got != "image/png" {
			t.Errorf("expected image/png, got %q", got)
		}
	})

	t.Run("by content", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
		if got := DetectMIMEType("noext", png); got != "image/png" {
			t.Errorf("expected image/png, got %q", got)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if got := DetectMIMEType("noext", nil); got != DefaultMIMEType {
			t.Errorf("expected %s, got %q", DefaultMIMEType, got)
		}
	})
}

func TestNewFile(t *testing.T) {
	f, err := NewFile("notes.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Size != 5 {
		t.Errorf("expected size 5, got %d", f.Size)
	}
	if !strings.HasPrefix(f.MIMEType, "text/plain") {
		t.Errorf("expected text/plain, got %q", f.MIMEType)
	}

	readErr := errors.New("disk gone")
	if _, err := NewFile("bad.txt", iotest.ErrReader(readErr)); !errors.Is(err, readErr) {
		t.Errorf("expected read error, got %v", err)
	}
}
