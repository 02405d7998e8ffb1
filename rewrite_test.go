package board

import (
	"strings"
	"testing"
)

func TestRewriteContent(t *testing.T) {
	byRef := map[string]string{"blob:board/1": "/uploads/one.png"}
	byID := map[string]string{"att-2": "/uploads/two.mp4"}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "empty content",
			content: "",
			want:    "",
		},
		{
			name:    "no matching elements",
			content: "<p>nothing <b>here</b></p>",
			want:    "<p>nothing <b>here</b></p>",
		},
		{
			name:    "img by reference",
			content: `<img src="blob:board/1" alt="one">`,
			want:    `<img src="/uploads/one.png" alt="one"/>`,
		},
		{
			name:    "source by marker",
			content: `<video controls=""><source src="blob:other" data-attachment-id="att-2"/></video>`,
			want:    `<video controls=""><source src="/uploads/two.mp4"/></video>`,
		},
		{
			name:    "link by reference",
			content: `<a href="blob:board/1">download</a>`,
			want:    `<a href="/uploads/one.png">download</a>`,
		},
		{
			name:    "reference text outside attributes is kept",
			content: `<p>blob:board/1</p><img src="blob:board/1">`,
			want:    `<p>blob:board/1</p><img src="/uploads/one.png"/>`,
		},
		{
			name:    "unknown marker keeps element",
			content: `<img src="blob:x" data-attachment-id="att-9">`,
			want:    `<img src="blob:x" data-attachment-id="att-9">`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RewriteContent(tt.content, byRef, byID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRewriteContentEveryOccurrence(t *testing.T) {
	byRef := map[string]string{"blob:board/1": "/uploads/one.png"}
	content := strings.Repeat(`<p><img src="blob:board/1"></p>`, 5)

	got, err := RewriteContent(content, byRef, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(got, "/uploads/one.png"); n != 5 {
		t.Errorf("expected 5 rewritten references, got %d", n)
	}
	if strings.Contains(got, "blob:board/1") {
		t.Errorf("reference left in %q", got)
	}
}

func TestEmbed(t *testing.T) {
	tests := []struct {
		name     string
		att      Attachment
		contains []string
	}{
		{
			name:     "image",
			att:      Attachment{ID: "i", Name: "cat.png", Kind: KindImage, PreviewRef: "blob:board/i"},
			contains: []string{"<img", `src="blob:board/i"`, `alt="cat.png"`, `data-attachment-id="i"`},
		},
		{
			name:     "video",
			att:      Attachment{ID: "v", Name: "clip.mp4", Kind: KindVideo, MIMEType: "video/mp4", PreviewRef: "blob:board/v"},
			contains: []string{"<video", "controls", "<source", `type="video/mp4"`, `data-attachment-id="v"`},
		},
		{
			name:     "audio",
			att:      Attachment{ID: "a", Name: "song.mp3", Kind: KindAudio, MIMEType: "audio/mpeg", PreviewRef: "blob:board/a"},
			contains: []string{"<audio", "<source", `src="blob:board/a"`},
		},
		{
			name:     "file",
			att:      Attachment{ID: "f", Name: "report.pdf", Size: 1536, Kind: KindFile, PreviewRef: "blob:board/f"},
			contains: []string{`<a href="blob:board/f"`, `download="report.pdf"`, "report.pdf", "1.5 KB"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Embed(tt.att)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("expected %q in %q", want, got)
				}
			}
		})
	}

	t.Run("escapes names", func(t *testing.T) {
		got := Embed(Attachment{ID: "x", Name: `<b>"x".txt`, Kind: KindFile, PreviewRef: "blob:board/x"})
		if strings.Contains(got, "<b>") {
			t.Errorf("name not escaped: %q", got)
		}
	})

	t.Run("round trips through rewrite", func(t *testing.T) {
		a := Attachment{ID: "r", Name: "pic.gif", Kind: KindImage, PreviewRef: "blob:board/r"}
		got, err := RewriteContent(Embed(a), nil, map[string]string{"r": "/uploads/r.gif"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(got, `src="/uploads/r.gif"`) || strings.Contains(got, MarkerAttr) {
			t.Errorf("unexpected rewrite %q", got)
		}
	})
}
