package board

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MediaKind classifies an attachment for rendering.
type MediaKind string

// Media kinds.
const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
	KindFile  MediaKind = "file"
)

// DefaultMIMEType is used when neither the extension nor the content identify the file.
const DefaultMIMEType = "application/octet-stream"

// kindByExt is the fixed extension table used to classify files.
var kindByExt = map[string]MediaKind{
	"jpg": KindImage, "jpeg": KindImage, "png": KindImage, "gif": KindImage,
	"webp": KindImage, "bmp": KindImage, "svg": KindImage,

	"mp4": KindVideo, "avi": KindVideo, "mov": KindVideo, "wmv": KindVideo,
	"flv": KindVideo, "webm": KindVideo, "mkv": KindVideo,

	"mp3": KindAudio, "wav": KindAudio, "flac": KindAudio, "aac": KindAudio,
	"ogg": KindAudio, "m4a": KindAudio,
}

// ClassifyMediaKind returns the media kind for a filename based on its extension.
// Unknown or missing extensions are classified as KindFile.
func ClassifyMediaKind(filename string) MediaKind {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if kind, ok := kindByExt[ext]; ok {
		return kind
	}
	return KindFile
}

// File is a raw file handed to a session for staging.
type File struct {
	Name     string
	Size     int64
	MIMEType string
	Data     []byte
}

// NewFile reads r fully and returns a File with size and MIME type filled in.
func NewFile(name string, r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	f := &File{Name: name, Data: data}
	f.normalize()
	return f, nil
}

// Reader returns a reader over the file content.
func (f *File) Reader() io.Reader {
	return bytes.NewReader(f.Data)
}

// normalize fills in size and MIME type when the caller left them empty.
func (f *File) normalize() {
	if f.Size == 0 {
		f.Size = int64(len(f.Data))
	}
	if f.MIMEType == "" {
		f.MIMEType = DetectMIMEType(f.Name, f.Data)
	}
}

// DetectMIMEType resolves a MIME type from the filename extension, falling back
// to sniffing the content.
func DetectMIMEType(filename string, data []byte) string {
	if t := mime.TypeByExtension(path.Ext(filename)); t != "" {
		return t
	}
	if len(data) > 0 {
		if t := mimetype.Detect(data); t != nil {
			return t.String()
		}
	}
	return DefaultMIMEType
}

// Attachment is a file staged in a draft session.
// Values returned by a Session are snapshots; changing them has no effect on the session.
type Attachment struct {
	ID         string    `json:"id"`
	Name       string    `json:"filename"`
	Size       int64     `json:"size"`
	Kind       MediaKind `json:"type"`
	MIMEType   string    `json:"mime_type"`
	PreviewRef string    `json:"preview_url"`
	RemoteURL  string    `json:"url,omitempty"`
}

// Uploaded reports whether the attachment has a durable URL.
func (a Attachment) Uploaded() bool {
	return a.RemoteURL != ""
}

// staged is the registry entry owning the attachment's bytes.
type staged struct {
	att  Attachment
	data []byte
	seq  uint64
}
