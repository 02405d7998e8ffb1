package board

import "context"

// UploadResult is what the upload endpoint returns for a stored file.
type UploadResult struct {
	URL      string    `json:"url"`
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Kind     MediaKind `json:"type"`
	MIMEType string    `json:"mime_type"`
	// Deduplicated is set when the endpoint already held identical content
	// and returned the existing upload instead of storing a new one.
	Deduplicated bool `json:"deduplicated,omitempty"`
}

// Uploader transfers a file to durable storage and returns its URL.
// Implementations should be safe to call concurrently and safe to retry.
type Uploader interface {
	Upload(ctx context.Context, f *File) (UploadResult, error)
}

// UploadFunc adapts a function to the Uploader interface.
type UploadFunc func(ctx context.Context, f *File) (UploadResult, error)

// Upload calls fn(ctx, f).
func (fn UploadFunc) Upload(ctx context.Context, f *File) (UploadResult, error) {
	return fn(ctx, f)
}

// Remover deletes a previously uploaded file by URL.
// Uploaders that also implement Remover let a session remove uploads made by
// a commit attempt that failed or was abandoned. Uploads reported as
// Deduplicated belong to someone else and are never removed.
type Remover interface {
	Remove(ctx context.Context, url string) error
}

// Referencer records that published content uses an upload, so the upload
// service keeps it. A session whose uploader implements Referencer adds one
// reference per attachment when a commit succeeds, and releases references it
// added when the commit is abandoned.
type Referencer interface {
	AddRef(ctx context.Context, url string) error
	ReleaseRef(ctx context.Context, url string) error
}
