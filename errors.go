package board

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the board package.
// Use errors.Is() to check for these errors.
var (
	// ErrUploadFailed is wrapped by every UploadError.
	ErrUploadFailed = errors.New("board: upload failed")

	// ErrDraftAbandoned is returned by Commit when Cleanup ran while uploads were in flight.
	ErrDraftAbandoned = errors.New("board: draft abandoned during commit")

	// ErrUploaderRequired is returned when Commit is called without an uploader.
	ErrUploaderRequired = errors.New("board: uploader is required")

	// ErrReferenceFailed wraps the cause when a Referencer rejects a new upload.
	ErrReferenceFailed = errors.New("board: reference upload failed")

	// ErrEmptyUploadURL is returned when an uploader reports success without a URL.
	ErrEmptyUploadURL = errors.New("board: uploader returned empty url")

	// ErrPreviewNotFound is returned when releasing or opening an unknown preview reference.
	ErrPreviewNotFound = errors.New("board: preview not found")

	// ErrFileTooLarge is returned when a file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("board: file too large")

	// ErrTooManyFiles is returned when a draft would exceed the attachment count limit.
	ErrTooManyFiles = errors.New("board: too many files")

	// ErrKindNotAllowed is returned when a file's media kind is not permitted.
	ErrKindNotAllowed = errors.New("board: media kind not allowed")
)

// UploadFailure describes one attachment whose upload failed.
type UploadFailure struct {
	AttachmentID string
	Filename     string
	Err          error
}

// UploadError is returned by Commit when one or more uploads fail.
// No attachment receives a remote URL from the failed attempt.
type UploadError struct {
	Failures []UploadFailure
}

func (e *UploadError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "board: %d upload(s) failed", len(e.Failures))
	const maxShown = 5
	for i, f := range e.Failures {
		if i == maxShown {
			fmt.Fprintf(&sb, "; ...and %d more", len(e.Failures)-maxShown)
			break
		}
		sep := ": "
		if i > 0 {
			sep = "; "
		}
		fmt.Fprintf(&sb, "%s%s (%v)", sep, f.Filename, f.Err)
	}
	return sb.String()
}

// Unwrap returns ErrUploadFailed followed by the individual upload errors.
func (e *UploadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrUploadFailed)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Filenames returns the names of the files that failed to upload.
func (e *UploadError) Filenames() []string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Filename)
	}
	return names
}

// AttachmentIDs returns the ids of the attachments that failed to upload.
func (e *UploadError) AttachmentIDs() []string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.AttachmentID)
	}
	return ids
}

// IsUploadError checks if the error is an upload error and returns details.
func IsUploadError(err error) (*UploadError, bool) {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// LimitError reports a file rejected by a Limits policy.
type LimitError struct {
	Filename string
	Limit    int64
	Actual   int64
	Err      error
}

func (e *LimitError) Error() string {
	if e.Limit == 0 {
		return fmt.Sprintf("%v: %s", e.Err, e.Filename)
	}
	return fmt.Sprintf("%v: %s (limit %d, got %d)", e.Err, e.Filename, e.Limit, e.Actual)
}

func (e *LimitError) Unwrap() error {
	return e.Err
}
