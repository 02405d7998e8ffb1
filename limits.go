package board

import (
	"math"
	"strconv"
)

// Default limits, matching the upload endpoint's defaults.
const (
	DefaultMaxFileSize = 10 * 1024 * 1024 // 10 MB
	DefaultMaxFiles    = 10
)

// Limits is the caller-side policy applied before staging or accepting a file.
// A Session never enforces it; the submission form and the upload endpoint do.
type Limits struct {
	// MaxFileSize is the largest accepted file in bytes. Zero disables the check.
	MaxFileSize int64
	// MaxFiles caps the number of attachments per draft or request. Zero disables the check.
	MaxFiles int
	// AllowedKinds restricts media kinds. Empty allows every kind.
	AllowedKinds []MediaKind
}

// DefaultLimits returns the default policy.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize: DefaultMaxFileSize,
		MaxFiles:    DefaultMaxFiles,
	}
}

// Check validates f against the policy given how many files are already pending.
func (l Limits) Check(f *File, pending int) error {
	size := f.Size
	if size == 0 {
		size = int64(len(f.Data))
	}
	if l.MaxFileSize > 0 && size > l.MaxFileSize {
		return &LimitError{Filename: f.Name, Limit: l.MaxFileSize, Actual: size, Err: ErrFileTooLarge}
	}
	if l.MaxFiles > 0 && pending+1 > l.MaxFiles {
		return &LimitError{Filename: f.Name, Limit: int64(l.MaxFiles), Actual: int64(pending + 1), Err: ErrTooManyFiles}
	}
	if len(l.AllowedKinds) > 0 {
		kind := ClassifyMediaKind(f.Name)
		for _, k := range l.AllowedKinds {
			if k == kind {
				return nil
			}
		}
		return &LimitError{Filename: f.Name, Err: ErrKindNotAllowed}
	}
	return nil
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count for display, e.g. "4.2 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizeUnits[i]
}
