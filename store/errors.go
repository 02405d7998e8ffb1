package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for the store package.
var (
	// ErrNotFound is returned when a record or file cannot be found.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidID is returned when an invalid ID is provided.
	ErrInvalidID = errors.New("store: invalid id")

	// ErrDuplicateEntry is returned when a duplicate entry is detected.
	ErrDuplicateEntry = errors.New("store: duplicate entry")

	// ErrInUse is returned when deleting a record that is still referenced.
	ErrInUse = errors.New("store: record in use")

	// ErrInvalidURI is returned when a file URI does not belong to the store.
	ErrInvalidURI = errors.New("store: invalid uri")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("store: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("store: already connected")
)

// URIError reports a URI a file store cannot handle.
type URIError struct {
	URI    string
	Reason string
}

func (e *URIError) Error() string {
	return fmt.Sprintf("store: invalid uri %q: %s", e.URI, e.Reason)
}

func (e *URIError) Unwrap() error {
	return ErrInvalidURI
}

// Error checking helpers.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDuplicateEntry(err error) bool {
	return errors.Is(err, ErrDuplicateEntry)
}

func IsInUse(err error) bool {
	return errors.Is(err, ErrInUse)
}
