package uploads

import (
	"errors"

	"github.com/rbaliyan/board/store"
)

// Sentinel errors for the uploads package.
var (
	// ErrNotConnected is returned when the manager is used before Connect.
	ErrNotConnected = errors.New("uploads: not connected")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("uploads: already connected")

	// ErrFileStoreRequired is returned when NewManager gets no file store.
	ErrFileStoreRequired = errors.New("uploads: file store is required")

	// ErrRecordStoreRequired is returned when NewManager gets no record store.
	ErrRecordStoreRequired = errors.New("uploads: record store is required")

	// ErrInvalidURL is returned when an upload URL does not name an upload.
	ErrInvalidURL = errors.New("uploads: invalid upload url")
)

// Store errors surfaced unchanged by the manager.
var (
	ErrNotFound = store.ErrNotFound
	ErrInUse    = store.ErrInUse
)
