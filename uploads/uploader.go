package uploads

import (
	"context"
	"errors"

	"github.com/rbaliyan/board"
	"github.com/rbaliyan/board/store"
)

// Uploader adapts a Manager to board.Uploader, board.Remover and
// board.Referencer, for sessions running in the same process as the upload
// service.
type Uploader struct {
	m *Manager
}

var (
	_ board.Uploader   = (*Uploader)(nil)
	_ board.Remover    = (*Uploader)(nil)
	_ board.Referencer = (*Uploader)(nil)
)

// Uploader returns an in-process uploader backed by m.
func (m *Manager) Uploader() *Uploader {
	return &Uploader{m: m}
}

func (u *Uploader) Upload(ctx context.Context, f *board.File) (board.UploadResult, error) {
	return u.m.UploadResult(ctx, f)
}

// Remove deletes an upload left behind by a failed commit. Sessions never
// remove deduplicated uploads; uploads that are referenced or already gone
// are left alone.
func (u *Uploader) Remove(ctx context.Context, url string) error {
	id, err := IDFromURL(url)
	if err != nil {
		return err
	}
	err = u.m.Delete(ctx, id)
	if errors.Is(err, store.ErrInUse) || errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// AddRef records that committed content uses the upload at url.
func (u *Uploader) AddRef(ctx context.Context, url string) error {
	id, err := IDFromURL(url)
	if err != nil {
		return err
	}
	return u.m.AddRef(ctx, id)
}

// ReleaseRef drops a reference added by AddRef. The upload is deleted when
// no references remain.
func (u *Uploader) ReleaseRef(ctx context.Context, url string) error {
	id, err := IDFromURL(url)
	if err != nil {
		return err
	}
	err = u.m.RemoveRef(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
