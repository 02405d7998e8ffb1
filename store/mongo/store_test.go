package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbaliyan/board/store"
)

func TestRequiresConnect(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	if err := s.Connect(ctx); err == nil {
		t.Fatal("expected error connecting without a client")
	}
	if _, err := s.Get(ctx, "id"); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := s.ListUnreferenced(ctx, time.Now(), 10); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestOptions(t *testing.T) {
	o := newOptions(WithDatabase(""), WithCollection("files"), WithTimeout(time.Second))
	if o.database != DefaultDatabase {
		t.Errorf("empty database should keep the default, got %s", o.database)
	}
	if o.collection != "files" {
		t.Errorf("expected collection files, got %s", o.collection)
	}
	if o.timeout != time.Second {
		t.Errorf("expected 1s timeout, got %v", o.timeout)
	}
}
