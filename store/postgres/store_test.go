package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/rbaliyan/board/store"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique", &pq.Error{Code: "23505"}, true},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"foreign key", &pq.Error{Code: "23503"}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequiresConnect(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	if err := s.Create(ctx, &store.Record{}); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := s.Get(ctx, "id"); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Connect(ctx); err == nil {
		t.Error("expected error connecting without a db")
	}
	if err := s.Connect(ctx); errors.Is(err, store.ErrAlreadyConnected) {
		t.Error("failed connect should reset the connected flag")
	}
}

func TestOptions(t *testing.T) {
	o := newOptions(WithTable("files"), WithTimeout(0), WithLogger(nil))
	if o.table != "files" {
		t.Errorf("expected table files, got %s", o.table)
	}
	if o.timeout != DefaultTimeout {
		t.Errorf("zero timeout should keep the default, got %v", o.timeout)
	}
	if o.logger == nil {
		t.Error("nil logger should keep the default")
	}
}
