package board

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrency_ParallelUploads(t *testing.T) {
	var inFlight, peak atomic.Int32
	up := UploadFunc(func(ctx context.Context, f *File) (UploadResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return UploadResult{URL: "/uploads/" + f.Name}, nil
	})

	s := NewSession(WithMaxConcurrentUploads(3))
	defer s.Cleanup()
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		s.Stage(mustFile(n+".txt", n))
	}

	if _, err := s.Commit(context.Background(), "", up); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("expected at most 3 concurrent uploads, got %d", p)
	}
	if p := peak.Load(); p < 2 {
		t.Errorf("expected uploads to overlap, peak was %d", p)
	}
}

func TestConcurrency_SimultaneousCommits(t *testing.T) {
	ctx := context.Background()
	up := newFakeUploader()
	s := NewSession()
	defer s.Cleanup()

	a := s.Stage(mustFile("a.png", "png"))
	content := Embed(a)

	const commits = 5
	var wg sync.WaitGroup
	outs := make([]string, commits)
	errs := make([]error, commits)
	for i := 0; i < commits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i], errs[i] = s.Commit(ctx, content, up)
		}()
	}
	wg.Wait()

	got, _ := s.Get(a.ID)
	if !got.Uploaded() {
		t.Fatal("expected attachment uploaded")
	}
	for i := 0; i < commits; i++ {
		if errs[i] != nil {
			t.Errorf("commit %d: %v", i, errs[i])
			continue
		}
		// every commit settles on the single URL the registry kept
		if !strings.Contains(outs[i], got.RemoteURL) {
			t.Errorf("commit %d: expected %s in %q", i, got.RemoteURL, outs[i])
		}
	}
	for _, url := range up.removedURLs() {
		if url == got.RemoteURL {
			t.Errorf("kept url %s was removed", url)
		}
	}
}

func TestConcurrency_StageDuringCommit(t *testing.T) {
	up := newFakeUploader()
	s := NewSession()
	defer s.Cleanup()
	s.Stage(mustFile("first.txt", "1"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Commit(context.Background(), "", up)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			s.Stage(mustFile("late.txt", "late"))
		}
	}()
	wg.Wait()

	if s.PendingCount() != 11 {
		t.Errorf("expected 11 staged attachments, got %d", s.PendingCount())
	}
}
