package uploads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbaliyan/board/store"
)

// SweepResult reports what a Sweep removed.
type SweepResult struct {
	// Deleted is the number of uploads removed.
	Deleted int
	// Skipped counts candidates that gained a reference or vanished mid-sweep.
	Skipped int
	// Failed counts uploads whose removal failed; they are retried next sweep.
	Failed int
	// Interrupted is set when ctx ended before the sweep finished.
	Interrupted bool
}

// Sweep removes uploads that no post references and that are older than
// olderThan. The grace period covers the window between a commit's upload and
// the post that references it. Candidates are processed in batches until none
// remain or ctx ends.
//
// The library does not schedule sweeps; run it periodically:
//
//	ticker := time.NewTicker(time.Hour)
//	for range ticker.C {
//	    if res, err := m.Sweep(ctx, 24*time.Hour); err == nil && res.Deleted > 0 {
//	        logger.Info("swept uploads", "deleted", res.Deleted)
//	    }
//	}
func (m *Manager) Sweep(ctx context.Context, olderThan time.Duration) (*SweepResult, error) {
	if err := m.checkConnected(); err != nil {
		return nil, err
	}

	res := &SweepResult{}
	cutoff := time.Now().UTC().Add(-olderThan)
	seen := make(map[string]bool)

	for {
		if ctx.Err() != nil {
			res.Interrupted = true
			return res, ctx.Err()
		}

		batch, err := m.records.ListUnreferenced(ctx, cutoff, m.opts.sweepBatchSize)
		if err != nil {
			return res, fmt.Errorf("list unreferenced: %w", err)
		}

		progressed := false
		for _, rec := range batch {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			progressed = true

			err := m.deleteUnreferenced(ctx, rec.ID, ReasonSwept)
			switch {
			case err == nil:
				res.Deleted++
			case errors.Is(err, store.ErrInUse), errors.Is(err, store.ErrNotFound):
				res.Skipped++
			default:
				res.Failed++
				m.logger.Warn("failed to sweep upload", "id", rec.ID, "error", err)
			}
		}

		// records that failed to delete stay listed; stop once a batch brings nothing new
		if len(batch) < m.opts.sweepBatchSize || !progressed {
			break
		}
	}

	if res.Deleted > 0 {
		m.logger.Info("swept unreferenced uploads", "deleted", res.Deleted, "failed", res.Failed)
	}
	return res, nil
}
