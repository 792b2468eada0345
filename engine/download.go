package engine

import (
	"context"
	"sync"

	"github.com/rohanthewiz/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"notemirror/models"
	"notemirror/remote"
)

// ============================================================================
// Content Download Pool
//
// Note bodies are fetched separately from metadata because content endpoints
// are throttled far harder than metadata endpoints; decoupling lets metadata
// sync finish quickly and durably even when bodies are rate-limited. The
// work queue is the store itself — "active notes with no body" — so nothing
// needs to be persisted about in-flight work: each body is written the
// moment it arrives, and whatever subset completed before an interruption
// is simply absent from the next run's queue.
//
// Two independent limits gate dispatch:
//   - a worker limit (errgroup.SetLimit) bounding parallel fetches
//   - a byte semaphore sized to the memory budget, acquired at the note's
//     expected content size BEFORE its fetch is issued and released after
//     persist, so out-of-order or slow completions can never buffer
//     unboundedly
// ============================================================================

// downloadPendingBodies fetches every missing note body and fills in the
// report's download counters. Per-note failures after retry exhaustion are
// skips, not errors; only RateLimited and Fatal conditions abort.
func (c *Coordinator) downloadPendingBodies(ctx context.Context, report *Report) error {
	pending, err := models.PendingContentNotes()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	logger.Info("Content download starting",
		"pending", len(pending),
		"workers", c.cfg.Workers,
		"memory_budget", c.cfg.MemoryBudget,
	)

	sem := semaphore.NewWeighted(c.cfg.MemoryBudget)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	var mu sync.Mutex // guards the report counters below

	for _, note := range pending {
		note := note
		weight := budgetWeight(note.ContentSize, c.cfg.MemoryBudget)

		// The memory gate: block dispatch until the note's bytes fit under
		// the budget. Acquire fails only when gctx is cancelled, i.e. a
		// worker already hit a run-stopping condition.
		if err := sem.Acquire(gctx, weight); err != nil {
			break
		}

		g.Go(func() error {
			defer sem.Release(weight)

			outcome, err := c.downloadOneBody(gctx, note)
			if err != nil {
				return err
			}

			mu.Lock()
			switch outcome {
			case downloadSaved:
				report.NotesDownloaded++
			case downloadSkipped:
				report.NotesSkipped++
				report.SkippedTitles = append(report.SkippedTitles, note.Title)
			case downloadDropped:
				report.NotesDropped++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Content download complete",
		"downloaded", report.NotesDownloaded,
		"skipped", report.NotesSkipped,
		"dropped", report.NotesDropped,
	)
	return nil
}

type downloadOutcome int

const (
	downloadSaved downloadOutcome = iota
	downloadSkipped
	downloadDropped
)

// downloadOneBody fetches, verifies, and persists a single note body.
// Transient failures (including corrupted or truncated content) are retried
// per the policy; exhaustion downgrades to a skip. A note that vanished
// remotely or locally mid-flight is dropped silently.
func (c *Coordinator) downloadOneBody(ctx context.Context, note models.PendingContentNote) (downloadOutcome, error) {
	var encoded []byte

	err := c.retry.Do(ctx, "fetch_note_body", func() error {
		raw, err := c.client.FetchNoteBody(ctx, remote.PrimaryScope(c.cfg.AuthToken), note.GUID)
		if err != nil {
			return err
		}

		// Encode-then-decode round trip verifies the download before it is
		// persisted; a truncated body fails here and counts as a failed
		// fetch, not a crash.
		blob, err := models.EncodeNoteBody(note.GUID, raw)
		if err != nil {
			return err
		}
		if _, err := models.DecodeNoteBody(note.GUID, blob); err != nil {
			return err
		}

		encoded = blob
		return nil
	})

	if err != nil {
		if remote.IsNotFound(err) {
			// Expunged remotely after metadata sync — not an error.
			return downloadDropped, nil
		}
		switch remote.Classify(err) {
		case remote.ClassRateLimited, remote.ClassFatal:
			return 0, err
		}

		logger.LogErr(err, "note content download failed after retries, skipping",
			"note_guid", note.GUID,
			"title", note.Title,
		)
		return downloadSkipped, nil
	}

	saved, err := models.SaveNoteContent(note.GUID, encoded)
	if err != nil {
		return 0, err
	}
	if !saved {
		// Expunged or trashed locally while the fetch was in flight.
		return downloadDropped, nil
	}
	return downloadSaved, nil
}

// budgetWeight clamps a note's expected size into [1, budget] so a zero-size
// metadata entry still holds a slot and an oversized note degrades to
// exclusive use of the whole budget instead of deadlocking.
func budgetWeight(size, budget int64) int64 {
	if size < 1 {
		return 1
	}
	if size > budget {
		return budget
	}
	return size
}
