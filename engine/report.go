package engine

import (
	"fmt"
	"strings"
	"time"
)

// Run statuses reported to the operator.
const (
	StatusCompleted    = "completed"
	StatusWithWarnings = "completed_with_warnings"
	StatusRateLimited  = "rate_limited"
	StatusFailed       = "failed"
)

// Report is the operator-facing outcome of one sync run. Per-item failures
// (skipped note downloads, inaccessible linked notebooks) are warnings, not
// run failures: they are retried automatically on the next run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string

	PrimaryWatermark int64
	LinkedSynced     int
	LinkedSkipped    int

	NotesDownloaded int
	NotesSkipped    int
	NotesDropped    int
	SkippedTitles   []string

	TasksSynced bool
	TaskCursor  int64

	Warnings []string

	// Set when Status is rate_limited: how long the server asked us to wait.
	RetryAfter time.Duration

	// Set when Status is failed: the fatal cause.
	FatalCause string
}

// addWarning records a non-fatal problem for the run summary.
func (r *Report) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Summary renders the report for the operator.
func (r *Report) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "sync %s: %s in %s\n", r.RunID, r.Status, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "  primary watermark: %d\n", r.PrimaryWatermark)
	fmt.Fprintf(&b, "  linked notebooks: %d synced, %d skipped\n", r.LinkedSynced, r.LinkedSkipped)
	fmt.Fprintf(&b, "  note bodies: %d downloaded, %d skipped, %d dropped\n",
		r.NotesDownloaded, r.NotesSkipped, r.NotesDropped)

	if r.TasksSynced {
		fmt.Fprintf(&b, "  task cursor: %d\n", r.TaskCursor)
	}

	if len(r.SkippedTitles) > 0 {
		fmt.Fprintf(&b, "  skipped notes (will retry automatically next run):\n")
		for _, title := range r.SkippedTitles {
			fmt.Fprintf(&b, "    - %s\n", title)
		}
	}

	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}

	switch r.Status {
	case StatusRateLimited:
		fmt.Fprintf(&b, "  remote rate limit hit: wait %s before the next run\n", r.RetryAfter)
	case StatusFailed:
		fmt.Fprintf(&b, "  fatal: %s (do not retry without fixing the cause)\n", r.FatalCause)
	}

	return b.String()
}
