package models

import (
	"strings"
	"time"

	"github.com/rohanthewiz/serr"
)

// SyncRun is one row of the sync invocation log, kept for operator
// visibility into past runs.
type SyncRun struct {
	RunGUID         string
	StartedAt       time.Time
	FinishedAt      time.Time
	Status          string
	NotesDownloaded int
	NotesSkipped    int
	Warnings        []string
}

// RecordSyncRun appends one run to the sync_runs log.
func RecordSyncRun(run SyncRun) error {
	_, err := db.Exec(`
		INSERT INTO sync_runs (run_guid, started_at, finished_at, status, notes_downloaded, notes_skipped, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunGUID, run.StartedAt, run.FinishedAt, run.Status,
		run.NotesDownloaded, run.NotesSkipped, strings.Join(run.Warnings, "\n"),
	)
	if err != nil {
		return serr.Wrap(err, "failed to record sync run")
	}
	return nil
}
