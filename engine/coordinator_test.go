package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"notemirror/models"
	"notemirror/remote"
)

// TestRun_FullSync drives a complete run: identity check, primary metadata,
// a linked notebook, content download, and tasks.
func TestRun_FullSync(t *testing.T) {
	cleanup := setupEngineTestDB(t, "full_run")
	defer cleanup()

	client := newFakeClient("user-A")
	client.watermarks["primary"] = 100
	client.chunks["primary"] = []remote.Chunk{
		{
			Notebooks: []remote.Notebook{{GUID: "nb-1", Name: "Journal"}},
			Notes: []remote.NoteMetadata{
				{GUID: "n-1", Title: "Note", NotebookGUID: "nb-1", Active: true, ContentSize: 5, ContentHash: "h"},
			},
			LinkedNotebooks: []remote.LinkedNotebook{
				{GUID: "ln-1", ShareName: "Shared", ShareKey: "k"},
			},
			FinalWatermark: 100,
		},
	}
	client.authTokens["ln-1"] = "scoped"
	client.watermarks["linked:ln-1"] = 40
	client.chunks["linked:ln-1"] = []remote.Chunk{
		{
			Notebooks:      []remote.Notebook{{GUID: "nb-shared", Name: "Shared NB"}},
			FinalWatermark: 40,
		},
	}
	client.bodies["n-1"] = []byte("hello")
	client.taskBatches = []remote.TaskBatch{
		{Tasks: []remote.Task{{GUID: "t-1", Title: "Task"}}, NextCursor: 500},
	}

	cfg := testConfig()
	cfg.TasksEnabled = true

	c := newTestCoordinator(client, cfg)
	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, report.Status)
	}
	if report.PrimaryWatermark != 100 {
		t.Errorf("expected primary watermark 100, got %d", report.PrimaryWatermark)
	}
	if report.LinkedSynced != 1 || report.LinkedSkipped != 0 {
		t.Errorf("expected 1 linked synced, got %+v", report)
	}
	if report.NotesDownloaded != 1 {
		t.Errorf("expected 1 body downloaded, got %d", report.NotesDownloaded)
	}
	if !report.TasksSynced || report.TaskCursor != 500 {
		t.Errorf("expected task cursor 500, got %+v", report)
	}

	// A second identical run is a no-op and still reports completed
	report2, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if report2.Status != StatusCompleted || report2.NotesDownloaded != 0 {
		t.Errorf("expected idle second run, got %+v", report2)
	}
}

// TestRun_IdentityMismatchIsFatal verifies that a store synced for one
// account refuses another account entirely: fatal status, non-nil error, and
// not a single row written.
func TestRun_IdentityMismatchIsFatal(t *testing.T) {
	cleanup := setupEngineTestDB(t, "identity_mismatch")
	defer cleanup()

	if err := models.EnsureAccountIdentity("user-A"); err != nil {
		t.Fatalf("recording identity failed: %v", err)
	}

	client := newFakeClient("user-B")
	client.watermarks["primary"] = 100
	client.chunks["primary"] = []remote.Chunk{
		{
			Notebooks:      []remote.Notebook{{GUID: "nb-intruder", Name: "Wrong Account"}},
			FinalWatermark: 100,
		},
	}

	c := newTestCoordinator(client, testConfig())
	report, err := c.Run(context.Background())
	if err == nil {
		t.Fatal("expected identity mismatch to fail the run")
	}
	if remote.Classify(err) != remote.ClassFatal {
		t.Errorf("expected fatal classification, got %v", remote.Classify(err))
	}
	if report.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, report.Status)
	}

	// Nothing was mutated before the guard fired
	if n, _ := models.CountNotebooks(); n != 0 {
		t.Errorf("expected zero notebooks after refused run, got %d", n)
	}
	wm, _ := models.PrimaryWatermark()
	if wm != 0 {
		t.Errorf("expected watermark untouched at 0, got %d", wm)
	}
	if recorded, _ := models.AccountIdentity(); recorded != "user-A" {
		t.Errorf("recorded identity must stay user-A, got %q", recorded)
	}
	if len(client.fetchAfter) != 0 {
		t.Error("no chunk should be fetched after a refused identity check")
	}
}

// TestRun_RateLimited verifies a throttled run reports the server's wait and
// classifies for the rate-limited exit path.
func TestRun_RateLimited(t *testing.T) {
	cleanup := setupEngineTestDB(t, "rate_limited")
	defer cleanup()

	client := newFakeClient("user-A")
	client.accountErr = remote.RateLimited(90 * time.Second)

	c := newTestCoordinator(client, testConfig())
	report, err := c.Run(context.Background())
	if remote.Classify(err) != remote.ClassRateLimited {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
	if report.Status != StatusRateLimited {
		t.Errorf("expected status %s, got %s", StatusRateLimited, report.Status)
	}
	if report.RetryAfter != 90*time.Second {
		t.Errorf("expected retry-after 90s in report, got %s", report.RetryAfter)
	}
}

// TestRun_WarningsDowngradeStatus verifies per-item failures yield
// completed_with_warnings, not a failed run.
func TestRun_WarningsDowngradeStatus(t *testing.T) {
	cleanup := setupEngineTestDB(t, "warnings")
	defer cleanup()

	client := newFakeClient("user-A")
	client.watermarks["primary"] = 10
	client.chunks["primary"] = []remote.Chunk{
		{
			Notes: []remote.NoteMetadata{
				{GUID: "n-bad", Title: "Unfetchable", NotebookGUID: "nb", Active: true, ContentSize: 5},
			},
			FinalWatermark: 10,
		},
	}
	client.bodyErrs["n-bad"] = errors.New("content endpoint keeps failing")

	c := newTestCoordinator(client, testConfig())
	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("per-item failures must not fail the run: %v", err)
	}
	if report.Status != StatusWithWarnings {
		t.Errorf("expected status %s, got %s", StatusWithWarnings, report.Status)
	}
	if report.NotesSkipped != 1 {
		t.Errorf("expected 1 skipped note, got %d", report.NotesSkipped)
	}
}
