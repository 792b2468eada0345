package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rohanthewiz/logger"

	"notemirror/models"
	"notemirror/remote"
)

// ============================================================================
// Sync Coordinator
//
// One run is a linear state machine with independent failure domains:
//
//   IdentityCheck -> PrimarySync -> LinkedNotebookSync (each) ->
//   ContentDownload -> TaskReminderSync (optional) -> Done
//
// An identity mismatch is fatal before any row is touched. After that, each
// stage's partial failures (one inaccessible linked notebook, a few note
// downloads that kept failing) downgrade to warnings and never block later
// stages — unless the failure classifies RateLimited or Fatal, in which case
// the whole run stops immediately with operator guidance.
// ============================================================================

// Coordinator drives one full sync run against the remote service.
type Coordinator struct {
	client remote.Client
	cfg    *Config
	retry  remote.RetryPolicy
}

// NewCoordinator wires a coordinator with the default retry policy.
func NewCoordinator(client remote.Client, cfg *Config) *Coordinator {
	return &Coordinator{
		client: client,
		cfg:    cfg,
		retry:  remote.DefaultRetryPolicy(),
	}
}

// Run executes one sync run and returns its report. The returned error is
// non-nil only for RateLimited and Fatal terminations; the report is always
// returned and always logged to the sync_runs table.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Status:    StatusCompleted,
	}
	logger.Info("Sync run starting", "run_id", report.RunID)

	err := c.runStages(ctx, report)

	report.FinishedAt = time.Now()
	if err != nil {
		switch remote.Classify(err) {
		case remote.ClassRateLimited:
			report.Status = StatusRateLimited
			report.RetryAfter = remote.RetryAfterOf(err)
		default:
			report.Status = StatusFailed
			report.FatalCause = err.Error()
		}
	} else if len(report.Warnings) > 0 || report.NotesSkipped > 0 || report.LinkedSkipped > 0 {
		report.Status = StatusWithWarnings
	}

	if recErr := models.RecordSyncRun(models.SyncRun{
		RunGUID:         report.RunID,
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
		Status:          report.Status,
		NotesDownloaded: report.NotesDownloaded,
		NotesSkipped:    report.NotesSkipped,
		Warnings:        report.Warnings,
	}); recErr != nil {
		logger.LogErr(recErr, "failed to record sync run", "run_id", report.RunID)
	}

	logger.Info("Sync run finished",
		"run_id", report.RunID,
		"status", report.Status,
		"primary_watermark", report.PrimaryWatermark,
		"downloaded", report.NotesDownloaded,
		"skipped", report.NotesSkipped,
	)
	return report, err
}

// runStages executes the stage sequence, stopping at the first RateLimited
// or Fatal condition.
func (c *Coordinator) runStages(ctx context.Context, report *Report) error {
	// Stage 1: identity guard — refuse to mix two accounts in one mirror.
	if err := c.identityCheck(ctx); err != nil {
		return err
	}

	// Stage 2: primary metadata sync.
	watermark, err := c.syncScope(ctx, remote.PrimaryScope(c.cfg.AuthToken), models.PrimarySyncScope)
	if err != nil {
		return err
	}
	report.PrimaryWatermark = watermark

	// Stage 3: linked notebooks, each isolated.
	if err := c.syncLinkedNotebooks(ctx, report); err != nil {
		return err
	}

	// Stage 4: content download.
	if err := c.downloadPendingBodies(ctx, report); err != nil {
		return err
	}

	// Stage 5: task/reminder stream, if enabled. Its failures never affect
	// note or notebook sync state, which is already durably committed.
	if c.cfg.TasksEnabled {
		if err := c.syncTasks(ctx, report); err != nil {
			return err
		}
	}

	return nil
}

// identityCheck authenticates and verifies the account identity guard.
// Any mismatch is fatal and happens before any stored row is mutated.
func (c *Coordinator) identityCheck(ctx context.Context) error {
	var accountID string
	err := c.retry.Do(ctx, "account_identity", func() error {
		var err error
		accountID, err = c.client.AccountIdentity(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if err := models.EnsureAccountIdentity(accountID); err != nil {
		return remote.Fatal("account identity check failed", err)
	}

	logger.Debug("Identity check passed", "account_id", accountID)
	return nil
}
