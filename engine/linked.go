package engine

import (
	"context"

	"github.com/rohanthewiz/logger"

	"notemirror/models"
	"notemirror/remote"
)

// syncLinkedNotebooks repeats the chunk-fetch/apply cycle for every linked
// notebook registered in the mirror, each under its own watermark and its
// own exchanged credential. Notebooks are processed sequentially; a notebook
// that cannot be authenticated or synced (typically because it was unshared)
// is logged, marked inaccessible, and skipped for this run — its watermark
// stays put and it is retried next run. Only RateLimited and Fatal
// conditions escape and stop the run.
func (c *Coordinator) syncLinkedNotebooks(ctx context.Context, report *Report) error {
	linked, err := models.ListLinkedNotebooks()
	if err != nil {
		return err
	}
	if len(linked) == 0 {
		return nil
	}

	logger.Info("Linked notebook sync starting", "count", len(linked))

	for _, ln := range linked {
		if err := c.syncOneLinkedNotebook(ctx, ln); err != nil {
			switch remote.Classify(err) {
			case remote.ClassRateLimited, remote.ClassFatal:
				// The account itself is throttled or broken, not just this
				// share — stop the run.
				return err
			}

			logger.LogErr(err, "linked notebook sync failed, skipping for this run",
				"linked_notebook", ln.GUID,
				"share_name", ln.ShareName.String,
			)
			report.LinkedSkipped++
			report.addWarning("linked notebook %q inaccessible, will retry next run", ln.ShareName.String)

			if accErr := models.SetLinkedNotebookAccessible(ln.GUID, false); accErr != nil {
				logger.LogErr(accErr, "failed to mark linked notebook inaccessible", "linked_notebook", ln.GUID)
			}
			continue
		}
		report.LinkedSynced++
	}

	return nil
}

// syncOneLinkedNotebook authenticates one share and runs its chunk loop.
func (c *Coordinator) syncOneLinkedNotebook(ctx context.Context, ln models.LinkedNotebook) error {
	var auth *remote.AuthScope
	err := c.retry.Do(ctx, "authenticate_linked_notebook", func() error {
		var err error
		auth, err = c.client.AuthenticateLinkedNotebook(ctx, ln.Remote())
		return err
	})
	if err != nil {
		// A revoked share surfaces as a fatal auth error from the client;
		// scoped to this notebook it is only a warning. Re-wrap so the
		// caller's classification treats it as skippable.
		if remote.Classify(err) == remote.ClassFatal {
			return &linkedAccessError{cause: err}
		}
		return err
	}

	scope := remote.LinkedScope(ln.GUID, auth.Token)
	_, err = c.syncScope(ctx, scope, models.SyncScope{LinkedNotebookGUID: ln.GUID})
	if err != nil {
		return err
	}

	if !ln.LastAccessible {
		if accErr := models.SetLinkedNotebookAccessible(ln.GUID, true); accErr != nil {
			logger.LogErr(accErr, "failed to mark linked notebook accessible", "linked_notebook", ln.GUID)
		}
	}
	return nil
}

// linkedAccessError downgrades a fatal per-share auth failure to a
// transient-classified, notebook-scoped condition so one revoked share
// cannot abort the whole run.
type linkedAccessError struct {
	cause error
}

func (e *linkedAccessError) Error() string {
	return "linked notebook not accessible: " + e.cause.Error()
}
