package engine

import (
	"context"

	"github.com/rohanthewiz/logger"

	"notemirror/models"
	"notemirror/remote"
)

// syncTasks runs the task/reminder stream's incremental sync. Same shape as
// the chunk loop, but the task API generation is cursored by timestamp
// (epoch milliseconds) rather than by sequence number. Each batch applies
// atomically with its cursor advance, so interruption semantics match
// metadata sync exactly.
func (c *Coordinator) syncTasks(ctx context.Context, report *Report) error {
	cursor, err := models.TaskCursor()
	if err != nil {
		return err
	}

	logger.Info("Task sync starting", "cursor", cursor)

	for {
		var batch *remote.TaskBatch
		err := c.retry.Do(ctx, "fetch_task_batch", func() error {
			var err error
			batch, err = c.client.FetchTaskBatch(ctx, cursor, c.cfg.MaxChunkSize)
			return err
		})
		if err != nil {
			return err
		}

		empty := len(batch.Tasks) == 0 && len(batch.Reminders) == 0 &&
			len(batch.ExpungedTasks) == 0 && len(batch.ExpungedReminders) == 0
		if empty && batch.NextCursor <= cursor {
			break
		}

		if err := models.ApplyTaskBatch(batch); err != nil {
			return err
		}
		cursor = batch.NextCursor

		if !batch.HasMore {
			break
		}
	}

	report.TasksSynced = true
	report.TaskCursor = cursor
	logger.Info("Task sync complete", "cursor", cursor)
	return nil
}
