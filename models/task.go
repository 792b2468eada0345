package models

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"notemirror/remote"
)

// Task is a task row in the mirror. Tasks arrive through a separate API
// generation cursored by timestamp rather than by sequence number, but the
// apply-then-advance discipline is identical to chunks.
type Task struct {
	ID              int64          `db:"id" json:"id"`
	GUID            string         `db:"guid" json:"guid"`
	NoteGUID        sql.NullString `db:"note_guid" json:"note_guid,omitempty"`
	Title           sql.NullString `db:"title" json:"title,omitempty"`
	DueAt           sql.NullTime   `db:"due_at" json:"due_at,omitempty"`
	IsCompleted     bool           `db:"is_completed" json:"is_completed"`
	RemoteUpdatedAt sql.NullTime   `db:"remote_updated_at" json:"remote_updated_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Reminder is a reminder row attached to a task.
type Reminder struct {
	ID              int64          `db:"id" json:"id"`
	GUID            string         `db:"guid" json:"guid"`
	TaskGUID        string         `db:"task_guid" json:"task_guid"`
	RemindAt        sql.NullTime   `db:"remind_at" json:"remind_at,omitempty"`
	IsDone          bool           `db:"is_done" json:"is_done"`
	RemoteUpdatedAt sql.NullTime   `db:"remote_updated_at" json:"remote_updated_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ApplyTaskBatch applies one task/reminder batch atomically and advances the
// task cursor to the batch's NextCursor. Same crash semantics as ApplyChunk:
// rollback leaves the prior cursor, replay is idempotent.
func ApplyTaskBatch(batch *remote.TaskBatch) error {
	err := withTx(func(tx *sql.Tx) error {
		for _, t := range batch.Tasks {
			if err := upsertTaskTx(tx, t); err != nil {
				return err
			}
		}
		for _, r := range batch.Reminders {
			if err := upsertReminderTx(tx, r); err != nil {
				return err
			}
		}

		for _, guid := range batch.ExpungedTasks {
			if _, err := tx.Exec(`DELETE FROM tasks WHERE guid = ?`, guid); err != nil {
				return serr.Wrap(err, "failed to expunge task "+guid)
			}
			// Reminders hang off their task; expunge them with it
			if _, err := tx.Exec(`DELETE FROM reminders WHERE task_guid = ?`, guid); err != nil {
				return serr.Wrap(err, "failed to expunge reminders of task "+guid)
			}
		}
		for _, guid := range batch.ExpungedReminders {
			if _, err := tx.Exec(`DELETE FROM reminders WHERE guid = ?`, guid); err != nil {
				return serr.Wrap(err, "failed to expunge reminder "+guid)
			}
		}

		return setTaskCursorTx(tx, batch.NextCursor)
	})
	if err != nil {
		return err
	}

	logger.Debug("Applied task batch",
		"tasks", len(batch.Tasks),
		"reminders", len(batch.Reminders),
		"cursor", batch.NextCursor,
	)
	return nil
}

// upsertTaskTx writes one task keyed by GUID. Remote wins.
func upsertTaskTx(tx *sql.Tx, t remote.Task) error {
	noteGUID := sql.NullString{String: t.NoteGUID, Valid: t.NoteGUID != ""}
	title := sql.NullString{String: t.Title, Valid: t.Title != ""}
	var dueAt sql.NullTime
	if t.DueAt != nil {
		dueAt = sql.NullTime{Time: *t.DueAt, Valid: true}
	}

	_, err := tx.Exec(`
		INSERT INTO tasks (guid, note_guid, title, due_at, is_completed, remote_updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (guid) DO UPDATE SET
			note_guid = excluded.note_guid,
			title = excluded.title,
			due_at = excluded.due_at,
			is_completed = excluded.is_completed,
			remote_updated_at = excluded.remote_updated_at,
			updated_at = now()`,
		t.GUID, noteGUID, title, dueAt, t.Completed, t.UpdatedAt,
	)
	if err != nil {
		return serr.Wrap(err, "failed to upsert task "+t.GUID)
	}
	return nil
}

// upsertReminderTx writes one reminder keyed by GUID. Remote wins.
func upsertReminderTx(tx *sql.Tx, r remote.Reminder) error {
	var remindAt sql.NullTime
	if r.RemindAt != nil {
		remindAt = sql.NullTime{Time: *r.RemindAt, Valid: true}
	}

	_, err := tx.Exec(`
		INSERT INTO reminders (guid, task_guid, remind_at, is_done, remote_updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (guid) DO UPDATE SET
			task_guid = excluded.task_guid,
			remind_at = excluded.remind_at,
			is_done = excluded.is_done,
			remote_updated_at = excluded.remote_updated_at,
			updated_at = now()`,
		r.GUID, r.TaskGUID, remindAt, r.Done, r.UpdatedAt,
	)
	if err != nil {
		return serr.Wrap(err, "failed to upsert reminder "+r.GUID)
	}
	return nil
}

// setTaskCursorTx advances the task stream cursor, monotonic like watermarks.
func setTaskCursorTx(tx *sql.Tx, cursor int64) error {
	var current int64
	err := tx.QueryRow(`SELECT value FROM sync_config WHERE key = ?`, configKeyTaskCursor).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return serr.Wrap(err, "failed to read current task cursor")
	}
	if cursor < current {
		return serr.New("refusing to move task cursor backward: " +
			strconv.FormatInt(cursor, 10) + " < " + strconv.FormatInt(current, 10))
	}
	return setConfigValueTx(tx, configKeyTaskCursor, strconv.FormatInt(cursor, 10))
}

// GetTaskByGUID retrieves one task, nil if absent.
func GetTaskByGUID(guid string) (*Task, error) {
	t := &Task{}
	err := db.QueryRow(`
		SELECT id, guid, note_guid, title, due_at, is_completed, remote_updated_at, created_at, updated_at
		FROM tasks WHERE guid = ?`, guid,
	).Scan(&t.ID, &t.GUID, &t.NoteGUID, &t.Title, &t.DueAt, &t.IsCompleted,
		&t.RemoteUpdatedAt, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to get task by GUID")
	}
	return t, nil
}

// GetReminderByGUID retrieves one reminder, nil if absent.
func GetReminderByGUID(guid string) (*Reminder, error) {
	r := &Reminder{}
	err := db.QueryRow(`
		SELECT id, guid, task_guid, remind_at, is_done, remote_updated_at, created_at, updated_at
		FROM reminders WHERE guid = ?`, guid,
	).Scan(&r.ID, &r.GUID, &r.TaskGUID, &r.RemindAt, &r.IsDone,
		&r.RemoteUpdatedAt, &r.CreatedAt, &r.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to get reminder by GUID")
	}
	return r, nil
}
