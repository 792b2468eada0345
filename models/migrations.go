package models

import (
	"database/sql"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// migrateDB creates the mirror schema. All statements are idempotent so the
// migration can run on every startup.
func migrateDB(db *sql.DB) error {
	// Sequences for auto-incrementing IDs in DuckDB
	sequences := []string{
		"CREATE SEQUENCE IF NOT EXISTS notebooks_id_seq START 1",
		"CREATE SEQUENCE IF NOT EXISTS notes_id_seq START 1",
		"CREATE SEQUENCE IF NOT EXISTS tags_id_seq START 1",
		"CREATE SEQUENCE IF NOT EXISTS linked_notebooks_id_seq START 1",
		"CREATE SEQUENCE IF NOT EXISTS tasks_id_seq START 1",
		"CREATE SEQUENCE IF NOT EXISTS reminders_id_seq START 1",
		"CREATE SEQUENCE IF NOT EXISTS sync_runs_id_seq START 1",
	}

	for _, seqSQL := range sequences {
		if _, err := db.Exec(seqSQL); err != nil {
			logger.LogErr(err, "failed to create sequence", "sql", seqSQL)
			// Continue even if sequence exists
		}
	}

	notebooksTableSQL := `
	CREATE TABLE IF NOT EXISTS notebooks (
		id INTEGER PRIMARY KEY DEFAULT nextval('notebooks_id_seq'),
		guid VARCHAR(40) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		stack VARCHAR(255),
		is_default BOOLEAN DEFAULT false,
		linked_notebook_guid VARCHAR(40),  -- NULL for notebooks owned by this account
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := db.Exec(notebooksTableSQL); err != nil {
		return serr.Wrap(err, "failed to create notebooks table")
	}

	notesTableSQL := `
	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY DEFAULT nextval('notes_id_seq'),
		guid VARCHAR(40) UNIQUE NOT NULL,
		notebook_guid VARCHAR(40) NOT NULL,
		title VARCHAR(512) NOT NULL,
		is_active BOOLEAN DEFAULT true,
		tag_guids TEXT,  -- JSON array of tag GUIDs
		content_size BIGINT DEFAULT 0,
		content_hash VARCHAR(64),
		body BLOB,  -- NULL until the content download pass persists it
		content_saved_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := db.Exec(notesTableSQL); err != nil {
		return serr.Wrap(err, "failed to create notes table")
	}

	tagsTableSQL := `
	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY DEFAULT nextval('tags_id_seq'),
		guid VARCHAR(40) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		parent_guid VARCHAR(40),  -- tags form a tree
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := db.Exec(tagsTableSQL); err != nil {
		return serr.Wrap(err, "failed to create tags table")
	}

	linkedNotebooksTableSQL := `
	CREATE TABLE IF NOT EXISTS linked_notebooks (
		id INTEGER PRIMARY KEY DEFAULT nextval('linked_notebooks_id_seq'),
		guid VARCHAR(40) UNIQUE NOT NULL,
		share_name VARCHAR(255),
		share_key VARCHAR(255),
		shard_id VARCHAR(40),
		watermark BIGINT DEFAULT 0,
		last_accessible BOOLEAN DEFAULT true,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := db.Exec(linkedNotebooksTableSQL); err != nil {
		return serr.Wrap(err, "failed to create linked_notebooks table")
	}

	syncConfigTableSQL := `
	CREATE TABLE IF NOT EXISTS sync_config (
		key VARCHAR(64) PRIMARY KEY,
		value VARCHAR(255) NOT NULL
	)`

	if _, err := db.Exec(syncConfigTableSQL); err != nil {
		return serr.Wrap(err, "failed to create sync_config table")
	}

	tasksTableSQL := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY DEFAULT nextval('tasks_id_seq'),
		guid VARCHAR(40) UNIQUE NOT NULL,
		note_guid VARCHAR(40),
		title VARCHAR(512),
		due_at TIMESTAMP,
		is_completed BOOLEAN DEFAULT false,
		remote_updated_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := db.Exec(tasksTableSQL); err != nil {
		return serr.Wrap(err, "failed to create tasks table")
	}

	remindersTableSQL := `
	CREATE TABLE IF NOT EXISTS reminders (
		id INTEGER PRIMARY KEY DEFAULT nextval('reminders_id_seq'),
		guid VARCHAR(40) UNIQUE NOT NULL,
		task_guid VARCHAR(40) NOT NULL,
		remind_at TIMESTAMP,
		is_done BOOLEAN DEFAULT false,
		remote_updated_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := db.Exec(remindersTableSQL); err != nil {
		return serr.Wrap(err, "failed to create reminders table")
	}

	// sync_runs logs each sync invocation for operator visibility
	syncRunsTableSQL := `
	CREATE TABLE IF NOT EXISTS sync_runs (
		id INTEGER PRIMARY KEY DEFAULT nextval('sync_runs_id_seq'),
		run_guid VARCHAR(40) NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		status VARCHAR(32),
		notes_downloaded INTEGER DEFAULT 0,
		notes_skipped INTEGER DEFAULT 0,
		warnings TEXT
	)`

	if _, err := db.Exec(syncRunsTableSQL); err != nil {
		return serr.Wrap(err, "failed to create sync_runs table")
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_notes_notebook ON notes(notebook_guid)",
		"CREATE INDEX IF NOT EXISTS idx_notes_pending ON notes(is_active, content_saved_at)",
		"CREATE INDEX IF NOT EXISTS idx_notebooks_linked ON notebooks(linked_notebook_guid)",
		"CREATE INDEX IF NOT EXISTS idx_tags_parent ON tags(parent_guid)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_note ON tasks(note_guid)",
		"CREATE INDEX IF NOT EXISTS idx_reminders_task ON reminders(task_guid)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.Exec(idxSQL); err != nil {
			logger.LogErr(err, "failed to create index", "sql", idxSQL)
		}
	}

	return nil
}
