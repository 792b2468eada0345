package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"notemirror/remote"
)

// Note is a note row in the mirror. Body is NULL until the content download
// pass persists it — the "pending download" work queue is exactly the set of
// active notes whose body is NULL, so no separate task list is kept.
type Note struct {
	ID             int64          `db:"id" json:"id"`
	GUID           string         `db:"guid" json:"guid"`
	NotebookGUID   string         `db:"notebook_guid" json:"notebook_guid"`
	Title          string         `db:"title" json:"title"`
	IsActive       bool           `db:"is_active" json:"is_active"`
	TagGUIDs       sql.NullString `db:"tag_guids" json:"tag_guids,omitempty"` // JSON array
	ContentSize    int64          `db:"content_size" json:"content_size"`
	ContentHash    sql.NullString `db:"content_hash" json:"content_hash,omitempty"`
	Body           []byte         `db:"body" json:"-"`
	ContentSavedAt sql.NullTime   `db:"content_saved_at" json:"content_saved_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// HasBody reports whether the note's content has been downloaded.
func (n *Note) HasBody() bool {
	return len(n.Body) > 0
}

// TagGUIDList decodes the tag_guids JSON array.
func (n *Note) TagGUIDList() []string {
	if !n.TagGUIDs.Valid || n.TagGUIDs.String == "" {
		return nil
	}
	var guids []string
	if err := json.Unmarshal([]byte(n.TagGUIDs.String), &guids); err != nil {
		logger.LogErr(err, "failed to parse note tag_guids", "note_guid", n.GUID)
		return nil
	}
	return guids
}

// upsertNoteMetadataTx writes one note's metadata from a sync chunk, keyed
// by GUID. New notes are inserted with body NULL; existing notes keep their
// downloaded body across metadata updates. The one exception: when the
// remote content hash changed, the stale body is cleared so the note
// re-enters the pending-download set and converges to the new content.
// Soft deletion (trash) arrives as active=false through this same path.
func upsertNoteMetadataTx(tx *sql.Tx, n remote.NoteMetadata) error {
	var tagGUIDs sql.NullString
	if len(n.TagGUIDs) > 0 {
		jsonBytes, err := json.Marshal(n.TagGUIDs)
		if err != nil {
			return serr.Wrap(err, "failed to encode tag GUIDs for note "+n.GUID)
		}
		tagGUIDs = sql.NullString{String: string(jsonBytes), Valid: true}
	}
	hash := sql.NullString{String: n.ContentHash, Valid: n.ContentHash != ""}

	_, err := tx.Exec(`
		INSERT INTO notes (guid, notebook_guid, title, is_active, tag_guids, content_size, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (guid) DO UPDATE SET
			notebook_guid = excluded.notebook_guid,
			title = excluded.title,
			is_active = excluded.is_active,
			tag_guids = excluded.tag_guids,
			content_size = excluded.content_size,
			body = CASE WHEN notes.content_hash IS DISTINCT FROM excluded.content_hash
			            THEN NULL ELSE notes.body END,
			content_saved_at = CASE WHEN notes.content_hash IS DISTINCT FROM excluded.content_hash
			                        THEN NULL ELSE notes.content_saved_at END,
			content_hash = excluded.content_hash,
			updated_at = now()`,
		n.GUID, n.NotebookGUID, n.Title, n.Active, tagGUIDs, n.ContentSize, hash,
	)
	if err != nil {
		return serr.Wrap(err, "failed to upsert note metadata "+n.GUID)
	}
	return nil
}

// expungeNoteTx hard-removes a note, body and all.
func expungeNoteTx(tx *sql.Tx, guid string) error {
	if _, err := tx.Exec(`DELETE FROM notes WHERE guid = ?`, guid); err != nil {
		return serr.Wrap(err, "failed to expunge note "+guid)
	}
	return nil
}

// PendingContentNote is one entry of the content-download work queue.
type PendingContentNote struct {
	GUID        string
	Title       string
	ContentSize int64
}

// PendingContentNotes returns every active note whose body has not been
// downloaded, smallest content first so the pool stays busy under a tight
// memory budget. This query IS the download queue: a note leaves it the
// moment its body is persisted or it is expunged.
func PendingContentNotes() ([]PendingContentNote, error) {
	rows, err := db.Query(`
		SELECT guid, title, content_size
		FROM notes
		WHERE is_active AND body IS NULL
		ORDER BY content_size ASC, guid ASC`)
	if err != nil {
		return nil, serr.Wrap(err, "failed to query pending content notes")
	}
	defer rows.Close()

	var pending []PendingContentNote
	for rows.Next() {
		var p PendingContentNote
		if err := rows.Scan(&p.GUID, &p.Title, &p.ContentSize); err != nil {
			return nil, serr.Wrap(err, "failed to scan pending content note")
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// SaveNoteContent persists one downloaded body immediately (not batched),
// so every completion up to an interruption survives the crash. Returns
// saved=false without error when the note was expunged or trashed between
// metadata sync and download — the caller drops it from accounting.
func SaveNoteContent(guid string, encodedBody []byte) (saved bool, err error) {
	result, err := db.Exec(`
		UPDATE notes
		SET body = ?, content_saved_at = CURRENT_TIMESTAMP
		WHERE guid = ? AND is_active`,
		encodedBody, guid,
	)
	if err != nil {
		return false, serr.Wrap(err, "failed to save note content "+guid)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		logger.Debug("Note vanished before content persist, dropping", "note_guid", guid)
		return false, nil
	}
	return true, nil
}

// GetNoteByGUID retrieves one note (including its body), nil if absent.
func GetNoteByGUID(guid string) (*Note, error) {
	n := &Note{}
	err := db.QueryRow(`
		SELECT id, guid, notebook_guid, title, is_active, tag_guids,
		       content_size, content_hash, body, content_saved_at, created_at, updated_at
		FROM notes WHERE guid = ?`, guid,
	).Scan(&n.ID, &n.GUID, &n.NotebookGUID, &n.Title, &n.IsActive, &n.TagGUIDs,
		&n.ContentSize, &n.ContentHash, &n.Body, &n.ContentSavedAt, &n.CreatedAt, &n.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to get note by GUID")
	}
	return n, nil
}

// CountNotes returns the number of note rows in the mirror.
func CountNotes() (int, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&count); err != nil {
		return 0, serr.Wrap(err, "failed to count notes")
	}
	return count, nil
}
