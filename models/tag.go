package models

import (
	"database/sql"
	"time"

	"github.com/rohanthewiz/serr"

	"notemirror/remote"
)

// Tag is a tag row in the mirror. Tags form a tree through ParentGUID; a
// parent that has not arrived yet is stored as-is and reads as "not yet
// synced" rather than an error.
type Tag struct {
	ID         int64          `db:"id" json:"id"`
	GUID       string         `db:"guid" json:"guid"`
	Name       string         `db:"name" json:"name"`
	ParentGUID sql.NullString `db:"parent_guid" json:"parent_guid,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// upsertTagTx writes one tag from a sync chunk, keyed by GUID. Remote wins.
func upsertTagTx(tx *sql.Tx, t remote.Tag) error {
	parent := sql.NullString{String: t.ParentGUID, Valid: t.ParentGUID != ""}

	_, err := tx.Exec(`
		INSERT INTO tags (guid, name, parent_guid)
		VALUES (?, ?, ?)
		ON CONFLICT (guid) DO UPDATE SET
			name = excluded.name,
			parent_guid = excluded.parent_guid,
			updated_at = now()`,
		t.GUID, t.Name, parent,
	)
	if err != nil {
		return serr.Wrap(err, "failed to upsert tag "+t.GUID)
	}
	return nil
}

// expungeTagTx hard-removes a tag. Child tags keep their parent_guid
// reference; notes keep the GUID in tag_guids — both read as dangling.
func expungeTagTx(tx *sql.Tx, guid string) error {
	if _, err := tx.Exec(`DELETE FROM tags WHERE guid = ?`, guid); err != nil {
		return serr.Wrap(err, "failed to expunge tag "+guid)
	}
	return nil
}

// GetTagByGUID retrieves one tag, nil if absent.
func GetTagByGUID(guid string) (*Tag, error) {
	t := &Tag{}
	err := db.QueryRow(`
		SELECT id, guid, name, parent_guid, created_at, updated_at
		FROM tags WHERE guid = ?`, guid,
	).Scan(&t.ID, &t.GUID, &t.Name, &t.ParentGUID, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to get tag by GUID")
	}
	return t, nil
}

// CountTags returns the number of tag rows in the mirror.
func CountTags() (int, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tags`).Scan(&count); err != nil {
		return 0, serr.Wrap(err, "failed to count tags")
	}
	return count, nil
}
