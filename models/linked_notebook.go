package models

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/rohanthewiz/serr"

	"notemirror/remote"
)

// LinkedNotebook is the registration row for a notebook shared into this
// account from another account. Each one carries its own watermark and is
// synchronized fully independently of the primary account: a failure in one
// linked notebook's sync must not disturb any other watermark.
type LinkedNotebook struct {
	ID             int64          `db:"id" json:"id"`
	GUID           string         `db:"guid" json:"guid"`
	ShareName      sql.NullString `db:"share_name" json:"share_name,omitempty"`
	ShareKey       sql.NullString `db:"share_key" json:"share_key,omitempty"`
	ShardID        sql.NullString `db:"shard_id" json:"shard_id,omitempty"`
	Watermark      int64          `db:"watermark" json:"watermark"`
	LastAccessible bool           `db:"last_accessible" json:"last_accessible"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Remote converts the registration row back into its wire form for the
// authentication exchange.
func (ln *LinkedNotebook) Remote() remote.LinkedNotebook {
	return remote.LinkedNotebook{
		GUID:      ln.GUID,
		ShareName: ln.ShareName.String,
		ShareKey:  ln.ShareKey.String,
		ShardID:   ln.ShardID.String,
	}
}

// upsertLinkedNotebookTx registers or refreshes a linked notebook discovered
// in a primary-scope chunk. The share fields are remote-owned and
// overwritten; the watermark is local sync progress and is never touched
// here — only a successful chunk apply for the linked scope advances it.
func upsertLinkedNotebookTx(tx *sql.Tx, ln remote.LinkedNotebook) error {
	shareName := sql.NullString{String: ln.ShareName, Valid: ln.ShareName != ""}
	shareKey := sql.NullString{String: ln.ShareKey, Valid: ln.ShareKey != ""}
	shardID := sql.NullString{String: ln.ShardID, Valid: ln.ShardID != ""}

	_, err := tx.Exec(`
		INSERT INTO linked_notebooks (guid, share_name, share_key, shard_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (guid) DO UPDATE SET
			share_name = excluded.share_name,
			share_key = excluded.share_key,
			shard_id = excluded.shard_id,
			updated_at = now()`,
		ln.GUID, shareName, shareKey, shardID,
	)
	if err != nil {
		return serr.Wrap(err, "failed to upsert linked notebook "+ln.GUID)
	}
	return nil
}

// expungeLinkedNotebookTx removes a linked notebook registration. The share
// content it brought in is expunged through that scope's own notices; any
// remaining rows read as dangling until then.
func expungeLinkedNotebookTx(tx *sql.Tx, guid string) error {
	if _, err := tx.Exec(`DELETE FROM linked_notebooks WHERE guid = ?`, guid); err != nil {
		return serr.Wrap(err, "failed to expunge linked notebook "+guid)
	}
	return nil
}

// ListLinkedNotebooks returns every linked notebook registration.
func ListLinkedNotebooks() ([]LinkedNotebook, error) {
	rows, err := db.Query(`
		SELECT id, guid, share_name, share_key, shard_id, watermark, last_accessible, created_at, updated_at
		FROM linked_notebooks ORDER BY guid`)
	if err != nil {
		return nil, serr.Wrap(err, "failed to list linked notebooks")
	}
	defer rows.Close()

	var notebooks []LinkedNotebook
	for rows.Next() {
		var ln LinkedNotebook
		if err := rows.Scan(&ln.ID, &ln.GUID, &ln.ShareName, &ln.ShareKey, &ln.ShardID,
			&ln.Watermark, &ln.LastAccessible, &ln.CreatedAt, &ln.UpdatedAt); err != nil {
			return nil, serr.Wrap(err, "failed to scan linked notebook")
		}
		notebooks = append(notebooks, ln)
	}
	return notebooks, rows.Err()
}

// GetLinkedNotebookByGUID retrieves one registration, nil if absent.
func GetLinkedNotebookByGUID(guid string) (*LinkedNotebook, error) {
	ln := &LinkedNotebook{}
	err := db.QueryRow(`
		SELECT id, guid, share_name, share_key, shard_id, watermark, last_accessible, created_at, updated_at
		FROM linked_notebooks WHERE guid = ?`, guid,
	).Scan(&ln.ID, &ln.GUID, &ln.ShareName, &ln.ShareKey, &ln.ShardID,
		&ln.Watermark, &ln.LastAccessible, &ln.CreatedAt, &ln.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to get linked notebook by GUID")
	}
	return ln, nil
}

// setLinkedWatermarkTx advances one linked notebook's watermark inside its
// chunk-apply transaction. Monotonic, same as the primary watermark.
func setLinkedWatermarkTx(tx *sql.Tx, guid string, watermark int64) error {
	var current int64
	err := tx.QueryRow(`SELECT watermark FROM linked_notebooks WHERE guid = ?`, guid).Scan(&current)
	if err == sql.ErrNoRows {
		return serr.New("linked notebook not registered: " + guid)
	}
	if err != nil {
		return serr.Wrap(err, "failed to read linked notebook watermark")
	}
	if watermark < current {
		return serr.New("refusing to move linked notebook watermark backward: " +
			strconv.FormatInt(watermark, 10) + " < " + strconv.FormatInt(current, 10))
	}

	_, err = tx.Exec(`
		UPDATE linked_notebooks SET watermark = ?, updated_at = CURRENT_TIMESTAMP WHERE guid = ?`,
		watermark, guid,
	)
	if err != nil {
		return serr.Wrap(err, "failed to set linked notebook watermark")
	}
	return nil
}

// SetLinkedNotebookAccessible records whether the last sync attempt could
// reach this share. Informational only — an inaccessible notebook is retried
// on the next run regardless.
func SetLinkedNotebookAccessible(guid string, accessible bool) error {
	_, err := db.Exec(`
		UPDATE linked_notebooks SET last_accessible = ?, updated_at = CURRENT_TIMESTAMP WHERE guid = ?`,
		accessible, guid,
	)
	if err != nil {
		return serr.Wrap(err, "failed to update linked notebook accessibility")
	}
	return nil
}
