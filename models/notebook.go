package models

import (
	"database/sql"
	"time"

	"github.com/rohanthewiz/serr"

	"notemirror/remote"
)

// Notebook is a notebook row in the mirror. LinkedNotebookGUID is set for
// notebooks that belong to a share from another account.
type Notebook struct {
	ID                 int64          `db:"id" json:"id"`
	GUID               string         `db:"guid" json:"guid"`
	Name               string         `db:"name" json:"name"`
	Stack              sql.NullString `db:"stack" json:"stack,omitempty"`
	IsDefault          bool           `db:"is_default" json:"is_default"`
	LinkedNotebookGUID sql.NullString `db:"linked_notebook_guid" json:"linked_notebook_guid,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// IsLinked reports whether the notebook came from a linked-notebook share.
func (nb *Notebook) IsLinked() bool {
	return nb.LinkedNotebookGUID.Valid
}

// upsertNotebookTx writes one notebook from a sync chunk, keyed by GUID.
// Remote wins: every mentioned field is overwritten. linkedGUID is empty for
// primary-scope chunks.
func upsertNotebookTx(tx *sql.Tx, nb remote.Notebook, linkedGUID string) error {
	stack := sql.NullString{String: nb.Stack, Valid: nb.Stack != ""}

	// A notebook arriving in a linked scope belongs to that share; one
	// arriving in the primary scope may still carry its own share reference.
	owner := linkedGUID
	if owner == "" {
		owner = nb.LinkedNotebookGUID
	}
	linked := sql.NullString{String: owner, Valid: owner != ""}

	_, err := tx.Exec(`
		INSERT INTO notebooks (guid, name, stack, is_default, linked_notebook_guid)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (guid) DO UPDATE SET
			name = excluded.name,
			stack = excluded.stack,
			is_default = excluded.is_default,
			linked_notebook_guid = excluded.linked_notebook_guid,
			updated_at = now()`,
		nb.GUID, nb.Name, stack, nb.IsDefault, linked,
	)
	if err != nil {
		return serr.Wrap(err, "failed to upsert notebook "+nb.GUID)
	}
	return nil
}

// expungeNotebookTx hard-removes a notebook named in a chunk's expunge list.
// Notes under it are expunged by their own notices; a dangling notebook_guid
// on a note simply means "not yet synced" to readers.
func expungeNotebookTx(tx *sql.Tx, guid string) error {
	if _, err := tx.Exec(`DELETE FROM notebooks WHERE guid = ?`, guid); err != nil {
		return serr.Wrap(err, "failed to expunge notebook "+guid)
	}
	return nil
}

// GetNotebookByGUID retrieves one notebook, nil if absent.
func GetNotebookByGUID(guid string) (*Notebook, error) {
	nb := &Notebook{}
	err := db.QueryRow(`
		SELECT id, guid, name, stack, is_default, linked_notebook_guid, created_at, updated_at
		FROM notebooks WHERE guid = ?`, guid,
	).Scan(&nb.ID, &nb.GUID, &nb.Name, &nb.Stack, &nb.IsDefault,
		&nb.LinkedNotebookGUID, &nb.CreatedAt, &nb.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to get notebook by GUID")
	}
	return nb, nil
}

// CountNotebooks returns the number of notebook rows in the mirror.
func CountNotebooks() (int, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM notebooks`).Scan(&count); err != nil {
		return 0, serr.Wrap(err, "failed to count notebooks")
	}
	return count, nil
}
