package models

import (
	"database/sql"

	"github.com/rohanthewiz/logger"

	"notemirror/remote"
)

// ============================================================================
// Chunk Application
//
// ApplyChunk is the single write path for metadata sync. One chunk is one
// DuckDB transaction: entity upserts, then expunges, then the watermark
// advance — commit or nothing. A crash mid-apply leaves the previous
// watermark intact, and the next run refetches and reapplies the same chunk;
// upsert/delete-by-GUID semantics make the replay a no-op.
//
// Referential integrity is deliberately NOT enforced at write time. Chunks
// are denormalized: a note may reference a notebook or tag that arrives in a
// later chunk, and readers must treat dangling references as "not yet
// synced".
// ============================================================================

// SyncScope names the local watermark a chunk apply advances: the primary
// account (zero value) or one linked notebook.
type SyncScope struct {
	LinkedNotebookGUID string
}

// PrimarySyncScope is the scope of the main account stream.
var PrimarySyncScope = SyncScope{}

// IsPrimary reports whether this is the primary account scope.
func (s SyncScope) IsPrimary() bool {
	return s.LinkedNotebookGUID == ""
}

// Name returns a stable label for logging.
func (s SyncScope) Name() string {
	if s.IsPrimary() {
		return "primary"
	}
	return "linked:" + s.LinkedNotebookGUID
}

// Watermark returns the scope's persisted watermark.
func (s SyncScope) Watermark() (int64, error) {
	if s.IsPrimary() {
		return PrimaryWatermark()
	}
	ln, err := GetLinkedNotebookByGUID(s.LinkedNotebookGUID)
	if err != nil {
		return 0, err
	}
	if ln == nil {
		return 0, nil
	}
	return ln.Watermark, nil
}

// ApplyChunk applies one sync chunk to the mirror as a single atomic unit
// and advances the scope's watermark to the chunk's trailing value.
func ApplyChunk(scope SyncScope, chunk *remote.Chunk) error {
	err := withTx(func(tx *sql.Tx) error {
		// Linked-notebook registrations first: primary-scope chunks are how
		// new shares are discovered.
		for _, ln := range chunk.LinkedNotebooks {
			if err := upsertLinkedNotebookTx(tx, ln); err != nil {
				return err
			}
		}

		for _, nb := range chunk.Notebooks {
			if err := upsertNotebookTx(tx, nb, scope.LinkedNotebookGUID); err != nil {
				return err
			}
		}

		for _, t := range chunk.Tags {
			if err := upsertTagTx(tx, t); err != nil {
				return err
			}
		}

		for _, n := range chunk.Notes {
			if err := upsertNoteMetadataTx(tx, n); err != nil {
				return err
			}
		}

		for _, guid := range chunk.ExpungedNotebooks {
			if err := expungeNotebookTx(tx, guid); err != nil {
				return err
			}
		}
		for _, guid := range chunk.ExpungedNotes {
			if err := expungeNoteTx(tx, guid); err != nil {
				return err
			}
		}
		for _, guid := range chunk.ExpungedTags {
			if err := expungeTagTx(tx, guid); err != nil {
				return err
			}
		}
		for _, guid := range chunk.ExpungedLinkedNotebooks {
			if err := expungeLinkedNotebookTx(tx, guid); err != nil {
				return err
			}
		}

		// Watermark last, inside the same transaction — the chunk is
		// "synced" if and only if everything above committed with it.
		if scope.IsPrimary() {
			return setPrimaryWatermarkTx(tx, chunk.FinalWatermark)
		}
		return setLinkedWatermarkTx(tx, scope.LinkedNotebookGUID, chunk.FinalWatermark)
	})
	if err != nil {
		return err
	}

	logger.Debug("Applied sync chunk",
		"scope", scope.Name(),
		"entries", chunk.EntryCount(),
		"watermark", chunk.FinalWatermark,
	)
	return nil
}
