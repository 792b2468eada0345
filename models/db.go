package models

import (
	"database/sql"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// db is the package-level handle to the local mirror store. A single DuckDB
// file holds everything: entities, bodies, watermarks, and the identity
// guard, so one transaction can cover a whole chunk apply.
var db *sql.DB

// InitDB opens (or creates) the mirror database at path, runs migrations,
// and verifies the schema version. An incompatible schema is a fatal,
// non-retryable condition — the caller must not proceed.
func InitDB(path string) error {
	var err error

	db, err = sql.Open("duckdb", path)
	if err != nil {
		return serr.Wrap(err, "failed to open mirror database")
	}

	if err := migrateDB(db); err != nil {
		return serr.Wrap(err, "failed to migrate mirror database")
	}

	if err := ensureSchemaVersion(); err != nil {
		return err
	}

	logger.Info("Mirror database ready", "path", path)
	return nil
}

// InitTestDB opens a throwaway database for tests. Identical to InitDB but
// quiet about it.
func InitTestDB(path string) error {
	var err error

	db, err = sql.Open("duckdb", path)
	if err != nil {
		return serr.Wrap(err, "failed to open test database")
	}
	if err := migrateDB(db); err != nil {
		return serr.Wrap(err, "failed to migrate test database")
	}
	return ensureSchemaVersion()
}

// CloseDB closes the database connection.
func CloseDB() {
	if db != nil {
		db.Close()
		db = nil
	}
}

// withTx runs fn inside a transaction, rolling back on error. Every
// multi-row mutation in this package goes through here so a crash at any
// point leaves the store at the previous consistent state.
func withTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return serr.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.LogErr(rbErr, "rollback failed after transaction error")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return serr.Wrap(err, "failed to commit transaction")
	}
	return nil
}
