package models

import (
	"database/sql"
	"strconv"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// ============================================================================
// Sync Config Store
//
// The sync_config table is a small key/value store for the cursors and
// guards that make the mirror restartable:
//
//   primary_watermark — sequence number the primary account is synced to
//   task_cursor       — epoch-ms timestamp the task/reminder stream is synced to
//   account_identity  — identity guard: the account this store belongs to
//   schema_version    — store format version, checked at open
//
// Watermarks are written only inside the same transaction that applied the
// corresponding chunk — never before, and never partially.
// ============================================================================

const (
	configKeyPrimaryWatermark = "primary_watermark"
	configKeyTaskCursor       = "task_cursor"
	configKeyAccountIdentity  = "account_identity"
	configKeySchemaVersion    = "schema_version"
)

// currentSchemaVersion is bumped whenever the table layout changes in a way
// older binaries cannot read.
const currentSchemaVersion = 1

// ErrIdentityMismatch is returned when the authenticated account does not
// match the account this store was first synced for. Mixing two accounts in
// one mirror is never recoverable; callers must treat this as fatal.
var ErrIdentityMismatch = serr.New("authenticated account does not match the account recorded in this mirror")

// ErrSchemaIncompatible is returned when the store was written by an
// incompatible schema version.
var ErrSchemaIncompatible = serr.New("mirror database schema version is incompatible with this binary")

// getConfigValue reads one key from sync_config. Returns ("", false, nil)
// when the key is absent.
func getConfigValue(key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, serr.Wrap(err, "failed to read sync_config key "+key)
	}
	return value, true, nil
}

// setConfigValueTx upserts one key inside an existing transaction.
func setConfigValueTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		`INSERT INTO sync_config (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return serr.Wrap(err, "failed to write sync_config key "+key)
	}
	return nil
}

// PrimaryWatermark returns the primary account's persisted watermark, zero
// if the store has never synced.
func PrimaryWatermark() (int64, error) {
	value, ok, err := getConfigValue(configKeyPrimaryWatermark)
	if err != nil || !ok {
		return 0, err
	}
	wm, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, serr.Wrap(err, "corrupt primary watermark value: "+value)
	}
	return wm, nil
}

// setPrimaryWatermarkTx advances the primary watermark inside a chunk-apply
// transaction. The watermark is monotonically non-decreasing: a stale value
// is refused so a replayed or out-of-order chunk can never move it backward.
func setPrimaryWatermarkTx(tx *sql.Tx, watermark int64) error {
	var current int64
	err := tx.QueryRow(`SELECT value FROM sync_config WHERE key = ?`, configKeyPrimaryWatermark).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return serr.Wrap(err, "failed to read current primary watermark")
	}
	if watermark < current {
		return serr.New("refusing to move primary watermark backward: " +
			strconv.FormatInt(watermark, 10) + " < " + strconv.FormatInt(current, 10))
	}
	return setConfigValueTx(tx, configKeyPrimaryWatermark, strconv.FormatInt(watermark, 10))
}

// TaskCursor returns the persisted task/reminder stream cursor (epoch ms),
// zero if tasks have never synced.
func TaskCursor() (int64, error) {
	value, ok, err := getConfigValue(configKeyTaskCursor)
	if err != nil || !ok {
		return 0, err
	}
	cursor, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, serr.Wrap(err, "corrupt task cursor value: "+value)
	}
	return cursor, nil
}

// EnsureAccountIdentity records the account identifier on first sync and
// verifies it on every later sync. A mismatch returns ErrIdentityMismatch
// without touching any stored row.
func EnsureAccountIdentity(accountID string) error {
	if accountID == "" {
		return serr.New("empty account identity")
	}

	recorded, ok, err := getConfigValue(configKeyAccountIdentity)
	if err != nil {
		return err
	}

	if !ok {
		err := withTx(func(tx *sql.Tx) error {
			return setConfigValueTx(tx, configKeyAccountIdentity, accountID)
		})
		if err != nil {
			return serr.Wrap(err, "failed to record account identity")
		}
		logger.Info("Recorded account identity for this mirror", "account_id", accountID)
		return nil
	}

	if recorded != accountID {
		logger.LogErr(ErrIdentityMismatch, "identity guard rejected account",
			"recorded", recorded, "authenticated", accountID)
		return ErrIdentityMismatch
	}
	return nil
}

// AccountIdentity returns the recorded identity guard, empty if the store
// has never synced.
func AccountIdentity() (string, error) {
	value, _, err := getConfigValue(configKeyAccountIdentity)
	return value, err
}

// ensureSchemaVersion stamps a fresh store with the current schema version
// and refuses to open a store written by a different one.
func ensureSchemaVersion() error {
	value, ok, err := getConfigValue(configKeySchemaVersion)
	if err != nil {
		return err
	}

	if !ok {
		return withTx(func(tx *sql.Tx) error {
			return setConfigValueTx(tx, configKeySchemaVersion, strconv.Itoa(currentSchemaVersion))
		})
	}

	version, err := strconv.Atoi(value)
	if err != nil || version != currentSchemaVersion {
		return ErrSchemaIncompatible
	}
	return nil
}
