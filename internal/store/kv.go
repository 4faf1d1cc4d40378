package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/database"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// Key prefixes for the namespaced key space <prefix>:<patientID>[:<date>].
const (
	prefixConfig    = "careconfig"
	prefixPlan      = "careplan"
	prefixItems     = "careitems"
	prefixInstances = "careinstances"
	prefixLog       = "carelog"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	k TEXT PRIMARY KEY,
	v BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_date_index (
	prefix TEXT NOT NULL,
	patient_id TEXT NOT NULL,
	date TEXT NOT NULL,
	PRIMARY KEY (prefix, patient_id, date)
);
`

// KV is the embedded key-value layer shared by the care plan stores. Keys
// are namespaced strings; dated keys are additionally tracked in a date
// index so range queries never need a full scan. The index is pruned
// opportunistically on write against the retention window.
type KV struct {
	db            *database.DB
	logger        *logger.Logger
	retentionDays int
}

// NewKV initializes the schema and returns the key-value layer.
func NewKV(db *database.DB, retentionDays int, log *logger.Logger) (*KV, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize kv schema: %w", err)
	}

	return &KV{
		db:            db,
		logger:        log,
		retentionDays: retentionDays,
	}, nil
}

// makeKey builds a namespaced key. date may be empty for undated records.
func makeKey(prefix, patientID, date string) string {
	if date == "" {
		return prefix + ":" + patientID
	}
	return prefix + ":" + patientID + ":" + date
}

// Get returns the value for a key, or (nil, nil) when the key is absent.
func (kv *KV) Get(ctx context.Context, prefix, patientID, date string) ([]byte, error) {
	key := makeKey(prefix, patientID, date)

	var value []byte
	err := kv.db.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		kv.logger.WithError(err).Errorf("Failed to read key %s", key)
		return nil, types.NewStorageError(types.ErrCodeStorageFailure, fmt.Sprintf("failed to read key %s", key), err)
	}

	return value, nil
}

// Put writes a value under a key. Dated keys are recorded in the date index
// and trigger retention pruning in the same transaction, so a failed write
// leaves no state change behind.
func (kv *KV) Put(ctx context.Context, prefix, patientID, date string, value []byte) error {
	key := makeKey(prefix, patientID, date)
	now := time.Now()

	tx, err := kv.db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewStorageError(types.ErrCodeStorageFailure, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (k, v, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`,
		key, value, now, now,
	)
	if err != nil {
		kv.logger.WithError(err).Errorf("Failed to write key %s", key)
		return types.NewStorageError(types.ErrCodeStorageFailure, fmt.Sprintf("failed to write key %s", key), err)
	}

	if date != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO kv_date_index (prefix, patient_id, date) VALUES (?, ?, ?)`,
			prefix, patientID, date,
		)
		if err != nil {
			return types.NewStorageError(types.ErrCodeStorageFailure, "failed to update date index", err)
		}

		if err := kv.pruneTx(ctx, tx, prefix, patientID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.NewStorageError(types.ErrCodeStorageFailure, "failed to commit write", err)
	}

	return nil
}

// Delete removes a key and its index row.
func (kv *KV) Delete(ctx context.Context, prefix, patientID, date string) error {
	key := makeKey(prefix, patientID, date)

	tx, err := kv.db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewStorageError(types.ErrCodeStorageFailure, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE k = ?", key); err != nil {
		return types.NewStorageError(types.ErrCodeStorageFailure, fmt.Sprintf("failed to delete key %s", key), err)
	}

	if date != "" {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM kv_date_index WHERE prefix = ? AND patient_id = ? AND date = ?",
			prefix, patientID, date,
		); err != nil {
			return types.NewStorageError(types.ErrCodeStorageFailure, "failed to prune date index", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.NewStorageError(types.ErrCodeStorageFailure, "failed to commit delete", err)
	}

	return nil
}

// ListDates returns the indexed dates for a prefix and patient within
// [fromDate, toDate], ascending. Date keys use the YYYY-MM-DD layout, so
// lexicographic order is chronological order.
func (kv *KV) ListDates(ctx context.Context, prefix, patientID, fromDate, toDate string) ([]string, error) {
	rows, err := kv.db.QueryContext(ctx, `
		SELECT date FROM kv_date_index
		WHERE prefix = ? AND patient_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		prefix, patientID, fromDate, toDate,
	)
	if err != nil {
		return nil, types.NewStorageError(types.ErrCodeStorageFailure, "failed to query date index", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, types.NewStorageError(types.ErrCodeStorageFailure, "failed to scan date index row", err)
		}
		dates = append(dates, date)
	}

	return dates, rows.Err()
}

// pruneTx drops index rows and values older than the retention window. It
// runs inside dated writes rather than as a separate sweep job.
func (kv *KV) pruneTx(ctx context.Context, tx *sql.Tx, prefix, patientID string) error {
	cutoff := time.Now().AddDate(0, 0, -kv.retentionDays).Format(types.DateLayout)

	rows, err := tx.QueryContext(ctx, `
		SELECT date FROM kv_date_index
		WHERE prefix = ? AND patient_id = ? AND date < ?`,
		prefix, patientID, cutoff,
	)
	if err != nil {
		return types.NewStorageError(types.ErrCodeStorageFailure, "failed to query stale index rows", err)
	}

	var stale []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			rows.Close()
			return types.NewStorageError(types.ErrCodeStorageFailure, "failed to scan stale index row", err)
		}
		stale = append(stale, date)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return types.NewStorageError(types.ErrCodeStorageFailure, "failed to iterate stale index rows", err)
	}

	if len(stale) == 0 {
		return nil
	}

	for _, date := range stale {
		key := makeKey(prefix, patientID, date)
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE k = ?", key); err != nil {
			return types.NewStorageError(types.ErrCodeStorageFailure, "failed to prune stale key", err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(stale)), ",")
	args := make([]interface{}, 0, len(stale)+2)
	args = append(args, prefix, patientID)
	for _, date := range stale {
		args = append(args, date)
	}

	query := fmt.Sprintf(
		"DELETE FROM kv_date_index WHERE prefix = ? AND patient_id = ? AND date IN (%s)",
		placeholders,
	)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return types.NewStorageError(types.ErrCodeStorageFailure, "failed to prune date index", err)
	}

	kv.logger.Debugf("Pruned %d stale %s entries for patient %s", len(stale), prefix, patientID)
	return nil
}
