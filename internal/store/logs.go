package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/interfaces"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// LogStore persists the immutable care log as one append-only record list
// per (patient, date). Entries are write-once: there is no update or delete
// surface, and appending an already-present id is rejected.
type LogStore struct {
	kv     *KV
	logger *logger.Logger
}

// NewLogStore creates a new care log store
func NewLogStore(kv *KV, log *logger.Logger) interfaces.CareLogStore {
	return &LogStore{
		kv:     kv,
		logger: log,
	}
}

// AppendLogEntry appends one entry to the day's log.
func (s *LogStore) AppendLogEntry(ctx context.Context, entry *types.LogEntry) error {
	if entry.ID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "log entry id is required", nil)
	}

	date := entry.Timestamp.Format(types.DateLayout)

	entries, err := s.load(ctx, entry.PatientID, date)
	if err != nil {
		return err
	}

	for _, existing := range entries {
		if existing.ID == entry.ID {
			return types.NewConflictError(types.ErrCodeImmutableRecord,
				fmt.Sprintf("log entry already recorded: %s", entry.ID))
		}
	}

	entries = append(entries, entry)

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode log entries for %s/%s: %w", entry.PatientID, date, err)
	}

	if err := s.kv.Put(ctx, prefixLog, entry.PatientID, date, raw); err != nil {
		return err
	}

	s.logger.CareAction(entry.PatientID, string(entry.Outcome), string(entry.Category), true, nil)
	return nil
}

// ListLogEntries returns the day's log entries in append order.
func (s *LogStore) ListLogEntries(ctx context.Context, patientID, date string) ([]*types.LogEntry, error) {
	return s.load(ctx, patientID, date)
}

func (s *LogStore) load(ctx context.Context, patientID, date string) ([]*types.LogEntry, error) {
	raw, err := s.kv.Get(ctx, prefixLog, patientID, date)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var entries []*types.LogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode log entries for %s/%s: %w", patientID, date, err)
	}

	return entries, nil
}
