package local

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/andrewblevins/space-sub000/internal/space"
)

// The MigrationRecord is persisted across three keys (status, date and
// summary), matching the shape other contexts expect to find in the store.

// LoadMigrationRecord returns the stored record, or a not-started record
// when none exists. A malformed summary degrades to an empty one rather
// than failing: the status key alone decides whether migration re-runs.
func (r *Repository) LoadMigrationRecord() (*space.MigrationRecord, error) {
	rec := &space.MigrationRecord{Status: space.MigrationNotStarted}

	status, ok, err := r.store.Get(space.KeyMigrationStatus)
	if err != nil {
		return nil, fmt.Errorf("reading migration status: %w", err)
	}
	if !ok {
		return rec, nil
	}

	switch space.MigrationStatus(status) {
	case space.MigrationCompleted, space.MigrationSkipped:
		rec.Status = space.MigrationStatus(status)
	default:
		r.logger.Warn("ignoring unknown migration status", "status", status)
		return rec, nil
	}

	if date, ok, err := r.store.Get(space.KeyMigrationDate); err != nil {
		return nil, fmt.Errorf("reading migration date: %w", err)
	} else if ok {
		if t, parseErr := time.Parse(time.RFC3339, date); parseErr == nil {
			rec.CompletedAt = t
		}
	}

	if summary, ok, err := r.store.Get(space.KeyMigrationSummary); err != nil {
		return nil, fmt.Errorf("reading migration summary: %w", err)
	} else if ok {
		if parseErr := json.Unmarshal([]byte(summary), &rec.Summary); parseErr != nil {
			r.logger.Warn("ignoring malformed migration summary", "error", parseErr)
		}
	}
	return rec, nil
}

// SaveMigrationRecord persists the record.
func (r *Repository) SaveMigrationRecord(rec *space.MigrationRecord) error {
	if err := r.store.Set(space.KeyMigrationStatus, string(rec.Status)); err != nil {
		return fmt.Errorf("writing migration status: %w", err)
	}
	if err := r.store.Set(space.KeyMigrationDate, rec.CompletedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("writing migration date: %w", err)
	}
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("serializing migration summary: %w", err)
	}
	if err := r.store.Set(space.KeyMigrationSummary, string(summary)); err != nil {
		return fmt.Errorf("writing migration summary: %w", err)
	}
	return nil
}

// ClearMigrationRecord removes the record. Explicit destructive action only.
func (r *Repository) ClearMigrationRecord() error {
	for _, key := range []string{
		space.KeyMigrationStatus,
		space.KeyMigrationDate,
		space.KeyMigrationSummary,
	} {
		if err := r.store.Delete(key); err != nil {
			return fmt.Errorf("clearing %s: %w", key, err)
		}
	}
	return nil
}
