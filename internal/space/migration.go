package space

import (
	"context"
	"fmt"
	"time"
)

// MigrationState is the orchestrator's position in the migration flow.
//
//	discover -> confirm -> migrating -> complete
//
// with a side terminal no-conversations reachable from discover, and an
// error edge migrating -> confirm so a failed run can be retried without
// re-discovering.
type MigrationState string

const (
	StateDiscover        MigrationState = "discover"
	StateConfirm         MigrationState = "confirm"
	StateMigrating       MigrationState = "migrating"
	StateComplete        MigrationState = "complete"
	StateNoConversations MigrationState = "no-conversations"
)

// SessionResult records the outcome of migrating one local session.
type SessionResult struct {
	Success      bool
	OriginalID   int
	NewID        string
	MessageCount int
	Err          error
}

// MigrationResult is the terminal result of a migration run.
type MigrationResult struct {
	Total      int
	Successful int
	Failed     int
	Results    []SessionResult
}

// Summary converts the result into the persisted aggregate form.
func (r *MigrationResult) Summary() MigrationSummary {
	return MigrationSummary{Total: r.Total, Successful: r.Successful, Failed: r.Failed}
}

// ProgressFunc receives progress during the migrating state. current is
// 1-based and monotonic; total is the discovered session count.
type ProgressFunc func(current, total int)

// Migrator performs the one-time bulk transfer of local sessions into
// remote conversations. It is the only component permitted to create remote
// records from local data. Sessions are transferred strictly sequentially
// with a fixed pause in between, to bound load on the remote service and
// keep progress reporting monotonic.
type Migrator struct {
	local   LocalRepository
	records MigrationRecordStore
	remote  RemoteRepository
	logger  Logger
	clock   Clock
	pause   time.Duration

	// sleep is swapped out in tests to avoid real delays.
	sleep func(time.Duration)

	state      MigrationState
	discovered []*Session
}

// NewMigrator creates a Migrator in the discover state. pause is the delay
// inserted between consecutive session transfers.
func NewMigrator(local LocalRepository, records MigrationRecordStore, remote RemoteRepository, logger Logger, clock Clock, pause time.Duration) *Migrator {
	return &Migrator{
		local:   local,
		records: records,
		remote:  remote,
		logger:  logger,
		clock:   clock,
		pause:   pause,
		sleep:   time.Sleep,
		state:   StateDiscover,
	}
}

// State returns the orchestrator's current state.
func (m *Migrator) State() MigrationState { return m.state }

// Discovered returns the sessions found by Discover, intact across a failed
// run so retry does not require re-discovery.
func (m *Migrator) Discovered() []*Session { return m.discovered }

// Discover enumerates migratable local sessions. When the stored
// MigrationRecord is already terminal the flow short-circuits to
// no-conversations even if stray local sessions exist: they are surfaced as
// "already completed", never silently re-migrated, to avoid duplicate
// remote conversations. Discover has no side effects beyond the local
// store's own corrupt-record self-healing.
func (m *Migrator) Discover() ([]*Session, *MigrationRecord, error) {
	rec, err := m.records.LoadMigrationRecord()
	if err != nil {
		return nil, nil, fmt.Errorf("loading migration record: %w", err)
	}
	if rec.Status != MigrationNotStarted {
		m.state = StateNoConversations
		m.discovered = nil
		return nil, rec, nil
	}

	sessions, err := m.local.List()
	if err != nil {
		return nil, nil, fmt.Errorf("listing local sessions: %w", err)
	}
	if len(sessions) == 0 {
		m.state = StateNoConversations
		m.discovered = nil
		return nil, rec, nil
	}

	m.discovered = sessions
	m.state = StateConfirm
	return sessions, rec, nil
}

// Migrate transfers the discovered sessions. A failure of one session is
// recorded and the batch continues: migration is best-effort bulk work, and
// one bad session must not block the rest. Only when the run itself cannot
// proceed (cancellation, record persistence failure) does the state return
// to confirm, with the discovered list intact for retry.
//
// On completion the MigrationRecord is written and the local sources of
// successful transfers are deleted. Failed sessions' local copies are always
// retained: deleting data without a confirmed remote copy would be loss.
func (m *Migrator) Migrate(ctx context.Context, progress ProgressFunc) (*MigrationResult, error) {
	if m.state != StateConfirm {
		return nil, fmt.Errorf("migration not confirmed (state %q)", m.state)
	}
	m.state = StateMigrating

	total := len(m.discovered)
	result := &MigrationResult{Total: total}

	for i, sess := range m.discovered {
		if err := ctx.Err(); err != nil {
			m.state = StateConfirm
			return result, fmt.Errorf("migration interrupted: %w", err)
		}

		if progress != nil {
			progress(i+1, total)
		}

		r := m.migrateOne(ctx, sess)
		result.Results = append(result.Results, r)
		if r.Success {
			result.Successful++
			m.logger.Info("session migrated",
				"original_id", r.OriginalID, "new_id", r.NewID, "messages", r.MessageCount)
		} else {
			result.Failed++
			m.logger.Error("session migration failed",
				"original_id", r.OriginalID, "error", r.Err)
		}

		if i < total-1 && m.pause > 0 {
			m.sleep(m.pause)
		}
	}

	rec := &MigrationRecord{
		Status:      MigrationCompleted,
		CompletedAt: m.clock.Now(),
		Summary:     result.Summary(),
	}
	if err := m.records.SaveMigrationRecord(rec); err != nil {
		m.state = StateConfirm
		return result, fmt.Errorf("recording migration completion: %w", err)
	}

	if result.Successful > 0 {
		m.cleanupMigrated(result)
	}

	m.state = StateComplete
	return result, nil
}

// migrateOne transfers a single session: create the remote conversation
// with provenance metadata, then append every non-placeholder message in
// original order.
func (m *Migrator) migrateOne(ctx context.Context, sess *Session) SessionResult {
	originalID, err := ParseLocalID(sess.ID)
	if err != nil {
		return SessionResult{Err: fmt.Errorf("unexpected session id %q: %w", sess.ID, err)}
	}

	res := SessionResult{OriginalID: originalID}

	provenance := map[string]any{
		"importedFrom":      "local",
		"originalId":        originalID,
		"originalTimestamp": sess.CreatedAt.UTC().Format(time.RFC3339),
		"migrationDate":     m.clock.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range sess.Metadata {
		provenance[k] = v
	}

	conv, err := m.remote.Create(ctx, sess.Title, provenance)
	if err != nil {
		res.Err = fmt.Errorf("creating remote conversation: %w", err)
		return res
	}

	for _, msg := range sess.Messages {
		if msg.IsPlaceholder() {
			continue
		}
		meta := map[string]any{
			"imported":          true,
			"originalTimestamp": msg.Timestamp.UTC().Format(time.RFC3339),
		}
		if len(msg.Tags) > 0 {
			meta["tags"] = msg.Tags
		}
		if _, err := m.remote.AppendMessage(ctx, conv.ID, msg, meta); err != nil {
			res.Err = fmt.Errorf("transferring message %d: %w", res.MessageCount+1, err)
			return res
		}
		res.MessageCount++
	}

	res.Success = true
	res.NewID = conv.ID
	return res
}

// cleanupMigrated deletes the local sources of successful transfers.
// Individual deletion failures are reported per session and do not affect
// the others.
func (m *Migrator) cleanupMigrated(result *MigrationResult) {
	for _, r := range result.Results {
		if !r.Success {
			continue
		}
		if err := m.local.Delete(r.OriginalID); err != nil {
			m.logger.Warn("cleaning up migrated session", "id", r.OriginalID, "error", err)
		}
	}
}

// Skip records that the user declined migration. Terminal like completion:
// subsequent Discover calls short-circuit.
func (m *Migrator) Skip() error {
	rec := &MigrationRecord{
		Status:      MigrationSkipped,
		CompletedAt: m.clock.Now(),
	}
	if err := m.records.SaveMigrationRecord(rec); err != nil {
		return fmt.Errorf("recording migration skip: %w", err)
	}
	m.state = StateNoConversations
	return nil
}

// Reset clears the stored MigrationRecord so the flow can run again.
// Destructive and explicit only: a re-run against already-migrated data
// creates duplicate remote conversations.
func (m *Migrator) Reset() error {
	if err := m.records.ClearMigrationRecord(); err != nil {
		return fmt.Errorf("clearing migration record: %w", err)
	}
	m.state = StateDiscover
	m.discovered = nil
	return nil
}
