package kv

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andrewblevins/space-sub000/internal/kv/migrations"
	"github.com/andrewblevins/space-sub000/internal/space"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultMaxValueBytes caps a single stored value when no explicit quota is
// configured.
const DefaultMaxValueBytes = 1 << 20

// SQLiteStore implements Store on a SQLite file shared by all contexts of
// the same client. WAL mode plus a busy timeout let several processes read
// and write the same file without explicit coordination.
type SQLiteStore struct {
	db            *sql.DB
	origin        string
	maxValueBytes int64
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if necessary) the store at path and brings its
// schema up to date. path can be ":memory:" for a private in-memory store.
// maxValueBytes <= 0 selects DefaultMaxValueBytes.
func OpenSQLite(path string, maxValueBytes int64) (*SQLiteStore, error) {
	db, err := openConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store schema: %w", err)
	}

	if maxValueBytes <= 0 {
		maxValueBytes = DefaultMaxValueBytes
	}
	return &SQLiteStore{
		db:            db,
		origin:        uuid.New().String(),
		maxValueBytes: maxValueBytes,
	}, nil
}

// openConnection opens and configures a SQLite connection with the PRAGMAs
// the shared store depends on.
func openConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// Multiple contexts share this file; WAL keeps readers unblocked
	// during writes, and the busy timeout rides out short write locks.
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring store (%s): %w", pragma, err)
		}
	}
	return db, nil
}

func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(key, value string) error {
	if int64(len(value)) > s.maxValueBytes {
		return fmt.Errorf("writing %s (%d bytes): %w", key, len(value), space.ErrQuotaExceeded)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting write: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	if err := s.journal(tx, key, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing write of %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM kv WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	if affected == 0 {
		// Nothing removed, nothing to announce.
		return nil
	}

	if err := s.journal(tx, key, time.Now().UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete of %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) journal(tx *sql.Tx, key string, at time.Time) error {
	_, err := tx.Exec(
		"INSERT INTO kv_changes (key, origin, changed_at) VALUES (?, ?, ?)",
		key, s.origin, at)
	if err != nil {
		return fmt.Errorf("journaling change to %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM kv WHERE key LIKE ?", prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("listing keys with prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}

func (s *SQLiteStore) Origin() string { return s.origin }

func (s *SQLiteStore) Changes(afterSeq int64) ([]Change, int64, error) {
	rows, err := s.db.Query(
		"SELECT seq, key, origin, changed_at FROM kv_changes WHERE seq > ? ORDER BY seq",
		afterSeq)
	if err != nil {
		return nil, afterSeq, fmt.Errorf("reading change journal: %w", err)
	}
	defer rows.Close()

	var changes []Change
	last := afterSeq
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Seq, &c.Key, &c.Origin, &c.ChangedAt); err != nil {
			return nil, afterSeq, fmt.Errorf("scanning change: %w", err)
		}
		changes = append(changes, c)
		last = c.Seq
	}
	if err := rows.Err(); err != nil {
		return nil, afterSeq, fmt.Errorf("reading change journal: %w", err)
	}
	return changes, last, nil
}

func (s *SQLiteStore) LastSeq() (int64, error) {
	var seq int64
	if err := s.db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM kv_changes").Scan(&seq); err != nil {
		return 0, fmt.Errorf("reading journal high-water mark: %w", err)
	}
	return seq, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
