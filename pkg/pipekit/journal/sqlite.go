package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists journal records to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite journal.
// The path should be a file path (e.g., "./journal.db") or ":memory:" for
// testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			verb TEXT NOT NULL,
			expr TEXT NOT NULL,
			result BLOB,
			err TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_records_run_id
		ON records(run_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO records (run_id, seq, verb, expr, result, err, timestamp)
		VALUES (
			?,
			COALESCE((SELECT MAX(seq) FROM records WHERE run_id = ?), 0) + 1,
			?, ?, ?, ?, ?
		)
	`, rec.RunID, rec.RunID, rec.Verb, rec.Expr, rec.Result, rec.Err,
		time.Now().UTC().Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(runID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT seq, verb, expr, result, err, timestamp
		FROM records
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows, runID)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return recs, nil
}

// Last implements Store.
func (s *SQLiteStore) Last(runID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	row := s.db.QueryRow(`
		SELECT seq, verb, expr, result, err, timestamp
		FROM records
		WHERE run_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, runID)

	rec := Record{RunID: runID}
	var timestamp string
	err := row.Scan(&rec.Seq, &rec.Verb, &rec.Expr, &rec.Result, &rec.Err, &timestamp)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
	return rec, nil
}

// DeleteRun implements Store.
func (s *SQLiteStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`DELETE FROM records WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run records: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

func scanRecord(rows *sql.Rows, runID string) (Record, error) {
	rec := Record{RunID: runID}
	var timestamp string
	if err := rows.Scan(&rec.Seq, &rec.Verb, &rec.Expr, &rec.Result, &rec.Err, &timestamp); err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
	return rec, nil
}
