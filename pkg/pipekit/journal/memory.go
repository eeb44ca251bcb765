package journal

import (
	"sync"
	"time"
)

// MemoryStore is an in-memory journal for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string][]Record
	closed bool
}

// NewMemoryStore creates a new in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]Record)}
}

// Append implements Store.
func (m *MemoryStore) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	rec.Seq = len(m.runs[rec.RunID]) + 1
	rec.Timestamp = time.Now().UTC()

	// Copy the result to avoid retaining the caller's slice.
	if rec.Result != nil {
		stored := make([]byte, len(rec.Result))
		copy(stored, rec.Result)
		rec.Result = stored
	}

	m.runs[rec.RunID] = append(m.runs[rec.RunID], rec)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(runID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	recs := m.runs[runID]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

// Last implements Store.
func (m *MemoryStore) Last(runID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	recs := m.runs[runID]
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[len(recs)-1], nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.runs, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}

// Len returns the total number of records across all runs.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, recs := range m.runs {
		count += len(recs)
	}
	return count
}
