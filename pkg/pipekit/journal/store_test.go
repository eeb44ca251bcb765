package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stores builds one of each Store implementation, closed on cleanup.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	mem := NewMemoryStore()
	t.Cleanup(func() { mem.Close() })

	return map[string]Store{
		"memory": mem,
		"sqlite": sqlite,
	}
}

func TestAppendAndList(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(Record{
				RunID:  "r1",
				Verb:   "mutate",
				Expr:   "mutate(., b=a * 2)",
				Result: []byte(`{"a":1,"b":2}`),
			}))
			require.NoError(t, store.Append(Record{
				RunID: "r1",
				Verb:  "summarize",
				Expr:  "summarize(.)",
				Err:   "boom",
			}))

			recs, err := store.List("r1")
			require.NoError(t, err)
			require.Len(t, recs, 2)

			assert.Equal(t, 1, recs[0].Seq)
			assert.Equal(t, "mutate", recs[0].Verb)
			assert.Equal(t, []byte(`{"a":1,"b":2}`), recs[0].Result)
			assert.Empty(t, recs[0].Err)
			assert.False(t, recs[0].Timestamp.IsZero())

			assert.Equal(t, 2, recs[1].Seq)
			assert.Equal(t, "boom", recs[1].Err)
		})
	}
}

func TestSequencePerRun(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(Record{RunID: "a", Verb: "v", Expr: "v(.)"}))
			require.NoError(t, store.Append(Record{RunID: "b", Verb: "v", Expr: "v(.)"}))
			require.NoError(t, store.Append(Record{RunID: "a", Verb: "v", Expr: "v(.)"}))

			last, err := store.Last("a")
			require.NoError(t, err)
			assert.Equal(t, 2, last.Seq)

			last, err = store.Last("b")
			require.NoError(t, err)
			assert.Equal(t, 1, last.Seq)
		})
	}
}

func TestListEmptyRun(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			recs, err := store.List("absent")
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestLastNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Last("absent")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDeleteRun(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(Record{RunID: "keep", Verb: "v", Expr: "v(.)"}))
			require.NoError(t, store.Append(Record{RunID: "drop", Verb: "v", Expr: "v(.)"}))

			require.NoError(t, store.DeleteRun("drop"))
			require.NoError(t, store.DeleteRun("never-existed"))

			recs, err := store.List("drop")
			require.NoError(t, err)
			assert.Empty(t, recs)

			recs, err = store.List("keep")
			require.NoError(t, err)
			assert.Len(t, recs, 1)
		})
	}
}

func TestClosedStore(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Close())

			assert.ErrorIs(t, store.Append(Record{RunID: "r"}), ErrStoreClosed)
			_, err := store.List("r")
			assert.ErrorIs(t, err, ErrStoreClosed)
			_, err = store.Last("r")
			assert.ErrorIs(t, err, ErrStoreClosed)
			assert.ErrorIs(t, store.DeleteRun("r"), ErrStoreClosed)
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(Record{RunID: "r1", Verb: "mutate", Expr: "mutate(.)"}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	recs, err := reopened.List("r1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "mutate", recs[0].Verb)
}

func TestMemoryStoreLen(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, mem.Append(Record{RunID: "a"}))
	require.NoError(t, mem.Append(Record{RunID: "b"}))
	assert.Equal(t, 2, mem.Len())
}

func TestMemoryStoreCopiesResult(t *testing.T) {
	mem := NewMemoryStore()
	data := []byte(`{"a":1}`)
	require.NoError(t, mem.Append(Record{RunID: "r", Result: data}))

	data[0] = 'X'
	recs, err := mem.List("r")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), recs[0].Result)
}
