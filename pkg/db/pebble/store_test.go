package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/auditor/pkg/db"
)

func TestKVStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.KVStore)
	}{
		{name: "put_get_has", fn: testPutGetHas},
		{name: "delete", fn: testDelete},
		{name: "batch_is_atomic", fn: testBatchAtomic},
		{name: "batch_after_commit", fn: testBatchAfterCommit},
		{name: "batch_delete_range", fn: testBatchDeleteRange},
		{name: "bounded_iteration", fn: testBoundedIteration},
		{name: "closed_store", fn: testClosedStore},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewKVStore()
			require.NoError(t, err)
			defer store.Close() //nolint:errcheck

			tc.fn(t, store)
		})
	}
}

func testPutGetHas(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Put([]byte("seed"), []byte{1, 2, 3}))

	value, err := store.Get([]byte("seed"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, value)

	ok, err := store.Has([]byte("seed"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Has([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func testDelete(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Put([]byte("k"), []byte("v")))
	require.NoError(t, store.Delete([]byte("k")))

	_, err := store.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting a missing key is not an error
	assert.NoError(t, store.Delete([]byte("k")))
}

func testBatchAtomic(t *testing.T, store db.KVStore) {
	batch := store.NewBatch()
	defer batch.Close() //nolint:errcheck

	require.NoError(t, batch.Put([]byte("a"), []byte("1")))
	require.NoError(t, batch.Put([]byte("b"), []byte("2")))
	require.NoError(t, batch.Delete([]byte("a")))

	// nothing is visible before commit
	_, err := store.Get([]byte("b"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, batch.Commit())

	_, err = store.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)
	value, err := store.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), value)
}

func testBatchAfterCommit(t *testing.T, store db.KVStore) {
	batch := store.NewBatch()
	require.NoError(t, batch.Put([]byte("k"), []byte("v")))
	require.NoError(t, batch.Commit())

	assert.ErrorIs(t, batch.Put([]byte("k2"), []byte("v2")), ErrBatchDone)
	assert.ErrorIs(t, batch.Delete([]byte("k")), ErrBatchDone)
	assert.ErrorIs(t, batch.Commit(), ErrBatchDone)
	assert.NoError(t, batch.Close())
	assert.NoError(t, batch.Close())
}

func testBatchDeleteRange(t *testing.T, store db.KVStore) {
	for _, k := range []string{"p1", "p2", "p3", "q1"} {
		require.NoError(t, store.Put([]byte(k), []byte(k)))
	}

	batch := store.NewBatch()
	require.NoError(t, batch.DeleteRange([]byte("p"), []byte("q")))
	require.NoError(t, batch.Commit())

	for _, k := range []string{"p1", "p2", "p3"} {
		_, err := store.Get([]byte(k))
		assert.ErrorIs(t, err, ErrNotFound)
	}
	ok, err := store.Has([]byte("q1"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func testBoundedIteration(t *testing.T, store db.KVStore) {
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, store.Put([]byte(k), []byte("value-"+k)))
	}

	iter, err := store.NewIterator([]byte("b"), []byte("e"))
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	var keys []string
	for iter.Next() {
		value, err := iter.Value()
		require.NoError(t, err)
		assert.Equal(t, "value-"+string(iter.Key()), string(value))
		keys = append(keys, string(iter.Key()))
	}
	assert.Equal(t, []string{"b", "c", "d"}, keys)
	assert.False(t, iter.Valid())

	_, err = iter.Value()
	assert.ErrorIs(t, err, ErrIteratorInvalid)
}

func testClosedStore(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Close())

	_, err := store.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.Put([]byte("k"), []byte("v")), ErrClosed)
	assert.ErrorIs(t, store.Delete([]byte("k")), ErrClosed)
	_, err = store.NewIterator(nil, nil)
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, store.Close())
}

func TestKVStore_ReopenOnDisk(t *testing.T) {
	path := t.TempDir()

	store, err := NewKVStore(WithPath(path), WithCacheSize(1024*1024))
	require.NoError(t, err)
	require.NoError(t, store.Put([]byte("tick"), []byte{7}))
	require.NoError(t, store.Close())

	reopened, err := NewKVStore(WithPath(path))
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck

	value, err := reopened.Get([]byte("tick"))
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, value)
}
