package btree

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/quanla/pagestore/internal/bufferpool"
	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/internal/heap"
	"github.com/stretchr/testify/require"
)

func newTreeTestBPM(t *testing.T, capacity int) bufferpool.BufferPool {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "index.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return bufferpool.NewSharedBPM(dm, capacity)
}

func TestNewTreeEmptySearch(t *testing.T) {
	bpm := newTreeTestBPM(t, 32)
	tree, err := New(bpm, KeyType{Kind: KeyInteger})
	require.NoError(t, err)

	_, found, err := tree.Search(IntegerKey(42))
	require.NoError(t, err)
	require.False(t, found)
}

func TestTreeInsertAndSearch(t *testing.T) {
	bpm := newTreeTestBPM(t, 32)
	tree, err := New(bpm, KeyType{Kind: KeyInteger})
	require.NoError(t, err)

	require.NoError(t, tree.Insert(IntegerKey(10), heap.RowID{PageID: 100, Slot: 0}))

	row, found, err := tree.Search(IntegerKey(10))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, heap.RowID{PageID: 100, Slot: 0}, row)

	_, found, err = tree.Search(IntegerKey(20))
	require.NoError(t, err)
	require.False(t, found)
}

func TestTreeRejectsDuplicateKey(t *testing.T) {
	bpm := newTreeTestBPM(t, 32)
	tree, err := New(bpm, KeyType{Kind: KeyInteger})
	require.NoError(t, err)

	require.NoError(t, tree.Insert(IntegerKey(1), heap.RowID{PageID: 1, Slot: 0}))
	require.ErrorIs(t, tree.Insert(IntegerKey(1), heap.RowID{PageID: 2, Slot: 0}), ErrDuplicateKey)
}

func TestTreeSequentialInsertsForceMultipleSplits(t *testing.T) {
	bpm := newTreeTestBPM(t, 64)
	tree, err := New(bpm, KeyType{Kind: KeyInteger})
	require.NoError(t, err)

	const n = 2000
	for i := int32(0); i < n; i++ {
		require.NoError(t, tree.Insert(IntegerKey(i), heap.RowID{PageID: disk.PageID(i + 1), Slot: 0}))
	}

	for i := int32(0); i < n; i++ {
		row, found, err := tree.Search(IntegerKey(i))
		require.NoError(t, err)
		require.True(t, found, "key %d missing", i)
		require.Equal(t, disk.PageID(i+1), row.PageID)
	}
}

func TestTreeRandomOrderInserts(t *testing.T) {
	bpm := newTreeTestBPM(t, 64)
	tree, err := New(bpm, KeyType{Kind: KeyInteger})
	require.NoError(t, err)

	const n = 1500
	keys := rand.New(rand.NewSource(7)).Perm(n)
	for _, k := range keys {
		require.NoError(t, tree.Insert(IntegerKey(int32(k)), heap.RowID{PageID: disk.PageID(k + 1), Slot: 0}))
	}

	for k := 0; k < n; k++ {
		row, found, err := tree.Search(IntegerKey(int32(k)))
		require.NoError(t, err)
		require.True(t, found, "key %d missing", k)
		require.Equal(t, disk.PageID(k+1), row.PageID)
	}
}

func TestOpenTreeFromMetadataPage(t *testing.T) {
	bpm := newTreeTestBPM(t, 64)
	tree, err := New(bpm, KeyType{Kind: KeyInteger})
	require.NoError(t, err)
	for i := int32(0); i < 300; i++ {
		require.NoError(t, tree.Insert(IntegerKey(i), heap.RowID{PageID: disk.PageID(i + 1), Slot: 0}))
	}

	reopened, err := Open(bpm, tree.MetadataPageID())
	require.NoError(t, err)

	row, found, err := reopened.Search(IntegerKey(150))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, disk.PageID(151), row.PageID)
}

func TestTreeVarcharKeys(t *testing.T) {
	bpm := newTreeTestBPM(t, 32)
	tree, err := New(bpm, KeyType{Kind: KeyVarchar, MaxLength: 32})
	require.NoError(t, err)

	words := []string{"pear", "apple", "banana", "kiwi", "mango"}
	for i, w := range words {
		require.NoError(t, tree.Insert(VarcharKey(w), heap.RowID{PageID: disk.PageID(i + 1), Slot: 0}))
	}

	for i, w := range words {
		row, found, err := tree.Search(VarcharKey(w))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, disk.PageID(i+1), row.PageID)
	}
	_, found, err := tree.Search(VarcharKey("missing"))
	require.NoError(t, err)
	require.False(t, found)
}
