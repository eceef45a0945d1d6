package btree

import (
	"testing"

	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/internal/heap"
	"github.com/stretchr/testify/require"
)

func newTestBuf() []byte { return make([]byte, disk.PageSize) }

func TestNodeInitializeLeaf(t *testing.T) {
	buf := newTestBuf()
	n := Initialize(buf, KeyType{Kind: KeyInteger}, 42, true, 10)

	require.Equal(t, disk.PageID(42), n.PageID())
	require.True(t, n.IsLeaf())
	require.Equal(t, 0, n.KeyCount())
	require.Equal(t, disk.PageID(10), n.ParentPageID())
	require.Equal(t, disk.InvalidPageID, n.NextLeaf())
	require.Equal(t, disk.InvalidPageID, n.PrevLeaf())
}

func TestLeafInsertAndSearch(t *testing.T) {
	buf := newTestBuf()
	n := Initialize(buf, KeyType{Kind: KeyInteger}, 1, true, disk.InvalidPageID)

	val := heap.RowID{PageID: 100, Slot: 1}
	n.InsertAt(0, IntegerKey(10), val)

	require.Equal(t, 1, n.KeyCount())
	require.Equal(t, IntegerKey(10), n.GetKey(0))
	require.Equal(t, val, n.GetValue(0))

	idx, found := n.BinarySearch(IntegerKey(10))
	require.True(t, found)
	require.Equal(t, 0, idx)

	idx, found = n.BinarySearch(IntegerKey(5))
	require.False(t, found)
	require.Equal(t, 0, idx)

	idx, found = n.BinarySearch(IntegerKey(15))
	require.False(t, found)
	require.Equal(t, 1, idx)
}

func TestLeafInsertMaintainsOrderAndRemove(t *testing.T) {
	buf := newTestBuf()
	n := Initialize(buf, KeyType{Kind: KeyInteger}, 1, true, disk.InvalidPageID)

	keys := []int32{30, 10, 20}
	for _, k := range keys {
		idx, _ := n.BinarySearch(IntegerKey(k))
		n.InsertAt(idx, IntegerKey(k), heap.RowID{PageID: disk.PageID(k), Slot: 0})
	}

	require.Equal(t, 3, n.KeyCount())
	for i, want := range []int32{10, 20, 30} {
		require.Equal(t, IntegerKey(want), n.GetKey(i))
	}

	n.RemoveAt(1)
	require.Equal(t, 2, n.KeyCount())
	require.Equal(t, IntegerKey(10), n.GetKey(0))
	require.Equal(t, IntegerKey(30), n.GetKey(1))
}

func TestInternalNodeOperations(t *testing.T) {
	buf := newTestBuf()
	n := Initialize(buf, KeyType{Kind: KeyInteger}, 1, false, disk.InvalidPageID)

	n.SetChild(0, 100)
	n.InsertKeyChild(0, IntegerKey(50), 200)

	require.Equal(t, 1, n.KeyCount())
	require.Equal(t, IntegerKey(50), n.GetKey(0))
	require.Equal(t, disk.PageID(100), n.GetChild(0))
	require.Equal(t, disk.PageID(200), n.GetChild(1))

	n.InsertKeyChild(1, IntegerKey(80), 300)
	require.Equal(t, 2, n.KeyCount())
	require.Equal(t, disk.PageID(100), n.GetChild(0))
	require.Equal(t, disk.PageID(200), n.GetChild(1))
	require.Equal(t, disk.PageID(300), n.GetChild(2))
}

func TestVarcharNodeRoundTrip(t *testing.T) {
	buf := newTestBuf()
	kt := KeyType{Kind: KeyVarchar, MaxLength: 32}
	n := Initialize(buf, kt, 1, true, disk.InvalidPageID)

	n.InsertAt(0, VarcharKey("banana"), heap.RowID{PageID: 1, Slot: 0})
	n.InsertAt(0, VarcharKey("apple"), heap.RowID{PageID: 2, Slot: 0})

	require.Equal(t, VarcharKey("apple"), n.GetKey(0))
	require.Equal(t, VarcharKey("banana"), n.GetKey(1))
}
