package btree

import (
	"testing"

	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/internal/heap"
	"github.com/stretchr/testify/require"
)

func TestIteratorEmptyTree(t *testing.T) {
	bpm := newTreeTestBPM(t, 32)
	tree, err := New(bpm, KeyType{Kind: KeyInteger})
	require.NoError(t, err)

	it, err := tree.Iterate(nil, nil)
	require.NoError(t, err)

	_, _, ok, err := it.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIteratorFullScanOrdered(t *testing.T) {
	bpm := newTreeTestBPM(t, 64)
	tree, err := New(bpm, KeyType{Kind: KeyInteger})
	require.NoError(t, err)

	const n = 800
	for i := int32(n - 1); i >= 0; i-- {
		require.NoError(t, tree.Insert(IntegerKey(i), heap.RowID{PageID: disk.PageID(i + 1), Slot: 0}))
	}

	it, err := tree.Iterate(nil, nil)
	require.NoError(t, err)

	var got []int32
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, k.Int)
	}

	require.Len(t, got, n)
	for i, v := range got {
		require.Equal(t, int32(i), v)
	}
}

func TestIteratorBoundedRange(t *testing.T) {
	bpm := newTreeTestBPM(t, 64)
	tree, err := New(bpm, KeyType{Kind: KeyInteger})
	require.NoError(t, err)

	for i := int32(0); i < 500; i++ {
		require.NoError(t, tree.Insert(IntegerKey(i), heap.RowID{PageID: disk.PageID(i + 1), Slot: 0}))
	}

	start := IntegerKey(100)
	end := IntegerKey(110)
	it, err := tree.Iterate(&start, &end)
	require.NoError(t, err)

	var got []int32
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, k.Int)
	}

	want := []int32{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}
	require.Equal(t, want, got)
}
