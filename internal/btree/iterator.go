package btree

import (
	"fmt"

	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/internal/heap"
)

// Iterator walks a range of keys by following the leaf chain left to
// right, so a range scan never revisits internal nodes once positioned.
type Iterator struct {
	tree   *Tree
	pageID disk.PageID
	index  int
	endKey *Key
	done   bool
}

// Iterate returns an iterator over [start, end). A nil start begins at the
// leftmost leaf; a nil end scans to the end of the tree.
func (t *Tree) Iterate(start, end *Key) (*Iterator, error) {
	var pageID disk.PageID
	var err error
	if start == nil {
		pageID, err = t.findLeftmostLeaf()
	} else {
		pageID, err = t.findLeafForKey(*start)
	}
	if err != nil {
		return nil, err
	}

	it := &Iterator{tree: t, pageID: pageID, endKey: end}
	if start != nil {
		if err := it.seek(*start); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// seek advances the iterator's position within its current leaf (and, if
// exhausted, later leaves) to the first entry >= key.
func (it *Iterator) seek(key Key) error {
	for {
		if it.pageID == disk.InvalidPageID {
			it.done = true
			return nil
		}
		g, node, err := it.tree.fetchNode(it.pageID)
		if err != nil {
			return err
		}
		count := node.KeyCount()
		idx, _ := node.BinarySearch(key)
		if idx < count {
			it.index = idx
			g.Close()
			return nil
		}
		next := node.NextLeaf()
		g.Close()
		it.pageID = next
		it.index = 0
	}
}

// Next returns the next (key, row) pair in range, or ok == false once the
// range is exhausted.
func (it *Iterator) Next() (Key, heap.RowID, bool, error) {
	if it.done {
		return Key{}, heap.RowID{}, false, nil
	}

	for {
		if it.pageID == disk.InvalidPageID {
			it.done = true
			return Key{}, heap.RowID{}, false, nil
		}

		g, node, err := it.tree.fetchNode(it.pageID)
		if err != nil {
			return Key{}, heap.RowID{}, false, fmt.Errorf("btree: iterate: %w", err)
		}

		count := node.KeyCount()
		if it.index >= count {
			next := node.NextLeaf()
			g.Close()
			it.pageID = next
			it.index = 0
			continue
		}

		key := node.GetKey(it.index)
		if it.endKey != nil && key.Compare(*it.endKey) >= 0 {
			g.Close()
			it.done = true
			return Key{}, heap.RowID{}, false, nil
		}

		row := node.GetValue(it.index)
		it.index++
		g.Close()
		return key, row, true, nil
	}
}
