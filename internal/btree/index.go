package btree

import "github.com/quanla/pagestore/internal/heap"

// Index is the minimal surface a higher-level query layer needs from a B+
// tree to use it as a secondary index.
type Index interface {
	Insert(key Key, row heap.RowID) error
	Search(key Key) (heap.RowID, bool, error)
}
