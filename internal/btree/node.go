package btree

import (
	"github.com/quanla/pagestore/internal/alias/bx"
	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/internal/heap"
)

// Node header layout, common to leaf and internal nodes:
//
//	offset 0:  page_id        (u64 LE)
//	offset 8:  is_leaf        (1 byte)
//	offset 9:  key_count      (u16 LE)
//	offset 11: parent_page_id (u64 LE)
//
// Leaf nodes additionally carry the doubly-linked leaf chain:
//
//	offset 19: next_leaf (u64 LE)
//	offset 27: prev_leaf (u64 LE)
//
// Entries follow the header.
//
// Leaf entries are (key, RowID) pairs, KeyType.MaxSize()+rowIDSize bytes
// each, packed contiguously from leafDataOffset.
//
// Internal nodes store the leftmost child pointer first, then (key, right
// child) pairs packed contiguously: key_i separates child_i (to its left,
// either the leftmost pointer or the previous pair's child) from child_{i+1}
// (stored alongside key_i). This keeps internal and leaf layout symmetric
// and avoids recomputing a separate children-array base on every mutation.
const (
	offPageID       = 0
	offIsLeaf       = 8
	offKeyCount     = 9
	offParentPageID = 11
	offNextLeaf     = 19
	offPrevLeaf     = 27

	leafDataOffset     = 35
	internalDataOffset = 19

	rowIDSize = 12 // disk.PageID (8) + slot (2) + 2 bytes padding
)

// Node wraps a page buffer with typed accessors for B+ tree node fields.
// A Node does not own its buffer; callers fetch it through a PageGuard and
// must mark the guard dirty after any mutating call.
type Node struct {
	Buf     []byte
	KeyType KeyType
}

// Initialize resets buf into an empty node with the given identity.
func Initialize(buf []byte, keyType KeyType, pageID disk.PageID, isLeaf bool, parentPageID disk.PageID) Node {
	n := Node{Buf: buf, KeyType: keyType}
	n.SetPageID(pageID)
	n.setIsLeaf(isLeaf)
	n.SetKeyCount(0)
	n.SetParentPageID(parentPageID)
	if isLeaf {
		n.SetNextLeaf(disk.InvalidPageID)
		n.SetPrevLeaf(disk.InvalidPageID)
	}
	return n
}

func (n Node) PageID() disk.PageID { return disk.PageID(bx.U64At(n.Buf, offPageID)) }
func (n Node) SetPageID(id disk.PageID) { bx.PutU64At(n.Buf, offPageID, uint64(id)) }

func (n Node) IsLeaf() bool { return n.Buf[offIsLeaf] != 0 }
func (n Node) setIsLeaf(isLeaf bool) {
	if isLeaf {
		n.Buf[offIsLeaf] = 1
	} else {
		n.Buf[offIsLeaf] = 0
	}
}

func (n Node) KeyCount() int         { return int(bx.U16At(n.Buf, offKeyCount)) }
func (n Node) SetKeyCount(count int) { bx.PutU16At(n.Buf, offKeyCount, uint16(count)) }

func (n Node) ParentPageID() disk.PageID { return disk.PageID(bx.U64At(n.Buf, offParentPageID)) }
func (n Node) SetParentPageID(id disk.PageID) {
	bx.PutU64At(n.Buf, offParentPageID, uint64(id))
}

func (n Node) NextLeaf() disk.PageID      { return disk.PageID(bx.U64At(n.Buf, offNextLeaf)) }
func (n Node) SetNextLeaf(id disk.PageID) { bx.PutU64At(n.Buf, offNextLeaf, uint64(id)) }

func (n Node) PrevLeaf() disk.PageID      { return disk.PageID(bx.U64At(n.Buf, offPrevLeaf)) }
func (n Node) SetPrevLeaf(id disk.PageID) { bx.PutU64At(n.Buf, offPrevLeaf, uint64(id)) }

// IsFull reports whether the node has reached maxSize entries.
func (n Node) IsFull(maxSize int) bool { return n.KeyCount() >= maxSize }

// leafEntrySize is the fixed size of one (key, RowID) slot.
func (n Node) leafEntrySize() int { return n.KeyType.MaxSize() + rowIDSize }

func (n Node) leafEntryOffset(index int) int {
	return leafDataOffset + index*n.leafEntrySize()
}

// internalEntrySize is the fixed size of one (key, right-child) pair.
func (n Node) internalEntrySize() int { return n.KeyType.MaxSize() + 8 }

// internalEntryOffset is the offset of the i-th (key, right-child) pair,
// i.e. the pair associated with key index i.
func (n Node) internalEntryOffset(index int) int {
	return internalDataOffset + 8 + index*n.internalEntrySize()
}

func (n Node) internalKeyOffset(index int) int { return n.internalEntryOffset(index) }

// GetKey returns the key stored at index (leaf or internal node).
func (n Node) GetKey(index int) Key {
	if n.IsLeaf() {
		return DecodeKey(n.Buf[n.leafEntryOffset(index):], n.KeyType)
	}
	return DecodeKey(n.Buf[n.internalKeyOffset(index):], n.KeyType)
}

func (n Node) setKeyAt(offset int, key Key) {
	enc := key.Encode()
	maxSize := n.KeyType.MaxSize()
	copy(n.Buf[offset:offset+len(enc)], enc)
	for i := len(enc); i < maxSize; i++ {
		n.Buf[offset+i] = 0
	}
}

// GetValue returns the RowID stored at index (leaf nodes only).
func (n Node) GetValue(index int) heap.RowID {
	off := n.leafEntryOffset(index) + n.KeyType.MaxSize()
	return heap.RowID{
		PageID: disk.PageID(bx.U64At(n.Buf, off)),
		Slot:   bx.U16At(n.Buf, off+8),
	}
}

func (n Node) setValueAt(index int, value heap.RowID) {
	off := n.leafEntryOffset(index) + n.KeyType.MaxSize()
	bx.PutU64At(n.Buf, off, uint64(value.PageID))
	bx.PutU16At(n.Buf, off+8, value.Slot)
}

// GetChild returns the child page ID at index (internal nodes only); index
// ranges over [0, KeyCount()]. Index 0 is the leftmost child pointer stored
// ahead of the first key; index i>0 is the right child of key i-1.
func (n Node) GetChild(index int) disk.PageID {
	if index == 0 {
		return disk.PageID(bx.U64At(n.Buf, internalDataOffset))
	}
	off := n.internalEntryOffset(index-1) + n.KeyType.MaxSize()
	return disk.PageID(bx.U64At(n.Buf, off))
}

func (n Node) SetChild(index int, childPageID disk.PageID) {
	if index == 0 {
		bx.PutU64At(n.Buf, internalDataOffset, uint64(childPageID))
		return
	}
	off := n.internalEntryOffset(index-1) + n.KeyType.MaxSize()
	bx.PutU64At(n.Buf, off, uint64(childPageID))
}

// BinarySearch looks for key among this node's entries. It returns
// (index, true) if found, or (insertion point, false) otherwise.
func (n Node) BinarySearch(key Key) (int, bool) {
	lo, hi := 0, n.KeyCount()
	for lo < hi {
		mid := lo + (hi-lo)/2
		switch key.Compare(n.GetKey(mid)) {
		case -1:
			hi = mid
		case 1:
			lo = mid + 1
		default:
			return mid, true
		}
	}
	return lo, false
}

// InsertAt inserts (key, value) at index, shifting later entries right.
// Leaf nodes only.
func (n Node) InsertAt(index int, key Key, value heap.RowID) {
	count := n.KeyCount()
	if index < count {
		entrySize := n.leafEntrySize()
		src := n.leafEntryOffset(index)
		dst := src + entrySize
		sz := (count - index) * entrySize
		copy(n.Buf[dst:dst+sz], n.Buf[src:src+sz])
	}
	n.SetKeyCount(count + 1)
	n.setKeyAt(n.leafEntryOffset(index), key)
	n.setValueAt(index, value)
}

// RemoveAt deletes the leaf entry at index, shifting later entries left.
func (n Node) RemoveAt(index int) {
	count := n.KeyCount()
	if index < count-1 {
		entrySize := n.leafEntrySize()
		src := n.leafEntryOffset(index + 1)
		dst := n.leafEntryOffset(index)
		sz := (count - index - 1) * entrySize
		copy(n.Buf[dst:dst+sz], n.Buf[src:src+sz])
	}
	n.SetKeyCount(count - 1)
}

// InsertKeyChild inserts key at index and rightChild as the child that
// follows it, shifting later (key, child) pairs right. Internal nodes only.
// Index ranges over [0, KeyCount()]; rightChild lands at child index+1.
func (n Node) InsertKeyChild(index int, key Key, rightChild disk.PageID) {
	count := n.KeyCount()
	if index < count {
		entrySize := n.internalEntrySize()
		src := n.internalEntryOffset(index)
		dst := src + entrySize
		sz := (count - index) * entrySize
		copy(n.Buf[dst:dst+sz], n.Buf[src:src+sz])
	}
	n.SetKeyCount(count + 1)
	n.setKeyAt(n.internalEntryOffset(index), key)
	n.SetChild(index+1, rightChild)
}
