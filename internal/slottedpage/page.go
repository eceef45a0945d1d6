// Package slottedpage implements the slotted-page layout used by the table
// heap (B+ tree nodes use their own layout in internal/btree): a small
// fixed header, a slot directory that
// grows upward from the header, and a record heap that grows downward from
// the end of the page. Both meet in the middle; free space is whatever
// separates them.
package slottedpage

import (
	"errors"
	"fmt"

	"github.com/quanla/pagestore/internal/alias/bx"
	"github.com/quanla/pagestore/internal/disk"
)

// Page type tags, stored in the header's single page_type byte.
const (
	TypeHeap uint8 = iota + 1
	TypeBTreeLeaf
	TypeBTreeInternal
	TypeMeta
	TypeOverflow
)

const (
	offPageType          = 0
	offFreeSpacePointer  = 1
	offSlotCount         = 3
	offNextPageID        = 5
	// HeaderSize is padded so the slot directory starts on a round offset.
	HeaderSize = 16

	slotSize = 4 // offset(u16 LE) + length(u16 LE); length 0 marks a deleted slot
)

var (
	ErrNoSpace    = errors.New("slottedpage: not enough free space")
	ErrBadSlot    = errors.New("slottedpage: slot out of range or deleted")
	ErrTooLarge   = errors.New("slottedpage: record larger than a page can ever hold")
)

// Page is a thin, non-owning view over a PageSize byte buffer.
type Page struct {
	Buf []byte
}

// New initializes buf as an empty page of the given type, returning a Page
// view over it. buf must be exactly disk.PageSize bytes.
func New(buf []byte, pageType uint8, nextPageID disk.PageID) Page {
	p := Page{Buf: buf}
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	p.Buf[offPageType] = pageType
	bx.PutU16At(p.Buf, offFreeSpacePointer, uint16(len(p.Buf)))
	bx.PutU16At(p.Buf, offSlotCount, 0)
	bx.PutU64At(p.Buf, offNextPageID, uint64(nextPageID))
	return p
}

func (p Page) PageType() uint8 { return p.Buf[offPageType] }

func (p Page) freeSpacePointer() int { return int(bx.U16At(p.Buf, offFreeSpacePointer)) }
func (p Page) setFreeSpacePointer(v int) {
	bx.PutU16At(p.Buf, offFreeSpacePointer, uint16(v))
}

func (p Page) SlotCount() int { return int(bx.U16At(p.Buf, offSlotCount)) }
func (p Page) setSlotCount(v int) {
	bx.PutU16At(p.Buf, offSlotCount, uint16(v))
}

func (p Page) NextPageID() disk.PageID {
	return disk.PageID(bx.U64At(p.Buf, offNextPageID))
}

func (p Page) SetNextPageID(id disk.PageID) {
	bx.PutU64At(p.Buf, offNextPageID, uint64(id))
}

func (p Page) slotOffset(i int) int { return HeaderSize + i*slotSize }

func (p Page) getSlot(i int) (offset, length int) {
	o := p.slotOffset(i)
	return int(bx.U16At(p.Buf, o)), int(bx.U16At(p.Buf, o+2))
}

func (p Page) putSlot(i, offset, length int) {
	o := p.slotOffset(i)
	bx.PutU16At(p.Buf, o, uint16(offset))
	bx.PutU16At(p.Buf, o+2, uint16(length))
}

// directoryEnd is the first byte past the slot directory.
func (p Page) directoryEnd() int { return p.slotOffset(p.SlotCount()) }

// FreeSpace returns the number of unused bytes between the slot directory
// and the record heap.
func (p Page) FreeSpace() int {
	return p.freeSpacePointer() - p.directoryEnd()
}

// InsertRecord appends rec to the record heap and allocates a new slot for
// it, returning the slot index. It fails if there isn't room for both the
// record and a new directory entry.
func (p Page) InsertRecord(rec []byte) (slot int, ok bool) {
	if len(rec)+slotSize > len(p.Buf)-HeaderSize {
		return 0, false
	}
	if p.FreeSpace() < len(rec)+slotSize {
		return 0, false
	}
	newPtr := p.freeSpacePointer() - len(rec)
	copy(p.Buf[newPtr:], rec)
	p.setFreeSpacePointer(newPtr)

	idx := p.SlotCount()
	p.putSlot(idx, newPtr, len(rec))
	p.setSlotCount(idx + 1)
	return idx, true
}

// GetRecord returns the bytes stored at slot, or an error if the slot is out
// of range or was deleted.
func (p Page) GetRecord(slot int) ([]byte, error) {
	if slot < 0 || slot >= p.SlotCount() {
		return nil, ErrBadSlot
	}
	offset, length := p.getSlot(slot)
	if length == 0 {
		return nil, ErrBadSlot
	}
	return p.Buf[offset : offset+length], nil
}

// DeleteRecord tombstones a slot; its space is not reclaimed until the page
// is rebuilt (rebuild is not provided — deletion/compaction is out of scope).
func (p Page) DeleteRecord(slot int) error {
	if slot < 0 || slot >= p.SlotCount() {
		return ErrBadSlot
	}
	offset, _ := p.getSlot(slot)
	p.putSlot(slot, offset, 0)
	return nil
}

// UpdateRecord overwrites slot in place if newRec is no larger than the
// existing record; otherwise it inserts newRec as a new record and
// repoints the slot at it, stranding the old bytes (reclaimed only by a
// future page rebuild).
func (p Page) UpdateRecord(slot int, newRec []byte) error {
	if slot < 0 || slot >= p.SlotCount() {
		return ErrBadSlot
	}
	offset, length := p.getSlot(slot)
	if length == 0 {
		return ErrBadSlot
	}
	if len(newRec) <= length {
		copy(p.Buf[offset:], newRec)
		p.putSlot(slot, offset, len(newRec))
		return nil
	}
	if p.FreeSpace() < len(newRec) {
		return fmt.Errorf("slottedpage: update slot %d: %w", slot, ErrNoSpace)
	}
	newPtr := p.freeSpacePointer() - len(newRec)
	copy(p.Buf[newPtr:], newRec)
	p.setFreeSpacePointer(newPtr)
	p.putSlot(slot, newPtr, len(newRec))
	return nil
}
