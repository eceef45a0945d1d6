package heap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/quanla/pagestore/internal/bufferpool"
	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/internal/record"
	"github.com/quanla/pagestore/internal/slottedpage"
)

const (
	rowKindInline   = byte(0)
	rowKindOverflow = byte(1)
)

var ErrOverflowTuple = errors.New("heap: malformed overflow tuple")

// Table is a heap file: a singly-linked chain of slotted pages holding rows
// encoded by the declared schema. Rows too large to fit inline are spilled
// to a chain of overflow pages; the heap page stores only a pointer.
type Table struct {
	bpm    bufferpool.BufferPool
	schema record.Schema

	mu          sync.Mutex
	firstPageID disk.PageID
	tailPageID  disk.PageID
}

// NewTable allocates the table's first page and returns an empty table.
func NewTable(bpm bufferpool.BufferPool, schema record.Schema) (*Table, error) {
	g, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("heap: allocate first page: %w", err)
	}
	slottedpage.New(g.Data(), slottedpage.TypeHeap, disk.InvalidPageID)
	g.MarkDirty()
	id := g.PageID()
	if err := g.Close(); err != nil {
		return nil, err
	}
	return &Table{bpm: bpm, schema: schema, firstPageID: id, tailPageID: id}, nil
}

// OpenTable reopens a table whose first page is already on disk.
func OpenTable(bpm bufferpool.BufferPool, schema record.Schema, firstPageID disk.PageID) (*Table, error) {
	t := &Table{bpm: bpm, schema: schema, firstPageID: firstPageID}
	tail := firstPageID
	for {
		g, err := bpm.FetchPage(tail)
		if err != nil {
			return nil, fmt.Errorf("heap: walk chain: %w", err)
		}
		next := slottedpage.Page{Buf: g.Data()}.NextPageID()
		g.Close()
		if next == disk.InvalidPageID {
			break
		}
		tail = next
	}
	t.tailPageID = tail
	return t, nil
}

// FirstPageID returns the page ID of the head of the table's page chain.
func (t *Table) FirstPageID() disk.PageID { return t.firstPageID }

// InsertTuple encodes values per the table's schema and stores the
// resulting row in the first page of the chain, walking from the head, that
// has room for it, allocating a new tail page and extending the chain if no
// page does.
func (t *Table) InsertTuple(values []any) (RowID, error) {
	rec, err := t.encodeRow(values)
	if err != nil {
		return RowID{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pageID := t.firstPageID
	for {
		g, err := t.bpm.FetchPage(pageID)
		if err != nil {
			return RowID{}, err
		}
		page := slottedpage.Page{Buf: g.Data()}

		if slot, ok := page.InsertRecord(rec); ok {
			g.MarkDirty()
			g.Close()
			return RowID{PageID: pageID, Slot: uint16(slot)}, nil
		}

		if next := page.NextPageID(); next != disk.InvalidPageID {
			g.Close()
			pageID = next
			continue
		}

		ng, err := t.bpm.NewPage()
		if err != nil {
			g.Close()
			return RowID{}, fmt.Errorf("heap: extend chain: %w", err)
		}
		slottedpage.New(ng.Data(), slottedpage.TypeHeap, disk.InvalidPageID)
		ng.MarkDirty()
		newTail := ng.PageID()
		ng.Close()

		page.SetNextPageID(newTail)
		g.MarkDirty()
		g.Close()

		t.tailPageID = newTail
		pageID = newTail
	}
}

// GetTuple reads and decodes the row at id.
func (t *Table) GetTuple(id RowID) ([]any, error) {
	g, err := t.bpm.FetchPage(id.PageID)
	if err != nil {
		return nil, err
	}
	defer g.Close()

	page := slottedpage.Page{Buf: g.Data()}
	raw, err := page.GetRecord(int(id.Slot))
	if err != nil {
		return nil, err
	}
	return t.decodeRow(raw)
}

// Scan walks every page in the chain and invokes fn for each live row,
// skipping tombstoned slots. Scanning stops at the first error fn returns.
func (t *Table) Scan(fn func(RowID, []any) error) error {
	pageID := t.firstPageID
	for {
		g, err := t.bpm.FetchPage(pageID)
		if err != nil {
			return err
		}
		page := slottedpage.Page{Buf: g.Data()}

		for slot := 0; slot < page.SlotCount(); slot++ {
			raw, err := page.GetRecord(slot)
			if errors.Is(err, slottedpage.ErrBadSlot) {
				continue
			}
			if err != nil {
				g.Close()
				return err
			}
			row, err := t.decodeRow(raw)
			if err != nil {
				g.Close()
				return err
			}
			if err := fn(RowID{PageID: pageID, Slot: uint16(slot)}, row); err != nil {
				g.Close()
				return err
			}
		}

		next := page.NextPageID()
		g.Close()
		if next == disk.InvalidPageID {
			return nil
		}
		pageID = next
	}
}

// encodeRow decides whether values fit inline on a heap page or must spill
// to an overflow chain, and returns the bytes to store in the heap slot.
func (t *Table) encodeRow(values []any) ([]byte, error) {
	encoded, err := record.EncodeRow(t.schema, values)
	if err != nil {
		return nil, err
	}

	maxInline := disk.PageSize - slottedpage.HeaderSize - 4 /* slot directory entry */
	if len(encoded)+1 <= maxInline {
		out := make([]byte, 0, len(encoded)+1)
		out = append(out, rowKindInline)
		out = append(out, encoded...)
		return out, nil
	}

	ref, err := writeOverflow(t.bpm, encoded)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+8+4)
	out[0] = rowKindOverflow
	putOverflowRef(out[1:], ref)
	return out, nil
}

func (t *Table) decodeRow(raw []byte) ([]any, error) {
	if len(raw) == 0 {
		return nil, ErrOverflowTuple
	}
	switch raw[0] {
	case rowKindInline:
		return record.DecodeRow(t.schema, raw[1:])
	case rowKindOverflow:
		if len(raw) < 1+8+4 {
			return nil, ErrOverflowTuple
		}
		ref := getOverflowRef(raw[1:])
		full, err := readOverflow(t.bpm, ref)
		if err != nil {
			return nil, err
		}
		return record.DecodeRow(t.schema, full)
	default:
		return nil, fmt.Errorf("%w: unknown row kind %d", ErrOverflowTuple, raw[0])
	}
}
