package heap

import (
	"fmt"

	"github.com/quanla/pagestore/internal/alias/bx"
	"github.com/quanla/pagestore/internal/bufferpool"
	"github.com/quanla/pagestore/internal/disk"
)

// Overflow pages store a value too large to fit inline on a heap page, as a
// linked list of dedicated pages (not slotted pages — each overflow page is
// entirely one chunk of one value).
//
//	offset 0: next_page_id (u64 LE), disk.InvalidPageID if this is the last chunk
//	offset 8: chunk length (u16 LE)
//	offset 10: chunk bytes
const (
	overflowOffNext   = 0
	overflowOffLen    = 8
	overflowHeaderLen = 10
)

// OverflowRef points to the start of an overflowed value's page chain.
type OverflowRef struct {
	FirstPageID disk.PageID
	Length      uint32
}

// putOverflowRef serializes ref into b (must be at least 12 bytes).
func putOverflowRef(b []byte, ref OverflowRef) {
	bx.PutU64At(b, 0, uint64(ref.FirstPageID))
	bx.PutU32At(b, 8, ref.Length)
}

// getOverflowRef is the inverse of putOverflowRef.
func getOverflowRef(b []byte) OverflowRef {
	return OverflowRef{
		FirstPageID: disk.PageID(bx.U64At(b, 0)),
		Length:      bx.U32At(b, 8),
	}
}

// writeOverflow stores value across as many overflow pages as needed and
// returns a reference to the chain's head.
func writeOverflow(bpm bufferpool.BufferPool, value []byte) (OverflowRef, error) {
	totalLen := len(value)
	payloadMax := disk.PageSize - overflowHeaderLen

	var first disk.PageID
	var prev bufferpool.PageGuard
	offset := 0

	for {
		chunkLen := totalLen - offset
		if chunkLen > payloadMax {
			chunkLen = payloadMax
		}

		g, err := bpm.NewPage()
		if err != nil {
			return OverflowRef{}, fmt.Errorf("heap: allocate overflow page: %w", err)
		}
		buf := g.Data()
		bx.PutU64At(buf, overflowOffNext, uint64(disk.InvalidPageID))
		bx.PutU16At(buf, overflowOffLen, uint16(chunkLen))
		copy(buf[overflowHeaderLen:], value[offset:offset+chunkLen])
		g.MarkDirty()

		if prev != nil {
			bx.PutU64At(prev.Data(), overflowOffNext, uint64(g.PageID()))
			prev.MarkDirty()
			prev.Close()
		} else {
			first = g.PageID()
		}
		prev = g

		offset += chunkLen
		if chunkLen == 0 || offset >= totalLen {
			break
		}
	}
	prev.Close()

	return OverflowRef{FirstPageID: first, Length: uint32(totalLen)}, nil
}

// readOverflow reassembles a value from its overflow page chain.
func readOverflow(bpm bufferpool.BufferPool, ref OverflowRef) ([]byte, error) {
	if ref.Length == 0 {
		return []byte{}, nil
	}

	out := make([]byte, 0, ref.Length)
	pageID := ref.FirstPageID
	remaining := int(ref.Length)

	for remaining > 0 {
		g, err := bpm.FetchPage(pageID)
		if err != nil {
			return nil, fmt.Errorf("heap: read overflow page %d: %w", pageID, err)
		}
		buf := g.Data()
		next := disk.PageID(bx.U64At(buf, overflowOffNext))
		used := int(bx.U16At(buf, overflowOffLen))
		if used > remaining {
			used = remaining
		}
		out = append(out, buf[overflowHeaderLen:overflowHeaderLen+used]...)
		remaining -= used
		g.Close()

		if next == disk.InvalidPageID {
			break
		}
		pageID = next
	}
	return out, nil
}
