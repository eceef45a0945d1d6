package btree

import (
	"github.com/quanla/pagestore/internal/alias/bx"
	"github.com/quanla/pagestore/internal/disk"
)

// IndexMetadata is persisted on a dedicated page and records enough to
// reopen a tree: where its root currently lives, what keys it holds, and
// the fanout derived from the key type.
//
// Layout:
//
//	offset 0:  root_page_id (u64 LE)
//	offset 8:  key_type_tag (1 byte: 0 = Integer, 1 = Varchar)
//	offset 9:  max_length   (u32 LE, meaningful for Varchar only)
//	offset 13: leaf_max_size (u16 LE)
//	offset 15: internal_max_size (u16 LE)
const metaHeaderSize = 17

type IndexMetadata struct {
	RootPageID      disk.PageID
	KeyType         KeyType
	LeafMaxSize     int
	InternalMaxSize int
}

// NewIndexMetadata computes fanout for keyType and returns metadata with no
// root assigned yet.
func NewIndexMetadata(keyType KeyType) IndexMetadata {
	leafMax, internalMax := computeFanout(keyType)
	return IndexMetadata{
		RootPageID:      disk.InvalidPageID,
		KeyType:         keyType,
		LeafMaxSize:     leafMax,
		InternalMaxSize: internalMax,
	}
}

// computeFanout derives the maximum number of entries a leaf or internal
// node of this key type can hold within one page.
func computeFanout(keyType KeyType) (leafMax, internalMax int) {
	maxKeySize := keyType.MaxSize()

	leafHeader := leafDataOffset
	leafEntry := maxKeySize + rowIDSize
	leafMax = (disk.PageSize - leafHeader) / leafEntry

	internalHeader := internalDataOffset + 8 // header + leftmost child pointer
	internalEntry := maxKeySize + 8
	internalMax = (disk.PageSize - internalHeader) / internalEntry

	return leafMax, internalMax
}

func (m IndexMetadata) serialize() []byte {
	buf := make([]byte, metaHeaderSize)
	bx.PutU64At(buf, 0, uint64(m.RootPageID))
	if m.KeyType.Kind == KeyVarchar {
		buf[8] = 1
		bx.PutU32At(buf, 9, m.KeyType.MaxLength)
	}
	bx.PutU16At(buf, 13, uint16(m.LeafMaxSize))
	bx.PutU16At(buf, 15, uint16(m.InternalMaxSize))
	return buf
}

func deserializeIndexMetadata(buf []byte) IndexMetadata {
	keyType := KeyType{Kind: KeyInteger}
	if buf[8] == 1 {
		keyType = KeyType{Kind: KeyVarchar, MaxLength: bx.U32At(buf, 9)}
	}
	return IndexMetadata{
		RootPageID:      disk.PageID(bx.U64At(buf, 0)),
		KeyType:         keyType,
		LeafMaxSize:     int(bx.U16At(buf, 13)),
		InternalMaxSize: int(bx.U16At(buf, 15)),
	}
}
