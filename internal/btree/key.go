// Package btree implements a persistent B+ tree index over typed keys,
// stored as a chain of fixed-size pages fetched through a buffer pool.
package btree

import (
	"errors"
	"strings"

	"github.com/quanla/pagestore/internal/alias/bx"
)

// KeyKind distinguishes the two supported index key shapes.
type KeyKind uint8

const (
	KeyInteger KeyKind = iota
	KeyVarchar
)

// ErrKeyTypeMismatch signals an attempt to compare or decode keys of two
// different kinds, which is always a programmer error, not a runtime
// condition callers should expect to recover from.
var ErrKeyTypeMismatch = errors.New("btree: key kind mismatch")

// KeyType describes the shape of keys stored in one index: either fixed-size
// Integer keys, or Varchar keys bounded by MaxLength bytes.
type KeyType struct {
	Kind      KeyKind
	MaxLength uint32 // meaningful only when Kind == KeyVarchar
}

// MaxSize returns the fixed number of bytes reserved for one key slot of
// this type, used both for fanout computation and node layout.
func (t KeyType) MaxSize() int {
	if t.Kind == KeyInteger {
		return 4
	}
	return 4 + int(t.MaxLength)
}

// Key is a single typed key value.
type Key struct {
	Kind KeyKind
	Int  int32
	Str  string
}

// IntegerKey builds an Integer key.
func IntegerKey(v int32) Key { return Key{Kind: KeyInteger, Int: v} }

// VarcharKey builds a Varchar key.
func VarcharKey(v string) Key { return Key{Kind: KeyVarchar, Str: v} }

// Compare orders this key against other. Panics with ErrKeyTypeMismatch if
// the two keys are not the same kind.
func (k Key) Compare(other Key) int {
	if k.Kind != other.Kind {
		panic(ErrKeyTypeMismatch)
	}
	switch k.Kind {
	case KeyInteger:
		switch {
		case k.Int < other.Int:
			return -1
		case k.Int > other.Int:
			return 1
		default:
			return 0
		}
	default:
		return strings.Compare(k.Str, other.Str)
	}
}

// EncodedSize returns the number of bytes Encode writes for this value
// (not the reserved slot size, which is KeyType.MaxSize()).
func (k Key) EncodedSize() int {
	if k.Kind == KeyInteger {
		return 4
	}
	return 4 + len(k.Str)
}

// Encode serializes the key as: Integer -> 4-byte LE int32; Varchar ->
// 4-byte LE length prefix followed by the raw UTF-8 bytes.
func (k Key) Encode() []byte {
	if k.Kind == KeyInteger {
		buf := make([]byte, 4)
		bx.PutU32At(buf, 0, uint32(k.Int))
		return buf
	}
	buf := make([]byte, 4+len(k.Str))
	bx.PutU32At(buf, 0, uint32(len(k.Str)))
	copy(buf[4:], k.Str)
	return buf
}

// DecodeKey reads a key of the given type from the front of b. b must be at
// least t.MaxSize() bytes (the reserved slot, not just the encoded value).
func DecodeKey(b []byte, t KeyType) Key {
	if t.Kind == KeyInteger {
		return IntegerKey(int32(bx.U32At(b, 0)))
	}
	n := bx.U32At(b, 0)
	return VarcharKey(string(b[4 : 4+n]))
}
