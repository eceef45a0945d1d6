// Package record defines row schemas and the byte encoding used to store
// row values inline on a slotted page.
package record

import (
	"errors"
	"math"

	"github.com/quanla/pagestore/internal/alias/bx"
)

type ColumnType uint8

const (
	ColInt32 ColumnType = iota
	ColInt64
	ColBool
	ColFloat64
	ColText  // UTF-8
	ColBytes // opaque bytes
)

type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

type Schema struct {
	Cols []Column
}

func (s Schema) NumCols() int { return len(s.Cols) }

var (
	ErrSchemaMismatch  = errors.New("record: schema/values mismatch")
	ErrBadBuffer       = errors.New("record: buffer underflow/overflow")
	ErrVarTooLong      = errors.New("record: variable length exceeds u16")
	ErrUnsupportedType = errors.New("record: unsupported column type")
)

// EncodeRow serializes values against schema s. Layout:
//
//	[nullmap: ceil(N/8) bytes, bit=1 => NULL] [field0] [field1] ...
//
// Fixed-size fields (int32/int64/bool/float64) are encoded native-endian.
// Variable-length fields (text/bytes) are a u16 little-endian length prefix
// followed by the raw bytes.
func EncodeRow(s Schema, values []any) ([]byte, error) {
	nc := s.NumCols()
	if len(values) != nc {
		return nil, ErrSchemaMismatch
	}

	nbBytes := (nc + 7) / 8
	out := make([]byte, nbBytes)

	for i, col := range s.Cols {
		v := values[i]
		if v == nil {
			if !col.Nullable {
				return nil, ErrSchemaMismatch
			}
			out[i/8] |= 1 << (uint(i) & 7)
			continue
		}

		switch col.Type {
		case ColInt32:
			x, ok := asInt32(v)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			var b [4]byte
			bx.PutNU32(b[:], uint32(x))
			out = append(out, b[:]...)

		case ColInt64:
			x, ok := asInt64(v)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			var b [8]byte
			bx.PutNU64(b[:], uint64(x))
			out = append(out, b[:]...)

		case ColBool:
			x, ok := v.(bool)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			if x {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}

		case ColFloat64:
			x, ok := asFloat64(v)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			var b [8]byte
			bx.PutNU64(b[:], math.Float64bits(x))
			out = append(out, b[:]...)

		case ColText:
			str, ok := v.(string)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			bs := []byte(str)
			if len(bs) > math.MaxUint16 {
				return nil, ErrVarTooLong
			}
			var l [2]byte
			bx.PutU16(l[:], uint16(len(bs)))
			out = append(out, l[:]...)
			out = append(out, bs...)

		case ColBytes:
			bs, ok := v.([]byte)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			if len(bs) > math.MaxUint16 {
				return nil, ErrVarTooLong
			}
			var l [2]byte
			bx.PutU16(l[:], uint16(len(bs)))
			out = append(out, l[:]...)
			out = append(out, bs...)

		default:
			return nil, ErrUnsupportedType
		}
	}
	return out, nil
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(s Schema, buf []byte) ([]any, error) {
	nc := s.NumCols()
	nbBytes := (nc + 7) / 8
	if len(buf) < nbBytes {
		return nil, ErrBadBuffer
	}
	nullmap := buf[:nbBytes]
	i := nbBytes

	out := make([]any, nc)
	for colIdx, col := range s.Cols {
		isNull := (nullmap[colIdx/8]>>(uint(colIdx)&7))&1 == 1
		if isNull {
			out[colIdx] = nil
			continue
		}

		switch col.Type {
		case ColInt32:
			if i+4 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = int32(bx.NU32(buf[i : i+4]))
			i += 4

		case ColInt64:
			if i+8 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = int64(bx.NU64(buf[i : i+8]))
			i += 8

		case ColBool:
			if i+1 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = buf[i] != 0
			i++

		case ColFloat64:
			if i+8 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = math.Float64frombits(bx.NU64(buf[i : i+8]))
			i += 8

		case ColText:
			if i+2 > len(buf) {
				return nil, ErrBadBuffer
			}
			l := int(bx.U16(buf[i : i+2]))
			i += 2
			if i+l > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = string(buf[i : i+l])
			i += l

		case ColBytes:
			if i+2 > len(buf) {
				return nil, ErrBadBuffer
			}
			l := int(bx.U16(buf[i : i+2]))
			i += 2
			if i+l > len(buf) {
				return nil, ErrBadBuffer
			}
			cp := make([]byte, l)
			copy(cp, buf[i:i+l])
			out[colIdx] = cp
			i += l

		default:
			return nil, ErrUnsupportedType
		}
	}
	return out, nil
}

func asInt32(v any) (int32, bool) {
	switch x := v.(type) {
	case int32:
		return x, true
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x), true
		}
	case int64:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x), true
		}
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}
