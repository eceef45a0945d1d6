// stand for bytes helper
package bx

import "encoding/binary"

var LE = binary.LittleEndian

// NE is the host's native byte order, used for row-codec scalar fields
// (tuples never cross machine boundaries, so there's no portability cost
// and no byte-swap on the hot insert/scan path).
var NE = binary.NativeEndian

// --- LE: read --- (on-page headers: page IDs, slot offsets, node fields)
func U16(b []byte) uint16 { return LE.Uint16(b) }
func U32(b []byte) uint32 { return LE.Uint32(b) }
func U64(b []byte) uint64 { return LE.Uint64(b) }
func I16(b []byte) int16  { return int16(U16(b)) }
func I32(b []byte) int32  { return int32(U32(b)) }
func I64(b []byte) int64  { return int64(U64(b)) }

// --- LE: write ---
func PutU16(b []byte, v uint16) { LE.PutUint16(b, v) }
func PutU32(b []byte, v uint32) { LE.PutUint32(b, v) }
func PutU64(b []byte, v uint64) { LE.PutUint64(b, v) }

// --- LE: At (offset) ---
func U16At(b []byte, off int) uint16       { return U16(b[off:]) }
func U32At(b []byte, off int) uint32       { return U32(b[off:]) }
func U64At(b []byte, off int) uint64       { return U64(b[off:]) }
func PutU16At(b []byte, off int, v uint16) { PutU16(b[off:], v) }
func PutU32At(b []byte, off int, v uint32) { PutU32(b[off:], v) }
func PutU64At(b []byte, off int, v uint64) { PutU64(b[off:], v) }

// --- Native endian: read --- (row codec scalar fields)
func NU32(b []byte) uint32 { return NE.Uint32(b) }
func NU64(b []byte) uint64 { return NE.Uint64(b) }
func NI32(b []byte) int32  { return int32(NU32(b)) }
func NI64(b []byte) int64  { return int64(NU64(b)) }

// --- Native endian: write ---
func PutNU32(b []byte, v uint32) { NE.PutUint32(b, v) }
func PutNU64(b []byte, v uint64) { NE.PutUint64(b, v) }

// --- Native endian: At (offset) ---
func NU32At(b []byte, off int) uint32       { return NU32(b[off:]) }
func NU64At(b []byte, off int) uint64       { return NU64(b[off:]) }
func PutNU32At(b []byte, off int, v uint32) { PutNU32(b[off:], v) }
func PutNU64At(b []byte, off int, v uint64) { PutNU64(b[off:], v) }
