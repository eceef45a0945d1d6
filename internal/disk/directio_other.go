//go:build !linux

package disk

// directIOFlag is a no-op outside Linux: direct I/O is a best-effort
// optimization, not a correctness requirement, so unsupported platforms
// silently fall back to buffered I/O.
const directIOFlag = 0
