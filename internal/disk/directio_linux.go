//go:build linux

package disk

import "golang.org/x/sys/unix"

// directIOFlag is OR'd into the open flags when direct I/O is requested.
// Linux supports O_DIRECT natively; other platforms fall back to buffered
// I/O (see directio_other.go).
const directIOFlag = unix.O_DIRECT
