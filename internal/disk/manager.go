// Package disk manages reading and writing fixed-size pages to a single
// database file. It uses positioned I/O (ReadAt/WriteAt) so that concurrent
// readers and writers never contend on a single file-wide lock; only page-id
// allocation is serialized, and that only needs an atomic counter.
package disk

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// PageID identifies a page within the database file. The zero value,
// InvalidPageID, never denotes a real page.
type PageID uint64

const InvalidPageID PageID = 0

// PageSize is the fixed size, in bytes, of every page in the database file.
const PageSize = 4096

var (
	// ErrShortRead is returned when fewer than PageSize bytes could be read,
	// which for a page at or past the allocated frontier means it was never
	// written.
	ErrShortRead = errors.New("disk: short read, page never written")
)

// Manager owns the single database file and the monotonic page-id allocator.
// Reads and writes use positioned I/O so callers may issue them concurrently
// without serializing behind a shared lock; only AllocatePage is guarded,
// and only by an atomic counter.
type Manager struct {
	file       *os.File
	nextPageID atomic.Uint64
}

// Open opens (creating if necessary) the database file at path. When
// directIO is true and the platform supports it, the file is opened with
// O_DIRECT (Linux) so reads/writes bypass the page cache; on platforms
// without that support the flag is silently ignored.
func Open(path string, directIO bool) (*Manager, error) {
	flags := os.O_RDWR | os.O_CREATE
	if directIO {
		flags |= directIOFlag
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}

	m := &Manager{file: f}
	next := uint64(info.Size()) / PageSize
	if next < 1 {
		// Page 0 is never handed out: InvalidPageID == 0 must stay a safe
		// sentinel for "no page" in node/chain pointers.
		next = 1
	}
	m.nextPageID.Store(next)

	slog.Debug("disk manager opened", "path", path, "directIO", directIO, "nextPageID", m.nextPageID.Load())
	return m, nil
}

// Close releases the underlying file handle.
func (m *Manager) Close() error {
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("disk: close: %w", err)
	}
	return nil
}

// AllocatePage reserves and returns the next page ID. The page is not
// written until the caller issues WritePage for it.
func (m *Manager) AllocatePage() PageID {
	id := m.nextPageID.Add(1) - 1
	return PageID(id)
}

// ReadPage reads exactly PageSize bytes for id into buf using positioned I/O.
// buf must be at least PageSize bytes.
func (m *Manager) ReadPage(id PageID, buf []byte) error {
	if len(buf) < PageSize {
		return fmt.Errorf("disk: read buffer too small: %d < %d", len(buf), PageSize)
	}
	offset := int64(id) * PageSize
	_, err := m.file.ReadAt(buf[:PageSize], offset)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: page %d", ErrShortRead, id)
		}
		return fmt.Errorf("disk: read page %d: %w", id, err)
	}
	return nil
}

// WritePage writes exactly PageSize bytes from buf for id using positioned
// I/O. buf must be at least PageSize bytes.
func (m *Manager) WritePage(id PageID, buf []byte) error {
	if len(buf) < PageSize {
		return fmt.Errorf("disk: write buffer too small: %d < %d", len(buf), PageSize)
	}
	offset := int64(id) * PageSize
	if _, err := m.file.WriteAt(buf[:PageSize], offset); err != nil {
		return fmt.Errorf("disk: write page %d: %w", id, err)
	}
	return nil
}

// Sync flushes any OS-buffered writes to stable storage.
func (m *Manager) Sync() error {
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("disk: sync: %w", err)
	}
	return nil
}
