// Package bufferpool implements the buffer pool manager: a fixed-size
// in-memory page cache over internal/disk, with two interchangeable
// concurrency cores (SharedBPM, ActorBPM) behind the same BufferPool
// interface and page-guard contract.
package bufferpool

import (
	"errors"

	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/pkg/clockx"
)

// FrameID indexes a slot in the buffer pool's fixed-size frame array. It is
// an alias of clockx.FrameID so frame indexes pass straight into the clock
// replacer without conversion at the package boundary.
type FrameID = clockx.FrameID

var (
	// ErrNoFreeFrames is returned when every frame is pinned and none can be
	// evicted to satisfy a fetch or new-page request.
	ErrNoFreeFrames = errors.New("bufferpool: no free frame available (all pinned)")

	// ErrIO wraps an underlying disk manager error.
	ErrIO = errors.New("bufferpool: I/O error")
)

// PageGuard is a scoped handle on a pinned page. It is returned by
// FetchPage/NewPage and pins the page for as long as it is held; Close
// unpins it. A guard must not be used after Close.
type PageGuard interface {
	// PageID returns the ID of the page this guard holds.
	PageID() disk.PageID

	// Data returns the page's raw bytes. The slice is only valid while the
	// guard is open; callers that mutate it must call MarkDirty.
	Data() []byte

	// MarkDirty marks the page as modified so it will be written back before
	// its frame is reused.
	MarkDirty()

	// Close unpins the page, allowing it to be considered for eviction once
	// its pin count reaches zero.
	Close() error
}

// BufferPool is the interface shared by SharedBPM and ActorBPM.
type BufferPool interface {
	// FetchPage pins and returns the page for id, loading it from disk if it
	// is not already cached.
	FetchPage(id disk.PageID) (PageGuard, error)

	// NewPage allocates a fresh page ID, pins a zeroed frame for it, and
	// returns it dirty (it has never been written to disk).
	NewPage() (PageGuard, error)

	// FlushPage writes a page back to disk if it is dirty, regardless of
	// pin count.
	FlushPage(id disk.PageID) error

	// FlushAllPages writes back every dirty page currently cached.
	FlushAllPages() error

	// Close flushes all dirty pages and releases any background resources.
	Close() error
}
