package bufferpool

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/quanla/pagestore/internal/disk"
)

// sharedFrame holds one page's bytes and metadata. Its mutex is held only
// for the duration of a single fetch/evict/unpin step, never for the
// lifetime of a PageGuard, so concurrent fetches of different pages never
// serialize on each other.
type sharedFrame struct {
	mu         sync.Mutex
	pageID     disk.PageID
	data       []byte
	pinCount   int32
	dirty      bool
	referenced bool
}

// SharedBPM is the fine-grained-locking buffer pool manager: a shared page
// table behind a RWMutex, per-frame mutexes, and a free list and clock hand
// each behind their own small mutex. Victim selection uses TryLock so a
// frame that's mid-fetch by another goroutine is simply skipped for this
// sweep rather than waited on.
type SharedBPM struct {
	disk *disk.Manager

	frames []*sharedFrame

	ptMu      sync.RWMutex
	pageTable map[disk.PageID]FrameID

	freeMu   sync.Mutex
	freeList []FrameID

	clockMu   sync.Mutex
	clockHand int
}

var _ BufferPool = (*SharedBPM)(nil)

// NewSharedBPM creates a SharedBPM with capacity frames backed by dm.
func NewSharedBPM(dm *disk.Manager, capacity int) *SharedBPM {
	if capacity <= 0 {
		capacity = 16
	}
	p := &SharedBPM{
		disk:      dm,
		frames:    make([]*sharedFrame, capacity),
		pageTable: make(map[disk.PageID]FrameID, capacity),
		freeList:  make([]FrameID, capacity),
	}
	for i := range p.frames {
		p.frames[i] = &sharedFrame{data: make([]byte, disk.PageSize)}
		p.freeList[i] = FrameID(i)
	}
	return p
}

func (p *SharedBPM) FetchPage(id disk.PageID) (PageGuard, error) {
	p.ptMu.RLock()
	frameID, hit := p.pageTable[id]
	p.ptMu.RUnlock()

	if hit {
		f := p.frames[frameID]
		f.mu.Lock()
		f.pinCount++
		f.referenced = true
		f.mu.Unlock()
		slog.Debug("bufferpool: fetch hit", "pageID", id, "frameID", frameID)
		return &sharedPageGuard{bpm: p, pageID: id, frameID: frameID}, nil
	}

	frameID, f, err := p.pickVictim()
	if err != nil {
		return nil, err
	}
	oldPageID := f.pageID

	if f.dirty {
		if err := p.disk.WritePage(oldPageID, f.data); err != nil {
			f.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if err := p.disk.ReadPage(id, f.data); err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	f.pageID = id
	f.pinCount = 1
	f.dirty = false
	f.referenced = true
	f.mu.Unlock()

	p.ptMu.Lock()
	delete(p.pageTable, oldPageID)
	p.pageTable[id] = frameID
	p.ptMu.Unlock()

	slog.Debug("bufferpool: fetch miss", "pageID", id, "frameID", frameID, "evicted", oldPageID)
	return &sharedPageGuard{bpm: p, pageID: id, frameID: frameID}, nil
}

func (p *SharedBPM) NewPage() (PageGuard, error) {
	frameID, f, err := p.pickVictim()
	if err != nil {
		return nil, err
	}
	oldPageID := f.pageID

	if f.dirty {
		if err := p.disk.WritePage(oldPageID, f.data); err != nil {
			f.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	newID := p.disk.AllocatePage()
	for i := range f.data {
		f.data[i] = 0
	}
	f.pageID = newID
	f.pinCount = 1
	f.dirty = true
	f.referenced = true
	f.mu.Unlock()

	p.ptMu.Lock()
	delete(p.pageTable, oldPageID)
	p.pageTable[newID] = frameID
	p.ptMu.Unlock()

	slog.Debug("bufferpool: new page", "pageID", newID, "frameID", frameID)
	return &sharedPageGuard{bpm: p, pageID: newID, frameID: frameID}, nil
}

// pickVictim returns a frame ready to be reused, locked. The caller must
// unlock it once it has finished reading the evicted page's metadata and
// installed the new one.
func (p *SharedBPM) pickVictim() (FrameID, *sharedFrame, error) {
	p.freeMu.Lock()
	if n := len(p.freeList); n > 0 {
		id := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		p.freeMu.Unlock()
		f := p.frames[id]
		f.mu.Lock()
		return id, f, nil
	}
	p.freeMu.Unlock()

	p.clockMu.Lock()
	defer p.clockMu.Unlock()

	n := len(p.frames)
	for i := 0; i < 2*n; i++ {
		idx := p.clockHand
		p.clockHand = (p.clockHand + 1) % n

		f := p.frames[idx]
		if !f.mu.TryLock() {
			continue
		}
		if f.pinCount != 0 {
			f.mu.Unlock()
			continue
		}
		if f.referenced {
			f.referenced = false
			f.mu.Unlock()
			continue
		}
		return FrameID(idx), f, nil
	}
	return 0, nil, ErrNoFreeFrames
}

func (p *SharedBPM) unpin(id disk.PageID, dirty bool) {
	p.ptMu.RLock()
	frameID, ok := p.pageTable[id]
	p.ptMu.RUnlock()
	if !ok {
		return
	}
	f := p.frames[frameID]
	f.mu.Lock()
	if dirty {
		f.dirty = true
	}
	if f.pinCount > 0 {
		f.pinCount--
	}
	f.mu.Unlock()
}

func (p *SharedBPM) FlushPage(id disk.PageID) error {
	p.ptMu.RLock()
	frameID, ok := p.pageTable[id]
	p.ptMu.RUnlock()
	if !ok {
		return nil
	}
	f := p.frames[frameID]
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return nil
	}
	if err := p.disk.WritePage(id, f.data); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	f.dirty = false
	return nil
}

func (p *SharedBPM) FlushAllPages() error {
	p.ptMu.RLock()
	ids := make([]disk.PageID, 0, len(p.pageTable))
	for id := range p.pageTable {
		ids = append(ids, id)
	}
	p.ptMu.RUnlock()

	for _, id := range ids {
		if err := p.FlushPage(id); err != nil {
			return err
		}
	}
	return nil
}

func (p *SharedBPM) Close() error {
	return p.FlushAllPages()
}

type sharedPageGuard struct {
	bpm     *SharedBPM
	pageID  disk.PageID
	frameID FrameID
	dirty   bool
	closed  bool
}

func (g *sharedPageGuard) PageID() disk.PageID { return g.pageID }

func (g *sharedPageGuard) Data() []byte {
	return g.bpm.frames[g.frameID].data
}

func (g *sharedPageGuard) MarkDirty() { g.dirty = true }

func (g *sharedPageGuard) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	g.bpm.unpin(g.pageID, g.dirty)
	return nil
}
