package bufferpool

import (
	"fmt"
	"log/slog"

	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/pkg/clockx"
)

// actorFrame is plain data owned exclusively by the actor goroutine; no
// synchronization is needed since nothing else ever touches it.
type actorFrame struct {
	pageID   disk.PageID
	data     []byte
	pinCount int32
	dirty    bool
}

type actorRequest struct {
	kind    actorKind
	pageID  disk.PageID // fetch, flushPage
	reply   chan actorReply
	unpin   actorUnpin
}

type actorKind int

const (
	kindFetch actorKind = iota
	kindNewPage
	kindUnpin
	kindFlushPage
	kindFlushAll
	kindContains
	kindStop
)

type actorUnpin struct {
	pageID disk.PageID
	data   []byte
	dirty  bool
}

type actorReply struct {
	pageID disk.PageID
	data   []byte
	found  bool
	err    error
}

// ActorBPM is the single-actor buffer pool manager: one goroutine owns all
// frame state and the page table, serving requests off a channel. Guards
// hold a private copy of the page bytes and ship it back on Close; the
// actor applies whichever copy arrives last ("last writer wins" at unpin
// time, matching the guard's own close-time snapshot).
type ActorBPM struct {
	requests chan actorRequest
	done     chan struct{}
}

var _ BufferPool = (*ActorBPM)(nil)

// NewActorBPM creates an ActorBPM with capacity frames backed by dm and
// starts its owning goroutine.
func NewActorBPM(dm *disk.Manager, capacity int) *ActorBPM {
	if capacity <= 0 {
		capacity = 16
	}
	bpm := &ActorBPM{
		requests: make(chan actorRequest),
		done:     make(chan struct{}),
	}
	state := newActorState(dm, capacity)
	go state.run(bpm.requests, bpm.done)
	return bpm
}

func (b *ActorBPM) FetchPage(id disk.PageID) (PageGuard, error) {
	reply := make(chan actorReply, 1)
	b.requests <- actorRequest{kind: kindFetch, pageID: id, reply: reply}
	r := <-reply
	if r.err != nil {
		return nil, r.err
	}
	return &actorPageGuard{bpm: b, pageID: r.pageID, data: r.data}, nil
}

func (b *ActorBPM) NewPage() (PageGuard, error) {
	reply := make(chan actorReply, 1)
	b.requests <- actorRequest{kind: kindNewPage, reply: reply}
	r := <-reply
	if r.err != nil {
		return nil, r.err
	}
	return &actorPageGuard{bpm: b, pageID: r.pageID, data: r.data, dirty: true}, nil
}

func (b *ActorBPM) unpin(id disk.PageID, data []byte, dirty bool) {
	b.requests <- actorRequest{kind: kindUnpin, unpin: actorUnpin{pageID: id, data: data, dirty: dirty}}
}

func (b *ActorBPM) FlushPage(id disk.PageID) error {
	reply := make(chan actorReply, 1)
	b.requests <- actorRequest{kind: kindFlushPage, pageID: id, reply: reply}
	r := <-reply
	return r.err
}

// contains reports whether id currently has a frame in the page table. It is
// a synchronous round trip through the actor's request channel, so it
// observes state only after every request sent before it (including any
// pending unpin) has been applied.
func (b *ActorBPM) contains(id disk.PageID) bool {
	reply := make(chan actorReply, 1)
	b.requests <- actorRequest{kind: kindContains, pageID: id, reply: reply}
	return (<-reply).found
}

func (b *ActorBPM) FlushAllPages() error {
	reply := make(chan actorReply, 1)
	b.requests <- actorRequest{kind: kindFlushAll, reply: reply}
	r := <-reply
	return r.err
}

func (b *ActorBPM) Close() error {
	err := b.FlushAllPages()
	b.requests <- actorRequest{kind: kindStop}
	<-b.done
	return err
}

type actorPageGuard struct {
	bpm    *ActorBPM
	pageID disk.PageID
	data   []byte
	dirty  bool
	closed bool
}

func (g *actorPageGuard) PageID() disk.PageID { return g.pageID }
func (g *actorPageGuard) Data() []byte        { return g.data }
func (g *actorPageGuard) MarkDirty()          { g.dirty = true }

func (g *actorPageGuard) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	cp := make([]byte, len(g.data))
	copy(cp, g.data)
	g.bpm.unpin(g.pageID, cp, g.dirty)
	return nil
}

// actorState is the state machine run exclusively on the actor goroutine.
// It uses no locks: serialization comes entirely from being the only
// reader of its request channel.
type actorState struct {
	disk      *disk.Manager
	frames    []*actorFrame
	pageTable map[disk.PageID]FrameID
	freeList  []FrameID
	clock     *clockx.Clock
}

func newActorState(dm *disk.Manager, capacity int) *actorState {
	s := &actorState{
		disk:      dm,
		frames:    make([]*actorFrame, capacity),
		pageTable: make(map[disk.PageID]FrameID, capacity),
		freeList:  make([]FrameID, capacity),
		clock:     clockx.New(capacity),
	}
	for i := range s.frames {
		s.frames[i] = &actorFrame{data: make([]byte, disk.PageSize)}
		s.freeList[i] = FrameID(i)
	}
	return s
}

func (s *actorState) run(requests <-chan actorRequest, done chan<- struct{}) {
	for req := range requests {
		switch req.kind {
		case kindFetch:
			data, err := s.fetch(req.pageID)
			req.reply <- actorReply{pageID: req.pageID, data: data, err: err}
		case kindNewPage:
			id, data, err := s.newPage()
			req.reply <- actorReply{pageID: id, data: data, err: err}
		case kindUnpin:
			s.unpin(req.unpin.pageID, req.unpin.data, req.unpin.dirty)
		case kindFlushPage:
			req.reply <- actorReply{err: s.flushPage(req.pageID)}
		case kindFlushAll:
			req.reply <- actorReply{err: s.flushAll()}
		case kindContains:
			_, ok := s.pageTable[req.pageID]
			req.reply <- actorReply{found: ok}
		case kindStop:
			close(done)
			return
		}
	}
}

func (s *actorState) fetch(id disk.PageID) ([]byte, error) {
	if frameID, ok := s.pageTable[id]; ok {
		f := s.frames[frameID]
		f.pinCount++
		s.clock.Touch(frameID)
		s.clock.SetEvictable(frameID, false)
		out := make([]byte, len(f.data))
		copy(out, f.data)
		return out, nil
	}

	frameID, err := s.pickVictim()
	if err != nil {
		return nil, err
	}
	f := s.frames[frameID]
	oldPageID := f.pageID

	if f.dirty {
		if err := s.disk.WritePage(oldPageID, f.data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if err := s.disk.ReadPage(id, f.data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	delete(s.pageTable, oldPageID)
	s.pageTable[id] = frameID
	f.pageID = id
	f.pinCount = 1
	f.dirty = false
	s.clock.Touch(frameID)
	s.clock.SetEvictable(frameID, false)

	slog.Debug("bufferpool(actor): fetch miss", "pageID", id, "frameID", frameID, "evicted", oldPageID)

	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

func (s *actorState) newPage() (disk.PageID, []byte, error) {
	frameID, err := s.pickVictim()
	if err != nil {
		return disk.InvalidPageID, nil, err
	}
	f := s.frames[frameID]
	oldPageID := f.pageID

	if f.dirty {
		if err := s.disk.WritePage(oldPageID, f.data); err != nil {
			return disk.InvalidPageID, nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	newID := s.disk.AllocatePage()
	for i := range f.data {
		f.data[i] = 0
	}

	delete(s.pageTable, oldPageID)
	s.pageTable[newID] = frameID
	f.pageID = newID
	f.pinCount = 1
	f.dirty = true
	s.clock.Touch(frameID)
	s.clock.SetEvictable(frameID, false)

	out := make([]byte, len(f.data))
	copy(out, f.data)
	return newID, out, nil
}

func (s *actorState) pickVictim() (FrameID, error) {
	if n := len(s.freeList); n > 0 {
		id := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		return id, nil
	}
	idx, ok := s.clock.Evict()
	if !ok {
		return 0, ErrNoFreeFrames
	}
	return FrameID(idx), nil
}

func (s *actorState) unpin(id disk.PageID, data []byte, dirty bool) {
	frameID, ok := s.pageTable[id]
	if !ok {
		return
	}
	f := s.frames[frameID]
	if f.pinCount > 0 {
		f.pinCount--
	}
	if dirty {
		f.dirty = true
		f.data = data
	}
	if f.pinCount == 0 {
		s.clock.SetEvictable(frameID, true)
	}
}

func (s *actorState) flushPage(id disk.PageID) error {
	frameID, ok := s.pageTable[id]
	if !ok {
		return nil
	}
	f := s.frames[frameID]
	if !f.dirty {
		return nil
	}
	if err := s.disk.WritePage(id, f.data); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	f.dirty = false
	return nil
}

func (s *actorState) flushAll() error {
	for id := range s.pageTable {
		if err := s.flushPage(id); err != nil {
			return err
		}
	}
	return nil
}
