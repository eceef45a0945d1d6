// Package clockx implements CLOCK (second-chance) page replacement over a
// fixed-size frame array, used by the buffer pool's actor core (the
// shared-state core runs its own clock sweep over its frames).
package clockx

// FrameID identifies a frame slot tracked by a Clock. It is the same type
// the buffer pool uses to index its frame array, so callers pass frame
// indexes straight through without a conversion at the package boundary.
type FrameID int32

// Clock tracks ref bits and evictable state for frame IDs [0..capacity).
type Clock struct {
	ref       []bool
	evictable []bool
	present   []bool
	hand      FrameID
	size      int // number of evictable frames
}

func New(capacity int) *Clock {
	if capacity <= 0 {
		capacity = 1
	}
	return &Clock{
		ref:       make([]bool, capacity),
		evictable: make([]bool, capacity),
		present:   make([]bool, capacity),
		hand:      0,
		size:      0,
	}
}

func (c *Clock) Capacity() int { return len(c.ref) }

// Touch marks a frame as recently accessed.
func (c *Clock) Touch(id FrameID) {
	if id < 0 || int(id) >= len(c.ref) {
		return
	}
	if !c.present[id] {
		c.present[id] = true
	}
	c.ref[id] = true
}

// SetEvictable marks whether a frame can be evicted (e.g., pin count == 0).
func (c *Clock) SetEvictable(id FrameID, evictable bool) {
	if id < 0 || int(id) >= len(c.ref) {
		return
	}
	if !c.present[id] {
		// Ignore unknown frame.
		return
	}

	old := c.evictable[id]
	if old == evictable {
		return
	}

	c.evictable[id] = evictable
	if evictable {
		c.size++
	} else {
		c.size--
	}
}

// Evict returns the victim frame ID and ok flag. It also removes the
// victim from tracking (present=false).
func (c *Clock) Evict() (id FrameID, ok bool) {
	n := FrameID(len(c.ref))
	if n == 0 || c.size == 0 {
		return -1, false
	}

	// Up to 2 sweeps to avoid infinite loops.
	for range 2 * int(n) {
		idx := c.hand

		if c.present[idx] && c.evictable[idx] {
			if !c.ref[idx] {
				// Victim found -> remove it.
				c.present[idx] = false
				c.evictable[idx] = false
				c.ref[idx] = false
				c.size--

				c.hand = (c.hand + 1) % n
				return idx, true
			}
			// Second chance.
			c.ref[idx] = false
		}

		c.hand = (c.hand + 1) % n
	}

	return -1, false
}

// Remove removes a frame from tracking (present=false).
func (c *Clock) Remove(id FrameID) {
	if id < 0 || int(id) >= len(c.ref) {
		return
	}
	if !c.present[id] {
		return
	}

	if c.evictable[id] {
		c.size--
	}
	c.present[id] = false
	c.evictable[id] = false
	c.ref[id] = false
}

func (c *Clock) Size() int { return c.size }
