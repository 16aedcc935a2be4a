package store

// ring is a fixed-capacity status history. Pushing onto a full ring
// drops the oldest entry, so the buffer always holds the newest
// `capacity` statuses in order.
type ring struct {
	buf   []Status
	start int
	count int
}

// newRing creates a ring holding at most capacity statuses.
// Capacity must be at least 1.
func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]Status, capacity)}
}

// push appends a status, evicting the oldest entry if the ring is full.
func (r *ring) push(st Status) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = st
		r.count++
		return
	}
	r.buf[r.start] = st
	r.start = (r.start + 1) % len(r.buf)
}

// len returns the number of stored statuses.
func (r *ring) len() int {
	return r.count
}

// last returns the newest status and whether the ring is non-empty.
func (r *ring) last() (Status, bool) {
	if r.count == 0 {
		return Status{}, false
	}
	return r.buf[(r.start+r.count-1)%len(r.buf)], true
}

// collect returns a copy of the history, oldest first.
func (r *ring) collect() []Status {
	out := make([]Status, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// slice returns a copy of history[offset : offset+limit], oldest first.
// A limit of 0 means "to the end". Out-of-range offsets yield an empty
// slice, not an error.
func (r *ring) slice(offset, limit int) []Status {
	if offset < 0 || offset >= r.count {
		return []Status{}
	}
	n := r.count - offset
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Status, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}

// restore replaces the ring contents with the given history, keeping
// only the newest entries if it exceeds capacity. Used when loading a
// snapshot whose history limit may differ from the current one.
func (r *ring) restore(statuses []Status) {
	r.start = 0
	r.count = 0
	if n := len(statuses) - len(r.buf); n > 0 {
		statuses = statuses[n:]
	}
	copy(r.buf, statuses)
	r.count = len(statuses)
}
