package stream

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
// Not safe for concurrent use; Subscriber guards it.
type ring struct {
	buf  []Line
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Line, capacity)}
}

// push appends l and reports whether an older line was dropped to make room
func (r *ring) push(l Line) (dropped bool) {
	if r.size == len(r.buf) {
		r.buf[r.head] = l
		r.head = (r.head + 1) % len(r.buf)
		return true
	}
	r.buf[(r.head+r.size)%len(r.buf)] = l
	r.size++
	return false
}

func (r *ring) pop() (Line, bool) {
	if r.size == 0 {
		return Line{}, false
	}
	l := r.buf[r.head]
	r.buf[r.head] = Line{}
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return l, true
}

func (r *ring) len() int {
	return r.size
}
