package segment

// ring keeps the most recent cap items in arrival order.
type ring[T any] struct {
	buf  []T
	head int
	n    int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, max(capacity, 0))}
}

func (r *ring[T]) Push(v T) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// Items returns the buffered items oldest first.
func (r *ring[T]) Items() []T {
	out := make([]T, 0, r.n)
	start := (r.head - r.n + len(r.buf)) % max(len(r.buf), 1)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
