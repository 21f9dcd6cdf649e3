package logstore

import "sync"

// ring keeps the newest max lines of one stream.
type ring struct {
	mu    sync.Mutex
	buf   []string
	start int
	n     int
}

func newRing(max int) *ring {
	return &ring{buf: make([]string, max)}
}

func (r *ring) add(line string) {
	r.mu.Lock()
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = line
		r.n++
	} else {
		r.buf[r.start] = line
		r.start = (r.start + 1) % len(r.buf)
	}
	r.mu.Unlock()
}

// tail returns the newest n lines, oldest first. n <= 0 means all.
func (r *ring) tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.n {
		n = r.n
	}
	out := make([]string, n)
	skip := r.n - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+skip+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
