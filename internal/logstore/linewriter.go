package logstore

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"
)

// LineWriter splits written bytes into lines and hands each to emit without
// the trailing newline or carriage return. A line that grows past max bytes
// is emitted truncated and the rest is discarded up to the next newline.
type LineWriter struct {
	mu      sync.Mutex
	max     int
	buf     []byte
	discard bool
	emit    func(string)
}

func NewLineWriter(max int, emit func(string)) *LineWriter {
	if max <= 0 {
		max = DefaultMaxLineBytes
	}
	return &LineWriter{max: max, emit: emit}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.append(p)
			break
		}
		w.append(p[:i])
		if !w.discard {
			w.flush()
		}
		w.buf = w.buf[:0]
		w.discard = false
		p = p[i+1:]
	}
	return n, nil
}

func (w *LineWriter) append(p []byte) {
	if w.discard {
		return
	}
	room := w.max - len(w.buf)
	if len(p) <= room {
		w.buf = append(w.buf, p...)
		return
	}
	w.buf = append(w.buf, p[:room+1]...)
	w.buf = w.buf[:runeCut(w.buf, w.max)]
	w.flush()
	w.buf = w.buf[:0]
	w.discard = true
}

func (w *LineWriter) flush() {
	w.emit(strings.TrimSuffix(string(w.buf), "\r"))
}

// Close emits any pending partial line.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 && !w.discard {
		w.flush()
	}
	w.buf = w.buf[:0]
	return nil
}

// runeCut returns the largest cut point <= n that does not split a UTF-8
// sequence of b. Invalid input is cut at n.
func runeCut[T string | []byte](b T, n int) int {
	if n >= len(b) {
		return len(b)
	}
	for i := n; i >= 0 && i > n-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			return i
		}
	}
	return n
}
