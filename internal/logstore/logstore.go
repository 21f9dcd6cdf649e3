// Package logstore retains recent stdout and stderr lines per process.
//
// Each (id, stream) pair has its own bounded ring and lock; the id lookup is
// behind a read lock so writers for different processes never contend.
package logstore

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/loykin/pmdeck/internal/logger"
)

type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

const (
	DefaultMaxLines     = 1000
	DefaultMaxLineBytes = 64 * 1024
)

// Logs is the retained output of one process.
type Logs struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

type Options struct {
	MaxLines     int
	MaxLineBytes int
	// Dir enables a rotated file mirror per stream.
	Dir      string
	Rotation logger.Rotation
}

type entry struct {
	out, err *ring

	mu               sync.Mutex
	closed           bool
	outFile, errFile io.WriteCloser
}

func (e *entry) ring(s Stream) *ring {
	if s == Stderr {
		return e.err
	}
	return e.out
}

// mirror writes line to the file of s. Writes after close are dropped so
// the rotating writer never reopens the file of a removed id.
func (e *entry) mirror(s Stream, line string) {
	f := e.outFile
	if s == Stderr {
		f = e.errFile
	}
	if f == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	_, _ = io.WriteString(f, line+"\n")
}

func (e *entry) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, f := range []io.WriteCloser{e.outFile, e.errFile} {
		if f != nil {
			_ = f.Close()
		}
	}
}

type Store struct {
	opts Options

	mu sync.RWMutex
	m  map[int64]*entry
}

func New(opts Options) *Store {
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}
	return &Store{opts: opts, m: make(map[int64]*entry)}
}

// Open creates the rings for id. Calling it again for a live id is a no-op.
func (s *Store) Open(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; ok {
		return
	}
	e := &entry{out: newRing(s.opts.MaxLines), err: newRing(s.opts.MaxLines)}
	if s.opts.Dir != "" {
		base := filepath.Join(s.opts.Dir, fmt.Sprintf("%s-%d", fileSafe(name), id))
		e.outFile = logger.RotatingWriter(base+".stdout.log", s.opts.Rotation)
		e.errFile = logger.RotatingWriter(base+".stderr.log", s.opts.Rotation)
	}
	s.m[id] = e
}

func (s *Store) lookup(id int64) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[id]
}

func (s *Store) Has(id int64) bool { return s.lookup(id) != nil }

// Append stores one line. Lines for unknown ids are dropped.
func (s *Store) Append(id int64, stream Stream, line string) {
	e := s.lookup(id)
	if e == nil {
		return
	}
	if len(line) > s.opts.MaxLineBytes {
		line = line[:runeCut(line, s.opts.MaxLineBytes)]
	}
	e.ring(stream).add(line)
	e.mirror(stream, line)
}

// Read returns every retained line of id. Unknown ids yield empty slices.
func (s *Store) Read(id int64) Logs { return s.ReadTail(id, 0) }

// ReadTail returns at most n trailing lines per stream; n <= 0 means all.
func (s *Store) ReadTail(id int64, n int) Logs {
	e := s.lookup(id)
	if e == nil {
		return Logs{Stdout: []string{}, Stderr: []string{}}
	}
	return Logs{Stdout: e.out.tail(n), Stderr: e.err.tail(n)}
}

// Writer returns a line splitter feeding stream of id, suitable as a child's
// stdout or stderr. Closing it flushes a trailing partial line.
func (s *Store) Writer(id int64, stream Stream) io.WriteCloser {
	return NewLineWriter(s.opts.MaxLineBytes, func(line string) {
		s.Append(id, stream, line)
	})
}

// Remove drops the rings of id and closes its file mirror.
func (s *Store) Remove(id int64) {
	s.mu.Lock()
	e := s.m[id]
	delete(s.m, id)
	s.mu.Unlock()
	if e != nil {
		e.close()
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.m {
		e.close()
		delete(s.m, id)
	}
	return nil
}

// fileSafe maps name onto [A-Za-z0-9._-] so it cannot leave the log dir.
func fileSafe(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
	out = strings.ReplaceAll(out, "..", "__")
	if out == "" || out == "." {
		return "proc"
	}
	return out
}
