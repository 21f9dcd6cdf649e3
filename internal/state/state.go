// Package state keeps the observed runtime state of every registered process.
package state

import (
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusUnknown Status = "unknown"
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusErrored Status = "errored"
)

// State is a point-in-time view of one process. PID is the first
// instance's pid; PIDs lists all of them.
type State struct {
	ID        int64
	Name      string
	Status    Status
	PID       int
	PIDs      []int
	User      string
	CPU       float64
	Memory    uint64
	StartedAt time.Time
	StoppedAt time.Time
	Command   string
	Restarts  int
	ExitCode  int
	LastError string
}

// Uptime is zero unless the process is running.
func (s State) Uptime(now time.Time) time.Duration {
	if s.Status != StatusRunning || s.StartedAt.IsZero() {
		return 0
	}
	if d := now.Sub(s.StartedAt); d > 0 {
		return d
	}
	return 0
}

func (s State) clone() State {
	if s.PIDs != nil {
		s.PIDs = append([]int(nil), s.PIDs...)
	}
	return s
}

// Table is a concurrency-safe id -> State map. Writers are expected to be
// the per-process owner; readers may call from anywhere.
type Table struct {
	mu sync.RWMutex
	m  map[int64]*State
}

func NewTable() *Table {
	return &Table{m: make(map[int64]*State)}
}

// Create registers id as stopped. An existing entry is kept.
func (t *Table) Create(id int64, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[id]; ok {
		return
	}
	t.m[id] = &State{ID: id, Name: name, Status: StatusStopped}
}

// Record mutates the state of id under the table lock. It reports false
// when id is unknown.
func (t *Table) Record(id int64, fn func(*State)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.m[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

func (t *Table) Observe(id int64) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.m[id]
	if !ok {
		return State{}, false
	}
	return s.clone(), true
}

// ObserveAll returns copies ordered by id.
func (t *Table) ObserveAll() []State {
	t.mu.RLock()
	out := make([]State, 0, len(t.m))
	for _, s := range t.m {
		out = append(out, s.clone())
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Table) Remove(id int64) {
	t.mu.Lock()
	delete(t.m, id)
	t.mu.Unlock()
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}
