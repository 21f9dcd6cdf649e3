package metrics

import (
	"context"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is the resource usage of one supervised process, summed over its
// instances.
type Usage struct {
	CPU    float64
	Memory uint64
	User   string
}

// Sampler keeps one gopsutil handle per pid so CPU percent is measured
// between consecutive samples instead of over the process lifetime.
type Sampler struct {
	mu    sync.Mutex
	procs map[int32]*handle
}

// handle serializes reads of one gopsutil process; it caches the previous
// CPU times and status fields without locking.
type handle struct {
	mu sync.Mutex
	p  *process.Process
}

func NewSampler() *Sampler {
	return &Sampler{procs: make(map[int32]*handle)}
}

func (s *Sampler) handle(pid int32) (*handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.procs[pid]; ok {
		return h, nil
	}
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	h := &handle{p: p}
	s.procs[pid] = h
	return h, nil
}

func (h *handle) read(ctx context.Context, u *Usage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var memErr error
	if cpu, err := h.p.PercentWithContext(ctx, 0); err == nil && cpu > 0 {
		u.CPU += cpu
	}
	if mem, err := h.p.MemoryInfoWithContext(ctx); err == nil {
		u.Memory += mem.RSS
	} else {
		memErr = err
	}
	if u.User == "" {
		u.User, _ = h.p.UsernameWithContext(ctx)
	}
	return memErr
}

// Sample measures pids. Pids that cannot be read are skipped; the error of
// the first failure is returned only when nothing could be read.
func (s *Sampler) Sample(ctx context.Context, pids ...int) (Usage, error) {
	var u Usage
	var firstErr error
	read := 0
	for _, pid := range pids {
		h, err := s.handle(int32(pid))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := h.read(ctx, &u); err != nil && firstErr == nil {
			firstErr = err
		}
		read++
	}
	if read == 0 && firstErr != nil {
		return Usage{}, firstErr
	}
	return u, nil
}

// Forget drops cached handles for pids.
func (s *Sampler) Forget(pids ...int) {
	s.mu.Lock()
	for _, pid := range pids {
		delete(s.procs, int32(pid))
	}
	s.mu.Unlock()
}

// Prune drops every cached handle whose pid is not in live.
func (s *Sampler) Prune(live []int) {
	keep := make(map[int32]struct{}, len(live))
	for _, pid := range live {
		keep[int32(pid)] = struct{}{}
	}
	s.mu.Lock()
	for pid := range s.procs {
		if _, ok := keep[pid]; !ok {
			delete(s.procs, pid)
		}
	}
	s.mu.Unlock()
}

func (s *Sampler) cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}
