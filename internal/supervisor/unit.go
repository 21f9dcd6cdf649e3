package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/history"
	"github.com/loykin/pmdeck/internal/logstore"
	"github.com/loykin/pmdeck/internal/metrics"
	"github.com/loykin/pmdeck/internal/process"
	"github.com/loykin/pmdeck/internal/registry"
	"github.com/loykin/pmdeck/internal/state"
)

type opKind int

const (
	opStart opKind = iota
	opStop
	opRestart
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opStart:
		return "start"
	case opStop:
		return "stop"
	case opRestart:
		return "restart"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	}
	return "unknown"
}

type request struct {
	ctx     context.Context
	kind    opKind
	patch   registry.Patch
	restart *bool
	reply   chan result
}

type result struct {
	cfg  registry.Config
	warn error
	err  error
}

type exitNotice struct {
	gen uint64
	pid int
}

// unit owns one process id. Every lifecycle operation and every exit
// notice for the id is handled on its goroutine, which gives a total order
// per id without any lock shared between ids.
type unit struct {
	e       *Engine
	id      int64
	log     *slog.Logger
	cmds    chan request
	exits   chan exitNotice
	probe   chan struct{}
	quit    chan struct{}
	done    chan struct{}
	pending atomic.Int32
	stopped sync.Once

	// owned by the actor goroutine
	procs []*process.Process
	gen   uint64
}

func newUnit(e *Engine, cfg registry.Config) *unit {
	return &unit{
		e:     e,
		id:    cfg.ID,
		log:   e.log.With("id", cfg.ID),
		cmds:  make(chan request, e.opts.QueueSize),
		exits: make(chan exitNotice),
		probe: make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// acquire reserves a slot for one operation under the busy policy.
func (u *unit) acquire(p BusyPolicy, queueSize int) bool {
	if p == BusyReject {
		return u.pending.CompareAndSwap(0, 1)
	}
	if u.pending.Add(1) > int32(queueSize)+1 {
		u.pending.Add(-1)
		return false
	}
	return true
}

func (u *unit) release() { u.pending.Add(-1) }

// shutdown asks the actor to stop its processes and exit.
func (u *unit) shutdown() { u.stopped.Do(func() { close(u.quit) }) }

func (u *unit) run() {
	defer u.e.wg.Done()
	defer close(u.done)
	for {
		select {
		case req := <-u.cmds:
			res, exit := u.execute(req)
			u.release()
			req.reply <- res
			if exit {
				return
			}
		case n := <-u.exits:
			u.onExit(n)
		case <-u.probe:
			u.reapIfDead()
		case <-u.quit:
			ctx, cancel := context.WithTimeout(context.Background(), u.e.opts.StopTimeout+u.e.opts.KillTimeout+time.Second)
			if err := u.stop(ctx); err != nil {
				u.log.Warn("stop on shutdown failed", "error", err)
			}
			cancel()
			return
		}
	}
}

func (u *unit) execute(req request) (result, bool) {
	if err := req.ctx.Err(); err != nil {
		return result{err: errs.Timeoutf("process %d: %s abandoned before it ran", u.id, req.kind)}, false
	}
	began := time.Now()
	defer func() { metrics.ObserveOperation(req.kind.String(), time.Since(began).Seconds()) }()

	ctx, cancel := context.WithTimeout(u.e.ctx, u.e.opts.OperationTimeout)
	defer cancel()

	var res result
	switch req.kind {
	case opStart:
		res.err = u.start(ctx)
	case opStop:
		res.err = u.stop(ctx)
	case opRestart:
		res.err = u.restart(ctx)
	case opUpdate:
		res.cfg, res.err = u.update(ctx, req.patch, req.restart)
	case opDelete:
		res.warn, res.err = u.delete(ctx)
		return res, res.err == nil
	}
	return res, false
}

func (u *unit) config() (registry.Config, error) { return u.e.reg.Get(u.id) }

func (u *unit) anyLive() bool {
	for _, p := range u.procs {
		if !p.Exited() {
			return true
		}
	}
	return false
}

func (u *unit) allAlive() bool {
	if len(u.procs) == 0 {
		return false
	}
	for _, p := range u.procs {
		if !p.Alive() {
			return false
		}
	}
	return true
}

func (u *unit) pids() []int {
	out := make([]int, 0, len(u.procs))
	for _, p := range u.procs {
		out = append(out, p.PID())
	}
	return out
}

func (u *unit) start(ctx context.Context) error {
	cfg, err := u.config()
	if err != nil {
		return err
	}
	if u.allAlive() {
		return nil
	}
	if u.anyLive() {
		// a partial set from an earlier run is replaced as a whole
		u.gen++
		if err := u.stopProcs(ctx); err != nil {
			u.markErrored(cfg, err.Error())
			return errs.Execution(err, "start process %d (%s): clearing previous instances", u.id, cfg.Name)
		}
		u.forget(cfg.Name, u.pids())
		u.procs = nil
	}
	u.reapIfDead()
	if err := u.spawn(ctx, cfg); err != nil {
		u.markErrored(cfg, err.Error())
		return errs.Execution(err, "start process %d (%s)", u.id, cfg.Name)
	}
	return nil
}

func (u *unit) spawn(ctx context.Context, cfg registry.Config) error {
	u.gen++
	gen := u.gen
	spec := process.Spec{Name: cfg.Name, Script: cfg.Script, Args: cfg.Args, WorkDir: cfg.Cwd}
	procs := make([]*process.Process, 0, cfg.Instances)
	abort := func(cause error) error {
		u.procs = procs
		_ = u.stopProcs(ctx)
		u.procs = nil
		return cause
	}
	for i := 0; i < cfg.Instances; i++ {
		vars := u.e.env.Merge(
			"PMDECK_ID="+strconv.FormatInt(u.id, 10),
			"PMDECK_NAME="+cfg.Name,
			"PMDECK_INSTANCE="+strconv.Itoa(i),
		)
		stdio := process.Stdio{
			Stdout: u.e.logs.Writer(u.id, logstore.Stdout),
			Stderr: u.e.logs.Writer(u.id, logstore.Stderr),
		}
		p, err := process.Start(spec, vars, stdio)
		if err != nil {
			return abort(err)
		}
		procs = append(procs, p)
	}
	if err := process.EnforceStartWindow(ctx, u.e.opts.StartWindow, procs...); err != nil {
		return abort(err)
	}
	u.procs = procs
	for _, p := range procs {
		go u.watch(gen, p)
	}

	pids := u.pids()
	var startedAt time.Time
	u.e.states.Record(u.id, func(s *state.State) {
		startedAt = procs[0].StartedAt()
		if !startedAt.After(s.StartedAt) {
			startedAt = s.StartedAt.Add(time.Millisecond)
		}
		s.Name = cfg.Name
		s.Status = state.StatusRunning
		s.PID = pids[0]
		s.PIDs = pids
		s.StartedAt = startedAt
		s.StoppedAt = time.Time{}
		s.Command = procs[0].Command()
		s.ExitCode = 0
		s.LastError = ""
		s.CPU, s.Memory = 0, 0
	})
	metrics.IncStart(cfg.Name)
	u.log.Info("process started", "name", cfg.Name, "pid", pids[0], "instances", len(pids))
	ev := history.NewEvent(history.EventStarted, u.id, cfg.Name)
	ev.PID, ev.Status = pids[0], string(state.StatusRunning)
	u.e.emit(ev)
	return nil
}

// watch posts one exit notice when p has been reaped.
func (u *unit) watch(gen uint64, p *process.Process) {
	<-p.Done()
	select {
	case u.exits <- exitNotice{gen: gen, pid: p.PID()}:
	case <-u.done:
	}
}

func (u *unit) stopProcs(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		fail []error
	)
	for _, p := range u.procs {
		wg.Add(1)
		go func(p *process.Process) {
			defer wg.Done()
			if err := p.Stop(ctx, u.e.opts.StopTimeout, u.e.opts.KillTimeout); err != nil {
				mu.Lock()
				fail = append(fail, err)
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return errors.Join(fail...)
}

func (u *unit) stop(ctx context.Context) error {
	cfg, err := u.config()
	if err != nil {
		return err
	}
	if !u.anyLive() {
		u.reapIfDead()
		return nil
	}
	u.gen++
	pids := u.pids()
	if err := u.stopProcs(ctx); err != nil {
		u.markErrored(cfg, err.Error())
		return errs.Execution(err, "stop process %d (%s)", u.id, cfg.Name)
	}
	u.forget(cfg.Name, pids)
	u.procs = nil
	u.e.states.Record(u.id, func(s *state.State) {
		s.Status = state.StatusStopped
		s.PID, s.PIDs = 0, nil
		s.StoppedAt = time.Now()
		s.CPU, s.Memory = 0, 0
	})
	metrics.IncStop(cfg.Name)
	u.log.Info("process stopped", "name", cfg.Name, "pid", pids[0])
	ev := history.NewEvent(history.EventStopped, u.id, cfg.Name)
	ev.PID, ev.Status = pids[0], string(state.StatusStopped)
	u.e.emit(ev)
	return nil
}

func (u *unit) restart(ctx context.Context) error {
	cfg, err := u.config()
	if err != nil {
		return err
	}
	if u.anyLive() {
		u.gen++
		if err := u.stopProcs(ctx); err != nil {
			u.markErrored(cfg, "restart: stop phase failed: "+err.Error())
			return errs.Execution(err, "restart: stop phase failed for process %d (%s)", u.id, cfg.Name)
		}
		u.forget(cfg.Name, u.pids())
		u.procs = nil
	}
	u.reapIfDead()
	if err := u.spawn(ctx, cfg); err != nil {
		u.markErrored(cfg, "restart: start phase failed: "+err.Error())
		return errs.Execution(err, "restart: start phase failed for process %d (%s)", u.id, cfg.Name)
	}
	u.e.states.Record(u.id, func(s *state.State) { s.Restarts++ })
	metrics.IncRestart(cfg.Name)
	ev := history.NewEvent(history.EventRestarted, u.id, cfg.Name)
	ev.PID, ev.Status = u.procs[0].PID(), string(state.StatusRunning)
	u.e.emit(ev)
	return nil
}

func (u *unit) update(ctx context.Context, p registry.Patch, restart *bool) (registry.Config, error) {
	old, err := u.config()
	if err != nil {
		return registry.Config{}, err
	}
	next, err := u.e.reg.Update(ctx, u.id, p)
	if err != nil {
		return registry.Config{}, err
	}
	u.e.states.Record(u.id, func(s *state.State) { s.Name = next.Name })
	ev := history.NewEvent(history.EventUpdated, u.id, next.Name)
	if st, ok := u.e.states.Observe(u.id); ok {
		ev.Status = string(st.Status)
	}
	u.e.emit(ev)

	if !u.anyLive() || !u.wantRestart(registry.CommandChanged(old, next), restart) {
		return next, nil
	}
	if err := u.restart(ctx); err != nil {
		return next, fmt.Errorf("process %d updated but restart failed: %w", u.id, err)
	}
	return next, nil
}

func (u *unit) wantRestart(changed bool, restart *bool) bool {
	if restart != nil {
		return *restart
	}
	return changed && u.e.opts.UpdateRestart == UpdateRestartAuto
}

// delete stops the process and removes every trace of the id. A stop
// failure is returned as a warning and does not prevent deletion.
func (u *unit) delete(ctx context.Context) (error, error) {
	cfg, err := u.config()
	if err != nil {
		return nil, err
	}
	pids := u.pids()
	warn := u.stop(ctx)
	if warn != nil {
		u.log.Warn("stop before delete failed, deleting anyway", "name", cfg.Name, "error", warn)
		for _, p := range u.procs {
			_ = p.Stop(context.Background(), 0, u.e.opts.KillTimeout)
		}
	}
	if err := u.e.reg.Delete(ctx, u.id); err != nil {
		return nil, err
	}
	u.gen++
	u.procs = nil
	u.forget(cfg.Name, pids)
	u.e.detach(u.id)
	u.e.states.Remove(u.id)
	u.e.logs.Remove(u.id)
	u.log.Info("process deleted", "name", cfg.Name)
	u.e.emit(history.NewEvent(history.EventDeleted, u.id, cfg.Name))
	return warn, nil
}

// onExit handles a reaped instance. The status settles once every
// instance of the current generation is gone.
func (u *unit) onExit(n exitNotice) {
	if n.gen != u.gen {
		return
	}
	cfg, err := u.config()
	if err != nil {
		return
	}
	var live []int
	for _, p := range u.procs {
		if p.PID() == n.pid {
			code, werr := p.Exit()
			u.log.Info("process exited", "name", cfg.Name, "pid", n.pid, "code", code, "error", werr)
			ev := history.NewEvent(history.EventExited, u.id, cfg.Name)
			ev.PID, ev.ExitCode = n.pid, code
			if werr != nil {
				ev.Message = werr.Error()
			}
			ev.Status = string(state.StatusRunning)
			if !u.anyLive() {
				ev.Status = string(exitStatus(u.procs))
			}
			u.e.emit(ev)
		}
		if !p.Exited() {
			live = append(live, p.PID())
		}
	}
	if len(live) > 0 {
		u.e.states.Record(u.id, func(s *state.State) {
			s.PID, s.PIDs = live[0], live
		})
		return
	}
	u.settle(cfg)
}

// reapIfDead settles the state when every instance has exited but the
// notices have not been handled yet.
func (u *unit) reapIfDead() {
	if len(u.procs) == 0 || u.anyLive() {
		return
	}
	cfg, err := u.config()
	if err != nil {
		return
	}
	u.gen++
	u.settle(cfg)
}

func (u *unit) settle(cfg registry.Config) {
	status := exitStatus(u.procs)
	code, lastErr := 0, ""
	for _, p := range u.procs {
		c, werr := p.Exit()
		if c != 0 || werr != nil {
			code = c
			if werr != nil {
				lastErr = werr.Error()
			}
		}
	}
	u.forget(cfg.Name, u.pids())
	u.procs = nil
	u.e.states.Record(u.id, func(s *state.State) {
		s.Status = status
		s.PID, s.PIDs = 0, nil
		s.StoppedAt = time.Now()
		s.ExitCode = code
		if lastErr != "" {
			s.LastError = lastErr
		}
		s.CPU, s.Memory = 0, 0
	})
	metrics.IncExit(cfg.Name, string(status))
}

// exitStatus is stopped only when every instance exited with code 0.
func exitStatus(procs []*process.Process) state.Status {
	for _, p := range procs {
		if code, _ := p.Exit(); code != 0 {
			return state.StatusErrored
		}
	}
	return state.StatusStopped
}

func (u *unit) markErrored(cfg registry.Config, msg string) {
	pids := u.pids()
	u.forget(cfg.Name, pids)
	if !u.anyLive() {
		u.procs = nil
	}
	live := u.pids()
	u.e.states.Record(u.id, func(s *state.State) {
		s.Status = state.StatusErrored
		s.LastError = msg
		if len(live) == 0 {
			s.PID, s.PIDs = 0, nil
			s.StoppedAt = time.Now()
		}
		s.CPU, s.Memory = 0, 0
	})
	u.log.Error("process errored", "name", cfg.Name, "error", msg)
	ev := history.NewEvent(history.EventErrored, u.id, cfg.Name)
	ev.Status, ev.Message = string(state.StatusErrored), msg
	u.e.emit(ev)
}

func (u *unit) forget(name string, pids []int) {
	u.e.sampler.Forget(pids...)
	metrics.ForgetUsage(u.id, name)
}
