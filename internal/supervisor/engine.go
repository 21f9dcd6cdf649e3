// Package supervisor runs the registered processes.
//
// Each process id is owned by a unit goroutine that executes lifecycle
// operations one at a time and turns exit notices into state changes. The
// Engine routes requests to units, runs bulk operations with bounded
// concurrency, and periodically reconciles the runtime state with the OS.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/pmdeck/internal/env"
	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/history"
	"github.com/loykin/pmdeck/internal/logstore"
	"github.com/loykin/pmdeck/internal/metrics"
	"github.com/loykin/pmdeck/internal/registry"
	"github.com/loykin/pmdeck/internal/state"
)

// Deps are the collaborators an Engine drives. History may be nil.
type Deps struct {
	Registry *registry.Registry
	States   *state.Table
	Logs     *logstore.Store
	Env      *env.Env
	Sampler  *metrics.Sampler
	History  *history.Exporter
	Logger   *slog.Logger
}

// Engine owns every unit and the shared runtime state table.
type Engine struct {
	opts    Options
	reg     *registry.Registry
	states  *state.Table
	logs    *logstore.Store
	env     *env.Env
	sampler *metrics.Sampler
	hist    *history.Exporter
	log     *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	booted  atomic.Bool
	closing atomic.Bool

	mu    sync.RWMutex
	units map[int64]*unit

	subMu   sync.Mutex
	subs    map[int]chan history.Event
	nextSub int
}

// New builds an Engine; Boot must be called before it serves requests.
func New(d Deps, opts Options) *Engine {
	opts = opts.WithDefaults()
	if d.Env == nil {
		d.Env = env.New(true)
	}
	if d.Sampler == nil {
		d.Sampler = metrics.NewSampler()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:    opts,
		reg:     d.Registry,
		states:  d.States,
		logs:    d.Logs,
		env:     d.Env,
		sampler: d.Sampler,
		hist:    d.History,
		log:     d.Logger.With("component", "supervisor"),
		ctx:     ctx,
		cancel:  cancel,
		units:   make(map[int64]*unit),
		subs:    make(map[int]chan history.Event),
	}
}

func (e *Engine) Options() Options { return e.opts }

// Boot attaches every registered process in the stopped state, starts the
// reconciler and then starts every autoStart process.
func (e *Engine) Boot(ctx context.Context) error {
	if !e.booted.CompareAndSwap(false, true) {
		return nil
	}
	var auto []int64
	for _, cfg := range e.reg.List() {
		e.attach(cfg)
		if cfg.AutoStart {
			auto = append(auto, cfg.ID)
		}
	}
	e.wg.Add(1)
	go e.reconcileLoop()
	e.log.Info("supervisor booted", "processes", e.reg.Len(), "autostart", len(auto))
	if len(auto) == 0 {
		return nil
	}
	return e.bulk(ctx, "autostart", auto, e.Start)
}

// Shutdown stops every process and waits for all units to exit.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closing.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.RLock()
	for _, u := range e.units {
		u.shutdown()
	}
	e.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		e.mu.RLock()
		units := make([]*unit, 0, len(e.units))
		for _, u := range e.units {
			units = append(units, u)
		}
		e.mu.RUnlock()
		for _, u := range units {
			<-u.done
		}
		e.cancel()
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info("supervisor stopped")
		return nil
	case <-ctx.Done():
		e.cancel()
		return errs.Timeoutf("shutdown: %v", ctx.Err())
	}
}

func (e *Engine) attach(cfg registry.Config) {
	e.states.Create(cfg.ID, cfg.Name)
	e.logs.Open(cfg.ID, cfg.Name)
	u := newUnit(e, cfg)
	e.mu.Lock()
	e.units[cfg.ID] = u
	e.mu.Unlock()
	e.wg.Add(1)
	go u.run()
}

func (e *Engine) detach(id int64) {
	e.mu.Lock()
	delete(e.units, id)
	e.mu.Unlock()
}

func (e *Engine) unit(id int64) *unit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.units[id]
}

// ids returns the attached ids in ascending order.
func (e *Engine) ids() []int64 {
	e.mu.RLock()
	out := make([]int64, 0, len(e.units))
	for id := range e.units {
		out = append(out, id)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// submit runs req on the unit of id and waits for its result. The caller's
// ctx bounds only the wait; the operation itself runs under the engine's
// context so an abandoned request never leaves a unit blocked.
func (e *Engine) submit(ctx context.Context, id int64, req request) (result, error) {
	if e.closing.Load() {
		return result{}, errs.Execution(nil, "supervisor is shutting down")
	}
	u := e.unit(id)
	if u == nil {
		return result{}, errs.NotFoundf("process %d not found", id)
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()
	if !u.acquire(e.opts.BusyPolicy, e.opts.QueueSize) {
		return result{}, errs.Conflictf("process %d is busy, try again later", id)
	}
	req.ctx = ctx
	req.reply = make(chan result, 1)
	select {
	case u.cmds <- req:
	case <-u.done:
		u.release()
		return result{}, e.goneErr(id)
	case <-ctx.Done():
		u.release()
		return result{}, errs.Timeoutf("process %d: %s was not accepted in time", id, req.kind)
	}
	select {
	case r := <-req.reply:
		return r, r.err
	case <-ctx.Done():
		return result{}, errs.Timeoutf("process %d: %s did not finish in time", id, req.kind)
	case <-u.done:
		select {
		case r := <-req.reply:
			return r, r.err
		default:
			return result{}, e.goneErr(id)
		}
	}
}

func (e *Engine) goneErr(id int64) error {
	if e.closing.Load() {
		return errs.Execution(nil, "supervisor is shutting down")
	}
	return errs.NotFoundf("process %d not found", id)
}

// Start launches id. Starting a running process is a no-op.
func (e *Engine) Start(ctx context.Context, id int64) error {
	_, err := e.submit(ctx, id, request{kind: opStart})
	return err
}

// Stop terminates id, escalating to a kill after StopTimeout.
func (e *Engine) Stop(ctx context.Context, id int64) error {
	_, err := e.submit(ctx, id, request{kind: opStop})
	return err
}

// Restart stops id if it runs and starts it again.
func (e *Engine) Restart(ctx context.Context, id int64) error {
	_, err := e.submit(ctx, id, request{kind: opRestart})
	return err
}

// Update applies p. restart overrides the configured update policy when set.
func (e *Engine) Update(ctx context.Context, id int64, p registry.Patch, restart *bool) (registry.Config, error) {
	r, err := e.submit(ctx, id, request{kind: opUpdate, patch: p, restart: restart})
	return r.cfg, err
}

// Delete removes id. The returned warning is non-nil when the process could
// not be stopped cleanly before it was removed.
func (e *Engine) Delete(ctx context.Context, id int64) (warning error, err error) {
	r, err := e.submit(ctx, id, request{kind: opDelete})
	return r.warn, err
}

// Add registers cfg and starts it when AutoStart is set. When the start
// fails the configuration is kept and the returned Config is valid.
func (e *Engine) Add(ctx context.Context, cfg registry.Config) (registry.Config, error) {
	if e.closing.Load() {
		return registry.Config{}, errs.Execution(nil, "supervisor is shutting down")
	}
	c, err := e.reg.Add(ctx, cfg)
	if err != nil {
		return registry.Config{}, err
	}
	e.attach(c)
	ev := history.NewEvent(history.EventAdded, c.ID, c.Name)
	ev.Status = string(state.StatusStopped)
	e.emit(ev)
	e.log.Info("process added", "id", c.ID, "name", c.Name)
	if c.AutoStart {
		if err := e.Start(ctx, c.ID); err != nil {
			return c, fmt.Errorf("process %d added but autostart failed: %w", c.ID, err)
		}
	}
	return c, nil
}

func (e *Engine) StartAll(ctx context.Context) error {
	return e.bulk(ctx, "start", e.ids(), e.Start)
}

func (e *Engine) StopAll(ctx context.Context) error {
	return e.bulk(ctx, "stop", e.ids(), e.Stop)
}

func (e *Engine) RestartAll(ctx context.Context) error {
	return e.bulk(ctx, "restart", e.ids(), e.Restart)
}

// Failure is one failed process of a bulk operation.
type Failure struct {
	ID   int64
	Name string
	Err  error
}

// BulkError reports every process a bulk operation failed on, in id order.
type BulkError struct {
	Op       string
	Total    int
	Failures []Failure
}

func (b *BulkError) Error() string {
	parts := make([]string, 0, len(b.Failures))
	for _, f := range b.Failures {
		parts = append(parts, fmt.Sprintf("%s (id %d): %v", f.Name, f.ID, f.Err))
	}
	return fmt.Sprintf("%s: %d of %d processes failed: %s", b.Op, len(b.Failures), b.Total, strings.Join(parts, "; "))
}

func (b *BulkError) Unwrap() error { return errs.ErrExecution }

func (e *Engine) bulk(ctx context.Context, op string, ids []int64, fn func(context.Context, int64) error) error {
	results := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.BulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = fn(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var failures []Failure
	for i, err := range results {
		if err == nil {
			continue
		}
		name := ""
		if s, ok := e.states.Observe(ids[i]); ok {
			name = s.Name
		}
		failures = append(failures, Failure{ID: ids[i], Name: name, Err: err})
	}
	if len(failures) == 0 {
		return nil
	}
	be := &BulkError{Op: op, Total: len(ids), Failures: failures}
	e.log.Warn("bulk operation had failures", "op", op, "failed", len(failures), "total", len(ids))
	return be
}

// View pairs a configuration with its runtime state.
type View struct {
	Config registry.Config
	State  state.State
}

// List returns every process in id order.
func (e *Engine) List() []View {
	cfgs := e.reg.List()
	out := make([]View, 0, len(cfgs))
	for _, c := range cfgs {
		s, ok := e.states.Observe(c.ID)
		if !ok {
			s = state.State{ID: c.ID, Name: c.Name, Status: state.StatusUnknown}
		}
		out = append(out, View{Config: c, State: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Config.ID < out[j].Config.ID })
	return out
}

func (e *Engine) Get(id int64) (View, error) {
	c, err := e.reg.Get(id)
	if err != nil {
		return View{}, err
	}
	s, ok := e.states.Observe(id)
	if !ok {
		s = state.State{ID: id, Name: c.Name, Status: state.StatusUnknown}
	}
	return View{Config: c, State: s}, nil
}

// Logs returns at most n trailing lines per stream of id.
func (e *Engine) Logs(id int64, n int) (logstore.Logs, error) {
	if _, err := e.reg.Get(id); err != nil {
		return logstore.Logs{}, err
	}
	return e.logs.ReadTail(id, n), nil
}

// Snapshot summarizes the current runtime states.
func (e *Engine) Snapshot() metrics.Snapshot {
	return metrics.Summarize(e.states.ObserveAll())
}

// SetGlobalEnv replaces the variables merged into every process started
// from now on.
func (e *Engine) SetGlobalEnv(kvs []string) { e.env.SetGlobal(kvs) }

func (e *Engine) reconcileLoop() {
	defer e.wg.Done()
	t := time.NewTicker(e.opts.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-t.C:
			e.Reconcile(e.ctx)
		}
	}
}
