// Package facade is the boundary every transport calls. It validates and
// normalizes input, runs the engine operation and shapes the response.
// Mutating calls never return an error; failures are reported inside the
// OperationResult with a machine readable code.
package facade

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/history"
	"github.com/loykin/pmdeck/internal/process"
	"github.com/loykin/pmdeck/internal/registry"
	"github.com/loykin/pmdeck/internal/state"
	"github.com/loykin/pmdeck/internal/supervisor"
)

// Service is the transport-neutral API over an Engine.
type Service struct {
	eng     *supervisor.Engine
	version string
	log     *slog.Logger
	now     func() time.Time
}

// New returns a Service that reports version from Version.
func New(eng *supervisor.Engine, version string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{eng: eng, version: version, log: log.With("component", "facade"), now: time.Now}
}

// ParseID accepts a trimmed positive decimal id.
func ParseID(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errs.Validationf("process id is required")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Validationf("invalid process id %q", raw)
	}
	return id, nil
}

func (s *Service) ListProcesses(ctx context.Context) []ProcessInfo {
	s.eng.Reconcile(ctx)
	views := s.eng.List()
	out := make([]ProcessInfo, 0, len(views))
	now := s.now()
	for _, v := range views {
		out = append(out, s.info(v, now))
	}
	return out
}

func (s *Service) GetProcess(ctx context.Context, rawID string) (ProcessInfo, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return ProcessInfo{}, err
	}
	s.eng.Reconcile(ctx, id)
	v, err := s.eng.Get(id)
	if err != nil {
		return ProcessInfo{}, err
	}
	return s.info(v, s.now()), nil
}

func (s *Service) info(v supervisor.View, now time.Time) ProcessInfo {
	st := v.State
	up := st.Uptime(now)
	p := ProcessInfo{
		ID:           v.Config.ID,
		Name:         v.Config.Name,
		Status:       string(st.Status),
		CPU:          st.CPU,
		Memory:       st.Memory,
		Uptime:       int64(up / time.Second),
		Runtime:      FormatRuntime(up),
		PID:          st.PID,
		User:         st.User,
		Command:      st.Command,
		Script:       v.Config.Script,
		Cwd:          v.Config.Cwd,
		Args:         v.Config.Args,
		Instances:    v.Config.Instances,
		AutoStart:    v.Config.AutoStart,
		Restarts:     st.Restarts,
		ExitCode:     st.ExitCode,
		LastError:    st.LastError,
		InstancePIDs: st.PIDs,
	}
	if p.Command == "" {
		p.Command = process.Spec{Script: v.Config.Script, Args: v.Config.Args}.CommandLine()
	}
	if !st.StartedAt.IsZero() {
		p.StartedAt = st.StartedAt.Local().Format(StartedAtLayout)
	}
	if st.Status != state.StatusRunning {
		p.CPU, p.Memory, p.PID = 0, 0, 0
	}
	return p
}

func (s *Service) GetMetrics(ctx context.Context) MetricsData {
	s.eng.Reconcile(ctx)
	return s.eng.Snapshot()
}

// GetLogs returns up to lines trailing lines per stream; lines <= 0 means
// everything retained.
func (s *Service) GetLogs(_ context.Context, rawID string, lines int) (LogData, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return LogData{}, err
	}
	return s.eng.Logs(id, lines)
}

func (s *Service) Version(_ context.Context) Version {
	v := Version{Version: s.version}
	sh, err := process.ShellAvailable()
	if err != nil {
		v.Message = fmt.Sprintf("no shell available, only direct commands can run: %v", err)
		return v
	}
	v.Installed = true
	v.Message = "supervisor ready, shell " + sh
	return v
}

func (s *Service) StartProcess(ctx context.Context, rawID string) OperationResult {
	return s.byID(ctx, rawID, "start", s.eng.Start)
}

func (s *Service) StopProcess(ctx context.Context, rawID string) OperationResult {
	return s.byID(ctx, rawID, "stop", s.eng.Stop)
}

func (s *Service) RestartProcess(ctx context.Context, rawID string) OperationResult {
	return s.byID(ctx, rawID, "restart", s.eng.Restart)
}

func (s *Service) byID(ctx context.Context, rawID, verb string, fn func(context.Context, int64) error) OperationResult {
	id, err := ParseID(rawID)
	if err != nil {
		return fail(fmt.Sprintf("failed to %s process %s", verb, strings.TrimSpace(rawID)), err)
	}
	if err := fn(ctx, id); err != nil {
		return fail(fmt.Sprintf("failed to %s process %d", verb, id), err)
	}
	return ok(fmt.Sprintf("process %d %s", id, pastTense(verb)))
}

func (s *Service) StartAllProcesses(ctx context.Context) OperationResult {
	return s.all(ctx, "start", s.eng.StartAll)
}

func (s *Service) StopAllProcesses(ctx context.Context) OperationResult {
	return s.all(ctx, "stop", s.eng.StopAll)
}

func (s *Service) RestartAllProcesses(ctx context.Context) OperationResult {
	return s.all(ctx, "restart", s.eng.RestartAll)
}

func (s *Service) all(ctx context.Context, verb string, fn func(context.Context) error) OperationResult {
	if err := fn(ctx); err != nil {
		return fail(fmt.Sprintf("failed to %s all processes", verb), err)
	}
	return ok("all processes " + pastTense(verb))
}

func (s *Service) AddProcess(ctx context.Context, in ProcessConfig) OperationResult {
	cfg := registry.Normalize(registry.Config{
		Name:      in.Name,
		Script:    in.Script,
		Cwd:       in.Cwd,
		Args:      in.Args,
		Instances: in.Instances,
		AutoStart: in.AutoStart,
	})
	c, err := s.eng.Add(ctx, cfg)
	if err != nil {
		r := fail(fmt.Sprintf("failed to add process %q", cfg.Name), err)
		r.ID = c.ID
		return r
	}
	r := ok(fmt.Sprintf("process %q added with id %d", c.Name, c.ID))
	r.ID = c.ID
	return r
}

// UpdateProcess applies patch. restart, when set, overrides the configured
// update restart policy.
func (s *Service) UpdateProcess(ctx context.Context, rawID string, patch ProcessPatch, restart *bool) OperationResult {
	id, err := ParseID(rawID)
	if err != nil {
		return fail("failed to update process "+strings.TrimSpace(rawID), err)
	}
	c, err := s.eng.Update(ctx, id, patch, restart)
	if err != nil {
		return fail(fmt.Sprintf("failed to update process %d", id), err)
	}
	r := ok(fmt.Sprintf("process %d updated", c.ID))
	r.ID = c.ID
	return r
}

func (s *Service) DeleteProcess(ctx context.Context, rawID string) OperationResult {
	id, err := ParseID(rawID)
	if err != nil {
		return fail("failed to delete process "+strings.TrimSpace(rawID), err)
	}
	warn, err := s.eng.Delete(ctx, id)
	if err != nil {
		return fail(fmt.Sprintf("failed to delete process %d", id), err)
	}
	r := ok(fmt.Sprintf("process %d deleted", id))
	if warn != nil {
		r.Message += " (warning: " + warn.Error() + ")"
	}
	return r
}

// Subscribe streams engine events until cancel is called.
func (s *Service) Subscribe(buf int) (<-chan history.Event, func()) {
	return s.eng.Subscribe(buf)
}

func ok(msg string) OperationResult {
	return OperationResult{Success: true, Message: msg}
}

// fail carries the error text in Message as well, so clients that only read
// {success, message} still learn what went wrong.
func fail(msg string, err error) OperationResult {
	return OperationResult{Message: msg + ": " + err.Error(), Error: err.Error(), Code: errs.CodeOf(err)}
}

func pastTense(verb string) string {
	switch verb {
	case "stop":
		return "stopped"
	case "start":
		return "started"
	}
	return verb + "ed"
}

// FormatRuntime renders d as 45s, 12m, 3h4m or 2d5h.
func FormatRuntime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d/time.Hour), int(d/time.Minute)%60)
	}
	h := int(d / time.Hour)
	return fmt.Sprintf("%dd%dh", h/24, h%24)
}
