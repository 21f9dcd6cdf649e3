package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var (
	// ErrStillAlive is returned by Stop when the process survived SIGKILL.
	ErrStillAlive = errors.New("process did not exit after kill")
	// ErrExitedEarly is returned when a process dies inside its start window.
	ErrExitedEarly = errors.New("process exited during start window")
)

// Stdio carries the writers a child's output is copied to. Both are closed
// once the child has been reaped; either may be nil.
type Stdio struct {
	Stdout io.WriteCloser
	Stderr io.WriteCloser
}

func (s Stdio) close() {
	if s.Stdout != nil {
		_ = s.Stdout.Close()
	}
	if s.Stderr != nil {
		_ = s.Stderr.Close()
	}
}

// Process is one spawned OS process. A single goroutine owns cmd.Wait; every
// other observer uses Done, so there is never more than one waiter.
type Process struct {
	spec    Spec
	cmd     *exec.Cmd
	stdio   Stdio
	pid     int
	started time.Time
	ident   int64 // kernel start time, guards against pid reuse
	done    chan struct{}

	mu       sync.Mutex
	exitErr  error
	exitCode int
}

// Start launches spec with the given environment.
func Start(spec Spec, env []string, stdio Stdio) (*Process, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(env) > 0 {
		cmd.Env = env
	}
	configureSysProcAttr(cmd)
	if stdio.Stdout != nil {
		cmd.Stdout = stdio.Stdout
	}
	if stdio.Stderr != nil {
		cmd.Stderr = stdio.Stderr
	}
	// grandchildren holding our pipes must not block Wait forever
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		stdio.close()
		return nil, err
	}
	p := &Process{
		spec:     spec,
		cmd:      cmd,
		stdio:    stdio,
		pid:      cmd.Process.Pid,
		started:  time.Now(),
		done:     make(chan struct{}),
		exitCode: -1,
	}
	p.ident, _ = startTime(p.pid)
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	code := -1
	if ps := p.cmd.ProcessState; ps != nil {
		code = ps.ExitCode()
	}
	p.mu.Lock()
	p.exitErr = err
	p.exitCode = code
	p.mu.Unlock()
	p.stdio.close()
	close(p.done)
}

func (p *Process) PID() int             { return p.pid }
func (p *Process) StartedAt() time.Time { return p.started }
func (p *Process) Spec() Spec           { return p.spec }

// Command is the resolved argv joined with spaces.
func (p *Process) Command() string { return strings.Join(p.cmd.Args, " ") }

// Done is closed after the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Exit returns the exit code and wait error. The code is -1 while running
// and when the process was ended by a signal.
func (p *Process) Exit() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exitErr
}

// Alive verifies the pid still belongs to this process and is not a zombie.
func (p *Process) Alive() bool {
	if p.Exited() || !pidAlive(p.pid) {
		return false
	}
	if p.ident != 0 {
		if cur, err := startTime(p.pid); err == nil && cur != p.ident {
			return false
		}
	}
	return true
}

// Stop sends SIGTERM to the process group, waits up to grace, then SIGKILLs
// and waits up to killWait. Cancelling ctx cuts the grace period short.
func (p *Process) Stop(ctx context.Context, grace, killWait time.Duration) error {
	if p.Exited() {
		return nil
	}
	_ = terminate(p.pid)
	if p.waitFor(ctx, grace) {
		return nil
	}
	_ = kill(p.pid)
	if p.waitFor(context.Background(), killWait) {
		return nil
	}
	return fmt.Errorf("pid %d: %w", p.pid, ErrStillAlive)
}

func (p *Process) waitFor(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return p.Exited()
	}
}

// EnforceStartWindow waits d and fails if any of procs exits in that time.
func EnforceStartWindow(ctx context.Context, d time.Duration, procs ...*Process) error {
	if d <= 0 {
		return nil
	}
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		for _, p := range procs {
			if p.Exited() {
				return fmt.Errorf("pid %d within %s: %w", p.pid, d, ErrExitedEarly)
			}
		}
		select {
		case <-deadline.C:
			return nil
		case <-tick.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ShellAvailable resolves the platform shell used for command lines that
// need one.
func ShellAvailable() (string, error) { return exec.LookPath(shellPath) }
