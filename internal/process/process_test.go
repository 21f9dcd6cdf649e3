//go:build !windows

package process

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type bufCloser struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (b *bufCloser) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *bufCloser) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *bufCloser) snapshot() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String(), b.closed
}

func waitDone(t *testing.T, p *Process, d time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(d):
		t.Fatalf("pid %d did not exit within %s", p.PID(), d)
	}
}

func TestStartCapturesOutputAndExit(t *testing.T) {
	out := &bufCloser{}
	p, err := Start(Spec{Script: "sh -c 'echo hello; exit 3'"}, nil, Stdio{Stdout: out})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, p, 5*time.Second)
	code, werr := p.Exit()
	if code != 3 || werr == nil {
		t.Fatalf("exit = %d, %v", code, werr)
	}
	got, closed := out.snapshot()
	if got != "hello\n" || !closed {
		t.Fatalf("stdout = %q closed=%v", got, closed)
	}
	if p.Alive() {
		t.Fatal("exited process reported alive")
	}
}

func TestStartMissingExecutable(t *testing.T) {
	out := &bufCloser{}
	if _, err := Start(Spec{Script: "/nonexistent/pmdeck-binary"}, nil, Stdio{Stdout: out}); err == nil {
		t.Fatal("expected error")
	}
	if _, closed := out.snapshot(); !closed {
		t.Fatal("writers must be closed when start fails")
	}
}

func TestStopTerminatesGroup(t *testing.T) {
	p, err := Start(Spec{Script: "sleep", Args: "30"}, nil, Stdio{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.Alive() {
		t.Fatal("expected alive after start")
	}
	if err := p.Stop(context.Background(), 2*time.Second, time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !p.Exited() || p.Alive() {
		t.Fatal("expected exited after stop")
	}
	// second stop is a no-op
	if err := p.Stop(context.Background(), time.Second, time.Second); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	p, err := Start(Spec{Script: "sh -c 'trap \"\" TERM; sleep 30'"}, nil, Stdio{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	begin := time.Now()
	if err := p.Stop(context.Background(), 200*time.Millisecond, 2*time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if time.Since(begin) < 200*time.Millisecond {
		t.Fatal("kill should only follow the grace period")
	}
}

func TestEnforceStartWindow(t *testing.T) {
	quick, err := Start(Spec{Script: "true"}, nil, Stdio{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	err = EnforceStartWindow(context.Background(), 500*time.Millisecond, quick)
	if !errors.Is(err, ErrExitedEarly) {
		t.Fatalf("expected ErrExitedEarly, got %v", err)
	}

	slow, err := Start(Spec{Script: "sleep", Args: "5"}, nil, Stdio{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = slow.Stop(context.Background(), time.Second, time.Second) }()
	if err := EnforceStartWindow(context.Background(), 100*time.Millisecond, slow); err != nil {
		t.Fatalf("window: %v", err)
	}
}

func TestWorkDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	out := &bufCloser{}
	p, err := Start(Spec{Script: "sh -c 'pwd; echo $PMDECK_TEST'", WorkDir: dir}, []string{"PMDECK_TEST=yes", "PATH=/usr/bin:/bin"}, Stdio{Stdout: out})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, p, 5*time.Second)
	got, _ := out.snapshot()
	if !bytes.Contains([]byte(got), []byte("yes")) {
		t.Fatalf("env not applied: %q", got)
	}
}

func TestShellAvailable(t *testing.T) {
	if _, err := ShellAvailable(); err != nil {
		t.Fatalf("shell: %v", err)
	}
}
