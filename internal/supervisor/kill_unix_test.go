//go:build !windows

package supervisor

import (
	"syscall"
	"time"
)

// syscallKill0 reports whether pid is gone, giving the kernel a moment to
// reap it.
func syscallKill0(pid int) error {
	var err error
	for i := 0; i < 50; i++ {
		if err = syscall.Kill(pid, 0); err != nil {
			return err
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}
