//go:build !windows

package process

import "os/exec"

const shellPath = "/bin/sh"

func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command(shellPath, "-c", script)
}
