//go:build windows

package process

import "os/exec"

const shellPath = "cmd"

func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command(shellPath, "/c", script)
}
