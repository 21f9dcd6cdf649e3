package process

import (
	"os/exec"
	"strings"
)

// Spec describes one OS process to launch.
type Spec struct {
	Name    string
	Script  string // executable or shell snippet
	Args    string // raw argument string appended to Script
	WorkDir string // empty means the supervisor's working directory
	Env     []string
}

// CommandLine is the full command string as the operator wrote it.
func (s Spec) CommandLine() string {
	script := strings.TrimSpace(s.Script)
	args := strings.TrimSpace(s.Args)
	if args == "" {
		return script
	}
	return script + " " + args
}

// BuildCommand resolves the command line into an *exec.Cmd.
// A shell is used only when the line needs one: an explicit "sh -c"
// prefix is honored without double wrapping, and shell metacharacters
// route the whole line through the platform shell. Otherwise the line
// is split on whitespace and executed directly.
func (s Spec) BuildCommand() *exec.Cmd {
	line := s.CommandLine()
	if script, ok := explicitShell(line); ok {
		return shellCommand(script)
	}
	if strings.ContainsAny(line, "|&;<>*?`$\"'(){}[]~") {
		return shellCommand(line)
	}
	parts := strings.Fields(line)
	if len(parts) == 0 {
		// Start reports "no command" for this.
		return &exec.Cmd{}
	}
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// explicitShell detects "sh -c <script>" style prefixes and returns the
// script with one pair of surrounding quotes removed.
func explicitShell(line string) (string, bool) {
	trim := strings.TrimLeft(line, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
