//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// detachStdio starts the child in its own session so it is detached from
// the supervisor's controlling terminal (spec.md §4.6).
func detachStdio(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
