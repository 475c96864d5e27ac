//go:build windows

package supervisor

import "os/exec"

// detachStdio is a no-op on windows; unix.Kill-based termination in
// supervisor.go is unix-only and this package is not built there today,
// but the stub keeps the package importable if that changes.
func detachStdio(cmd *exec.Cmd) {}
