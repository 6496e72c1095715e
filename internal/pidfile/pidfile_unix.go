//go:build !windows

package pidfile

import (
	"errors"
	"syscall"
)

// ProcessExists reports whether a process with the given pid is alive.
func ProcessExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
