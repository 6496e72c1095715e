//go:build !linux

package e2e

// runsExecutable cannot map a pid to its executable here, so stale servers
// are never killed, only their files removed.
func runsExecutable(pid int, exe string) bool {
	return false
}
