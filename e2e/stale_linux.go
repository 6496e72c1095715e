//go:build linux

package e2e

import (
	"os"
	"strconv"
	"strings"
)

// runsExecutable reports whether pid is running the executable at exe.
func runsExecutable(pid int, exe string) bool {
	target, err := os.Readlink("/proc/" + strconv.Itoa(pid) + "/exe")
	if err != nil {
		return false
	}
	return strings.TrimSuffix(target, " (deleted)") == exe
}
