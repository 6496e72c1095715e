package e2e

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mycoool/webhook-ui/internal/pidfile"
	"github.com/mycoool/webhook-ui/internal/process"
	"github.com/mycoool/webhook-ui/internal/scratch"
)

const pidSuffix = ".pid"

// ReapStale cleans the build directory of servers left behind by runs that
// never reached their teardown. Live leftovers are killed, then their
// executables and pid files are removed. Entries whose owning harness
// process is still running are not touched.
func (h *Harness) ReapStale() error {
	entries, err := os.ReadDir(h.cfg.BuildDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !scratch.IsExecutable(name) {
			continue
		}

		path, err := filepath.Abs(filepath.Join(h.cfg.BuildDir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}

		exe := strings.TrimSuffix(path, pidSuffix)
		if h.instances.tracks(exe) {
			continue
		}

		if strings.HasSuffix(name, pidSuffix) {
			errs = append(errs, h.reapPIDFile(path, exe))
			continue
		}

		// NewTest reserves the pid file before it creates the executable, so
		// an executable without one is not in use.
		if _, err := os.Stat(path + pidSuffix); os.IsNotExist(err) {
			h.logger.Info("removing stale executable", "path", path)
			errs = append(errs, removeFile(path, removeAttempts))
		}
	}
	return errors.Join(errs...)
}

func (h *Harness) reapPIDFile(path, exe string) error {
	record, err := pidfile.Read(path)
	if err == nil {
		if pidfile.ProcessExists(record.Owner) {
			// Another harness, possibly in another process, still owns it.
			h.logger.Debug("skipping pid file of a live harness", "owner", record.Owner, "path", path)
			return nil
		}
		if pidfile.ProcessExists(record.PID) {
			if !runsExecutable(record.PID, exe) {
				h.logger.Warn("pid from stale pid file belongs to another program, not killing", "pid", record.PID, "path", path)
			} else {
				h.logger.Info("killing stale gohook", "pid", record.PID, "path", exe)
				if err := process.KillTree(record.PID); err != nil {
					return fmt.Errorf("failed to kill stale gohook %d: %w", record.PID, err)
				}
			}
		}
	}

	return errors.Join(
		removeFile(exe, removeAttempts),
		removeFile(path, removeAttempts),
	)
}
