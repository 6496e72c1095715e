// Package pidfile records the process ID of a running test server, and of
// the harness that owns it, so that instances left behind by an aborted run
// can be found again.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrRunning = errors.New("process from pid file is still running")

// Record is the content of a pid file. PID is 0 while the server has not
// been started yet. Owner is the process that started it.
type Record struct {
	PID   int
	Owner int
}

// Alive reports whether the server or its owner is still running.
func (r Record) Alive() bool {
	return ProcessExists(r.PID) || ProcessExists(r.Owner)
}

func (r Record) String() string {
	return fmt.Sprintf("%d %d\n", r.PID, r.Owner)
}

// PIDFile is a file holding the process ID of a running process.
type PIDFile struct {
	path   string
	record Record
}

// New reserves path for a server started by owner. It fails with ErrRunning
// when path already names a live server or owner.
func New(path string, owner int) (*PIDFile, error) {
	if existing, err := Read(path); err == nil && existing.Alive() {
		return nil, fmt.Errorf("%w: %s in %s", ErrRunning, strings.TrimSpace(existing.String()), path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	file := &PIDFile{path: path, record: Record{Owner: owner}}
	if err := file.write(); err != nil {
		return nil, err
	}
	return file, nil
}

// Read returns the record stored in path. A file holding a single number is
// a server without a known owner.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 || len(fields) > 2 {
		return Record{}, fmt.Errorf("malformed pid file %s", path)
	}

	var record Record
	if record.PID, err = strconv.Atoi(fields[0]); err != nil {
		return Record{}, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	if len(fields) == 2 {
		if record.Owner, err = strconv.Atoi(fields[1]); err != nil {
			return Record{}, fmt.Errorf("malformed pid file %s: %w", path, err)
		}
	}
	return record, nil
}

func (file *PIDFile) Path() string { return file.path }

func (file *PIDFile) PID() int { return file.record.PID }

func (file *PIDFile) Owner() int { return file.record.Owner }

// SetPID records the server's process ID.
func (file *PIDFile) SetPID(pid int) error {
	file.record.PID = pid
	return file.write()
}

// write replaces the file atomically so readers never see a partial record.
func (file *PIDFile) write() error {
	tmp, err := os.CreateTemp(filepath.Dir(file.path), "."+filepath.Base(file.path)+".tmp*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(file.record.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, file.path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Remove deletes the pid file. A missing file is not an error.
func (file *PIDFile) Remove() error {
	if err := os.Remove(file.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
