// Package process runs a GoHook executable as a child process and kills its
// whole process tree on teardown.
package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/onsi/gomega/gexec"
)

const DefaultExitTimeout = 5 * time.Second

type Options struct {
	Path string
	Args []string
	// Env is the complete environment of the child. Nothing is inherited
	// from the harness.
	Env    []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	// ExitTimeout bounds how long Kill waits for the child to exit.
	ExitTimeout time.Duration
	Logger      *slog.Logger
}

type Instance struct {
	session     *gexec.Session
	exitTimeout time.Duration
	logger      *slog.Logger
}

// Start launches the executable in its own process group. Output is
// forwarded to opts.Stdout/opts.Stderr and also retained for Output.
func Start(opts Options) (*Instance, error) {
	if opts.Path == "" {
		return nil, errors.New("executable path is required")
	}
	if opts.ExitTimeout <= 0 {
		opts.ExitTimeout = DefaultExitTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Env = append([]string{}, opts.Env...)
	cmd.Dir = opts.Dir
	setProcessGroup(cmd)

	session, err := gexec.Start(cmd, opts.Stdout, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", opts.Path, err)
	}

	opts.Logger.Info("process started", "path", opts.Path, "pid", cmd.Process.Pid)

	return &Instance{
		session:     session,
		exitTimeout: opts.ExitTimeout,
		logger:      opts.Logger,
	}, nil
}

// PID returns the child's process ID, or 0 when it never started.
func (i *Instance) PID() int {
	if i == nil || i.session == nil || i.session.Command.Process == nil {
		return 0
	}
	return i.session.Command.Process.Pid
}

// Exited is closed once the child has exited.
func (i *Instance) Exited() <-chan struct{} {
	return i.session.Exited
}

// ExitCode is -1 while the child is running.
func (i *Instance) ExitCode() int {
	return i.session.ExitCode()
}

// Output returns everything the child wrote so far, stdout first.
func (i *Instance) Output() string {
	return string(i.session.Out.Contents()) + string(i.session.Err.Contents())
}

// Kill sends SIGKILL to the child's process tree and waits for the child to
// exit. An instance without a PID is a no-op.
func (i *Instance) Kill() error {
	pid := i.PID()
	if pid == 0 {
		return nil
	}

	if err := killTree(pid); err != nil {
		select {
		case <-i.session.Exited:
			return nil
		default:
		}
		return fmt.Errorf("failed to kill process tree %d: %w", pid, err)
	}

	select {
	case <-i.session.Exited:
		i.logger.Info("process killed", "pid", pid, "exit_code", i.session.ExitCode())
		return nil
	case <-time.After(i.exitTimeout):
		return fmt.Errorf("process %d did not exit within %s", pid, i.exitTimeout)
	}
}

// KillTree sends SIGKILL to the process tree rooted at pid without waiting.
// It is meant for servers this harness no longer holds an Instance for.
func KillTree(pid int) error {
	return killTree(pid)
}
