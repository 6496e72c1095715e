package e2e

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mycoool/webhook-ui/internal/buildcache"
	"github.com/mycoool/webhook-ui/internal/pidfile"
)

// TestHelperSleep stands in for a GoHook server that outlived its test run.
func TestHelperSleep(t *testing.T) {
	if os.Getenv(helperEnv) != "sleep" {
		return
	}
	time.Sleep(30 * time.Second)
	os.Exit(0)
}

// deadPID returns the process ID of a process that has already exited.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	cmd.Env = []string{helperEnv + "=exit"}
	require.NoError(t, cmd.Run())
	return cmd.ProcessState.Pid()
}

func writeRecord(t *testing.T, path string, record pidfile.Record) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(record.String()), 0o644))
}

// startLeftover runs a copy of the test binary from the build directory the
// way a server of an earlier run would.
func startLeftover(t *testing.T, buildDir string) (string, *exec.Cmd, <-chan error) {
	t.Helper()
	exe, err := filepath.Abs(filepath.Join(buildDir, "gohooktest_stale"))
	require.NoError(t, err)
	_, err = buildcache.CopyFile(os.Args[0], exe)
	require.NoError(t, err)

	cmd := exec.Command(exe, "-test.run=^TestHelperSleep$")
	cmd.Env = []string{helperEnv + "=sleep"}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return exe, cmd, done
}

func TestReapStaleKillsLeftoverServer(t *testing.T) {
	cfg := testConfig(t, "")
	h := quietHarness(t, cfg)

	exe, cmd, done := startLeftover(t, cfg.BuildDir)
	writeRecord(t, exe+".pid", pidfile.Record{PID: cmd.Process.Pid, Owner: deadPID(t)})

	require.NoError(t, h.ReapStale())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("stale server was not killed")
	}

	for _, p := range []string{exe, exe + ".pid"} {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err), "%s should be removed", p)
	}
}

func TestReapStaleSparesUnrelatedProcess(t *testing.T) {
	cfg := testConfig(t, "")
	h := quietHarness(t, cfg)
	require.NoError(t, os.MkdirAll(cfg.BuildDir, 0o755))

	// The pid file points at this test process, which runs another binary.
	exe := filepath.Join(cfg.BuildDir, "gohooktest_reused")
	require.NoError(t, os.WriteFile(exe, []byte("exe"), 0o755))
	writeRecord(t, exe+".pid", pidfile.Record{PID: os.Getpid(), Owner: deadPID(t)})

	require.NoError(t, h.ReapStale())
	require.True(t, pidfile.ProcessExists(os.Getpid()))

	_, err := os.Stat(exe)
	require.True(t, os.IsNotExist(err))
}

func TestReapStaleSparesServerOfLiveHarness(t *testing.T) {
	cfg := testConfig(t, "")
	owner := quietHarness(t, cfg)
	exe, cmd, done := startLeftover(t, cfg.BuildDir)
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-done
	})
	writeRecord(t, exe+".pid", pidfile.Record{PID: cmd.Process.Pid, Owner: os.Getpid()})

	// A second harness on the same build directory, as a parallel run would have.
	sibling := quietHarness(t, cfg)
	require.Zero(t, owner.instances.len())
	require.NoError(t, sibling.ReapStale())

	select {
	case err := <-done:
		t.Fatalf("server of a live harness was killed: %v", err)
	case <-time.After(500 * time.Millisecond):
	}
	for _, p := range []string{exe, exe + ".pid"} {
		_, err := os.Stat(p)
		require.NoError(t, err, "%s should be kept", p)
	}
}
