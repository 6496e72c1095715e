package process

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mycoool/webhook-ui/internal/freeport"
	"github.com/mycoool/webhook-ui/internal/waiter"
)

const helperEnv = "GOHOOK_PROCESS_HELPER"

// TestHelperProcess stands in for the GoHook executable when the test binary
// is re-executed by the tests below.
func TestHelperProcess(t *testing.T) {
	switch os.Getenv(helperEnv) {
	case "":
		return
	case "serve":
		addr := "localhost:" + os.Getenv(EnvServerPort)
		fmt.Printf("listening on %s\n", addr)
		http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("gohook"))
		})
		_ = http.ListenAndServe(addr, nil)
		os.Exit(2)
	case "env":
		for _, kv := range os.Environ() {
			fmt.Println(kv)
		}
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "database unavailable")
		os.Exit(3)
	}
}

func startHelper(t *testing.T, mode string, env Env, stdout *bytes.Buffer) *Instance {
	t.Helper()
	inst, err := Start(Options{
		Path:   os.Args[0],
		Args:   []string{"-test.run=^TestHelperProcess$"},
		Env:    append(env.Environ(), helperEnv+"="+mode),
		Stdout: stdout,
	})
	require.NoError(t, err)
	return inst
}

func waitExited(t *testing.T, inst *Instance) {
	t.Helper()
	select {
	case <-inst.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestStartWaitKill(t *testing.T) {
	port, err := freeport.Get()
	require.NoError(t, err)

	var stdout bytes.Buffer
	inst := startHelper(t, "serve", Env{Port: port}, &stdout)
	require.NotZero(t, inst.PID())
	require.Equal(t, -1, inst.ExitCode())

	err = waiter.HTTP(context.Background(), fmt.Sprintf("http://localhost:%d", port), waiter.Options{
		Timeout:  10 * time.Second,
		Interval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, inst.Kill())
	waitExited(t, inst)
	require.NotEqual(t, 0, inst.ExitCode())
	require.Contains(t, inst.Output(), "listening on")

	// Killing a dead process is not an error.
	require.NoError(t, inst.Kill())
}

func TestEnvironmentIsIsolated(t *testing.T) {
	t.Setenv("GOHOOK_LEAK_CHECK", "leaked")

	inst := startHelper(t, "env", Env{
		Port:               8080,
		DatabaseConnection: "file::memory:",
		PluginsDir:         "/tmp/plugins",
		Extra:              map[string]string{"NODE_ENV": "production"},
	}, nil)
	waitExited(t, inst)
	require.Equal(t, 0, inst.ExitCode())

	out := inst.Output()
	require.Contains(t, out, "GOHOOK_SERVER_PORT=8080")
	require.Contains(t, out, "GOHOOK_DATABASE_CONNECTION=file::memory:")
	require.Contains(t, out, "GOHOOK_PLUGINSDIR=/tmp/plugins")
	require.Contains(t, out, "NODE_ENV=production")
	require.NotContains(t, out, "GOHOOK_LEAK_CHECK")
}

func TestExitCodeAndOutput(t *testing.T) {
	inst := startHelper(t, "fail", Env{}, nil)
	waitExited(t, inst)
	require.Equal(t, 3, inst.ExitCode())
	require.Contains(t, inst.Output(), "database unavailable")
}

func TestStartErrors(t *testing.T) {
	_, err := Start(Options{})
	require.Error(t, err)

	_, err = Start(Options{Path: "/does/not/exist/gohook"})
	require.Error(t, err)
}

func TestKillWithoutPID(t *testing.T) {
	var inst *Instance
	require.NoError(t, inst.Kill())
	require.NoError(t, (&Instance{}).Kill())
}

func TestEnviron(t *testing.T) {
	env := Env{
		Port:               1234,
		DatabaseConnection: "dsn",
		PluginsDir:         "",
		Extra:              map[string]string{"PUBLIC_URL": "/ui", "NODE_ENV": "test"},
	}.Environ()

	joined := strings.Join(env, "\n")
	require.True(t, strings.HasPrefix(joined, "GOHOOK_SERVER_PORT=1234\nGOHOOK_DATABASE_CONNECTION=dsn\nGOHOOK_PLUGINSDIR=\nNODE_ENV=test\nPUBLIC_URL=/ui"))
}
