// Package e2etest ties harness instances to the lifetime of a test.
package e2etest

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mycoool/webhook-ui/e2e"
)

// Start runs an instance of the default harness for the duration of t.
func Start(t testing.TB, pluginsDir string) *e2e.GoHookTest {
	t.Helper()
	return StartWith(t, defaultHarness(t), pluginsDir)
}

// StartWith runs an instance of h for the duration of t.
func StartWith(t testing.TB, h *e2e.Harness, pluginsDir string) *e2e.GoHookTest {
	t.Helper()
	gt, err := h.NewTest(t.Context(), pluginsDir)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, gt.Close())
	})
	return gt
}

// PluginDir builds plugins with the default harness into a directory that
// is removed after t.
func PluginDir(t testing.TB, plugins ...string) string {
	t.Helper()
	return PluginDirWith(t, defaultHarness(t), plugins...)
}

// PluginDirWith builds plugins with h into a directory that is removed after t.
func PluginDirWith(t testing.TB, h *e2e.Harness, plugins ...string) string {
	t.Helper()
	dir, err := h.NewPluginDir(t.Context(), plugins...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, os.RemoveAll(dir))
	})
	return dir
}

func defaultHarness(t testing.TB) *e2e.Harness {
	t.Helper()
	h, err := e2e.Default()
	require.NoError(t, err)
	return h
}
