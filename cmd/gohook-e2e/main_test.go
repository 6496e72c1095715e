package main

import (
	"context"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStringList(t *testing.T) {
	var list stringList
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&list, "plugin", "")

	require.NoError(t, fs.Parse([]string{"-plugin", "./a", "-plugin", "./b"}))
	require.Equal(t, stringList{"./a", "./b"}, list)
	require.Equal(t, "./a,./b", list.String())
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)
	require.False(t, opts.reap, "reaping must be opted into")
	require.False(t, opts.headless)
	require.Zero(t, opts.timeout)
	require.Empty(t, opts.plugins)

	opts, err = parseFlags([]string{"-reap", "-headless", "-timeout", "3s", "-plugin", "./p"})
	require.NoError(t, err)
	require.True(t, opts.reap)
	require.True(t, opts.headless)
	require.Equal(t, 3*time.Second, opts.timeout)
	require.Equal(t, stringList{"./p"}, opts.plugins)
}

func TestRunRejectsBadFlags(t *testing.T) {
	err := run(context.Background(), []string{"-no-such-flag"})
	require.Error(t, err)

	err = run(context.Background(), []string{"-timeout", "soon"})
	require.Error(t, err)
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Setenv("GOHOOK_E2E_STARTUP_TIMEOUT", "never")
	require.ErrorContains(t, run(context.Background(), nil), "GOHOOK_E2E_STARTUP_TIMEOUT")
}
