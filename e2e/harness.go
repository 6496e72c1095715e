// Package e2e builds GoHook and its plugins, runs the server on an ephemeral
// port and attaches a headless browser to its web UI.
//
// A typical suite looks like this:
//
//	func TestMain(m *testing.M) {
//		code := m.Run()
//		_ = e2e.Shutdown()
//		os.Exit(code)
//	}
//
//	func TestLogin(t *testing.T) {
//		gt := e2etest.Start(t, e2etest.PluginDir(t, "./plugins/echo"))
//		_, err := gt.Page.Goto(gt.URL + "/login")
//		require.NoError(t, err)
//	}
package e2e

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/c-pro/geche"
	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/errgroup"

	"github.com/mycoool/webhook-ui/internal/browser"
	"github.com/mycoool/webhook-ui/internal/build"
	"github.com/mycoool/webhook-ui/internal/buildcache"
	"github.com/mycoool/webhook-ui/internal/config"
	"github.com/mycoool/webhook-ui/internal/freeport"
	"github.com/mycoool/webhook-ui/internal/pidfile"
	"github.com/mycoool/webhook-ui/internal/process"
	"github.com/mycoool/webhook-ui/internal/scratch"
	"github.com/mycoool/webhook-ui/internal/waiter"
)

const (
	removeAttempts = 8
	outputTailSize = 40
)

var ErrExited = errors.New("gohook exited before it became reachable")

// GoHookTest is one running GoHook instance with a browser page attached.
type GoHookTest struct {
	URL     string
	Port    int
	Browser playwright.Browser
	Page    playwright.Page

	exe       string
	harness   *Harness
	proc      *process.Instance
	pid       *pidfile.PIDFile
	session   *browser.Session
	closeOnce sync.Once
	closeErr  error
}

// PID returns the server's process ID, or 0 when it was never started.
func (t *GoHookTest) PID() int {
	return t.proc.PID()
}

// Exited is closed once the server process has exited. It is nil when the
// server was never started.
func (t *GoHookTest) Exited() <-chan struct{} {
	if t.proc == nil {
		return nil
	}
	return t.proc.Exited()
}

// ExitCode is -1 while the server is running.
func (t *GoHookTest) ExitCode() int {
	if t.proc == nil {
		return -1
	}
	return t.proc.ExitCode()
}

// Executable is the path the server binary was written to.
func (t *GoHookTest) Executable() string {
	return t.exe
}

// Output returns what the server has written to stdout and stderr so far.
func (t *GoHookTest) Output() string {
	if t.proc == nil {
		return ""
	}
	return t.proc.Output()
}

// Close shuts the browser and kills the server concurrently, then removes
// the executable. It is safe to call more than once.
func (t *GoHookTest) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.close()
	})
	return t.closeErr
}

func (t *GoHookTest) close() error {
	var g errgroup.Group
	g.Go(func() error {
		return t.session.Close()
	})
	g.Go(func() error {
		return t.proc.Kill()
	})
	teardownErr := g.Wait()

	errs := []error{teardownErr}
	// A server that could not be killed keeps its pid file for ReapStale.
	if teardownErr == nil && t.pid != nil {
		errs = append(errs, t.pid.Remove())
	}
	errs = append(errs, removeFile(t.exe, removeAttempts))

	if t.harness != nil {
		t.harness.instances.remove(t)
	}
	return errors.Join(errs...)
}

// Harness owns the configuration, builder and bookkeeping shared by all
// instances of a test run.
type Harness struct {
	cfg        *config.Config
	builder    *build.Builder
	cache      *buildcache.Cache
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
	instances  *registry
	pluginDirs geche.Geche[string, struct{}]
}

// New creates a harness. The build cache is optional: when it cannot be
// opened (another package holds the lock, for example) builds go uncached.
func New(cfg *config.Config) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Harness{
		cfg:        cfg,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		logger:     slog.Default(),
		instances:  newRegistry(),
		pluginDirs: geche.NewMapCache[string, struct{}](),
	}

	if cfg.BuildCacheEnabled() && cfg.PrebuiltExecutable == "" {
		cache, err := buildcache.Open(cfg.BuildCache)
		if err != nil {
			h.logger.Warn("build cache disabled", "path", cfg.BuildCache, "error", err)
		} else {
			h.cache = cache
		}
	}

	h.builder = build.New(cfg, h.stdout, h.cache)
	h.builder.Logger = h.logger
	return h, nil
}

// Config returns the harness configuration.
func (h *Harness) Config() *config.Config {
	return h.cfg
}

// NewPluginDir creates a fresh plugin directory and builds every plugin
// package into it. It returns the directory path.
func (h *Harness) NewPluginDir(ctx context.Context, plugins ...string) (string, error) {
	dir, err := scratch.PluginDir(h.cfg.BuildDir)
	if err != nil {
		return "", err
	}
	h.pluginDirs.Set(dir.Path, struct{}{})

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, plugin := range plugins {
		out := dir.Next()
		g.Go(func() error {
			return h.builder.Plugin(gCtx, out, plugin)
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("failed to build plugins into %s: %w", dir.Path, err)
	}

	return dir.Path, nil
}

// NewTest builds and starts a GoHook instance loading plugins from
// pluginsDir (may be empty), waits until it serves HTTP and opens a browser
// page on it. On failure everything started so far is torn down.
func (h *Harness) NewTest(ctx context.Context, pluginsDir string) (_ *GoHookTest, err error) {
	port, err := freeport.Get()
	if err != nil {
		return nil, err
	}

	exe, err := filepath.Abs(scratch.ExecutablePath(h.cfg.BuildDir))
	if err != nil {
		return nil, err
	}
	if pluginsDir != "" {
		if pluginsDir, err = filepath.Abs(pluginsDir); err != nil {
			return nil, err
		}
	}

	t := &GoHookTest{
		URL:     fmt.Sprintf("http://localhost:%d", port),
		Port:    port,
		exe:     exe,
		harness: h,
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, t.Close())
		}
	}()

	// Reserve the name before the executable exists, so ReapStale in a
	// sibling process leaves it alone.
	t.pid, err = pidfile.New(exe+pidSuffix, os.Getpid())
	if err != nil {
		return nil, err
	}

	if err := h.builder.Executable(ctx, exe); err != nil {
		return nil, err
	}

	t.proc, err = process.Start(process.Options{
		Path: exe,
		Env: process.Env{
			Port:               port,
			DatabaseConnection: h.cfg.DatabaseConnection,
			PluginsDir:         pluginsDir,
			Extra:              h.cfg.Passthrough,
		}.Environ(),
		Stdout: h.stdout,
		Stderr: h.stderr,
		Logger: h.logger,
	})
	if err != nil {
		return nil, err
	}
	h.instances.add(t)

	if err := t.pid.SetPID(t.proc.PID()); err != nil {
		return nil, err
	}

	if err := h.waitReady(ctx, t); err != nil {
		return nil, err
	}

	t.session, err = browser.Launch(browser.Options{
		URL:      t.URL,
		Headless: h.cfg.Headless,
		Width:    config.WindowWidth,
		Height:   config.WindowHeight,
		Install:  h.cfg.InstallBrowsers,
		Logger:   h.logger,
	})
	if err != nil {
		return nil, err
	}
	t.Browser = t.session.Browser
	t.Page = t.session.Page

	return t, nil
}

// waitReady polls the instance URL and gives up early when the server
// process exits.
func (h *Harness) waitReady(ctx context.Context, t *GoHookTest) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-t.proc.Exited():
			cancel()
		case <-ctx.Done():
		}
	}()

	started := time.Now()
	err := waiter.HTTP(ctx, t.URL, waiter.Options{
		Timeout: h.cfg.StartupTimeout,
		Logger:  h.logger,
	})
	if err != nil {
		select {
		case <-t.proc.Exited():
			return fmt.Errorf("%w with exit code %d:\n%s", ErrExited, t.proc.ExitCode(), tail(t.proc.Output(), outputTailSize))
		default:
		}
		return err
	}

	h.logger.Info("gohook is ready", "url", t.URL, "pid", t.proc.PID(), "elapsed", time.Since(started))
	return nil
}

// CloseAll closes every instance that is still running.
func (h *Harness) CloseAll() error {
	var errs []error
	for _, t := range h.instances.live() {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

// CleanupPluginDirs removes every plugin directory this harness created.
func (h *Harness) CleanupPluginDirs() error {
	var errs []error
	for dir := range h.pluginDirs.Snapshot() {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		_ = h.pluginDirs.Del(dir)
	}
	return errors.Join(errs...)
}

// Shutdown closes all instances, removes plugin directories and releases
// the build cache.
func (h *Harness) Shutdown() error {
	errs := []error{h.CloseAll(), h.CleanupPluginDirs()}
	if h.cache != nil {
		errs = append(errs, h.cache.Close())
		h.cache = nil
		h.builder.Cache = nil
	}
	return errors.Join(errs...)
}

// removeFile deletes path, retrying while the file is busy (a just killed
// executable on Windows). A missing file is not an error.
func removeFile(path string, attempts int) error {
	if path == "" {
		return nil
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}
	return fmt.Errorf("failed to remove %s: %w", path, err)
}

func tail(s string, lines int) string {
	parts := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}
