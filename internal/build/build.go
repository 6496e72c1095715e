// Package build compiles the GoHook executable and its plugins for a test run.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/fatih/color"

	"github.com/mycoool/webhook-ui/internal/buildcache"
	"github.com/mycoool/webhook-ui/internal/config"
)

var banner = color.New(color.FgCyan)

// Error is a failed go build. Output holds the combined compiler output.
type Error struct {
	Command string
	Output  string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v\n%s", e.Command, e.Err, e.Output)
}

func (e *Error) Unwrap() error { return e.Err }

type Builder struct {
	GoBin string
	// WorkDir is where go build runs. Package paths are relative to it.
	WorkDir    string
	Mode       string
	AppPackage string
	// Prebuilt, when set, is copied instead of building AppPackage.
	Prebuilt string
	BuildDir string
	Out      io.Writer
	Cache    *buildcache.Cache
	Logger   *slog.Logger
}

func New(cfg *config.Config, out io.Writer, cache *buildcache.Cache) *Builder {
	return &Builder{
		GoBin:      "go",
		WorkDir:    cfg.WorkDir,
		Mode:       cfg.Mode,
		AppPackage: cfg.AppPackage,
		Prebuilt:   cfg.PrebuiltExecutable,
		BuildDir:   cfg.BuildDir,
		Out:        out,
		Cache:      cache,
		Logger:     slog.Default(),
	}
}

// Executable produces the GoHook executable at dst.
func (b *Builder) Executable(ctx context.Context, dst string) error {
	if b.Prebuilt != "" {
		b.printf("### Copying %s to %s\n", b.Prebuilt, dst)
		if err := os.MkdirAll(b.BuildDir, 0o755); err != nil {
			return fmt.Errorf("failed to create build directory: %w", err)
		}
		if _, err := buildcache.CopyFile(b.Prebuilt, dst); err != nil {
			return fmt.Errorf("failed to copy prebuilt executable: %w", err)
		}
		return nil
	}

	b.printf("### Building GoHook %s\n", dst)
	abs, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	return b.compile(ctx, buildcache.KindExecutable, b.AppPackage, abs, ExecutableArgs(b.Mode, abs, b.AppPackage))
}

// Plugin compiles the plugin package pkg into the shared object dst.
func (b *Builder) Plugin(ctx context.Context, dst, pkg string) error {
	b.printf("### Building Plugin %s\n", pkg)
	abs, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	return b.compile(ctx, buildcache.KindPlugin, pkg, abs, PluginArgs(abs, pkg))
}

// ExecutableArgs are the go arguments building the server with its mode baked in.
func ExecutableArgs(mode, dst, app string) []string {
	return []string{"build", "-ldflags=-X main.Mode=" + mode, "-o", dst, app}
}

// PluginArgs are the go arguments building pkg as a plugin.
func PluginArgs(dst, pkg string) []string {
	return []string{"build", "-o", dst, "-buildmode=plugin", pkg}
}

func (b *Builder) compile(ctx context.Context, kind buildcache.Kind, pkg, dst string, args []string) error {
	digest := b.digest(ctx, kind, pkg, args)
	if digest != "" {
		entry, err := b.Cache.Lookup(digest)
		switch {
		case err == nil:
			b.logger().Info("using cached build", "kind", kind, "package", pkg, "digest", digest[:12])
			if _, err := buildcache.CopyFile(entry.Artifact, dst); err != nil {
				return fmt.Errorf("failed to copy cached artifact: %w", err)
			}
			return nil
		case !errors.Is(err, buildcache.ErrNotFound):
			b.logger().Warn("build cache lookup failed", "package", pkg, "error", err)
		}
	}

	cmd := exec.CommandContext(ctx, b.goBin(), args...)
	cmd.Dir = b.WorkDir
	command := commandLine(b.goBin(), args)
	b.logger().Debug("running go build", "command", command, "dir", b.WorkDir)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return &Error{Command: command, Output: string(output), Err: err}
	}
	if err := Verify(dst); err != nil {
		return err
	}

	if digest != "" {
		if _, err := b.Cache.Store(digest, kind, pkg, dst); err != nil {
			b.logger().Warn("failed to cache build", "package", pkg, "error", err)
		}
	}
	return nil
}

// digest returns "" when the build is not cacheable, e.g. the go command
// cannot resolve the dependencies of pkg.
func (b *Builder) digest(ctx context.Context, kind buildcache.Kind, pkg string, args []string) string {
	if b.Cache == nil {
		return ""
	}

	src, err := b.ListSources(ctx, pkg)
	if err != nil {
		b.logger().Warn("failed to list build sources", "package", pkg, "error", err)
		return ""
	}

	// The output path is random per run and must not affect the digest.
	params := []string{string(kind), pkg, runtime.GOOS + "/" + runtime.GOARCH, src.Toolchain}
	for i, a := range args {
		if i > 0 && args[i-1] == "-o" {
			continue
		}
		params = append(params, a)
	}
	params = append(params, goEnv()...)
	params = append(params, src.Modules...)

	digest, err := buildcache.Digest(params, src.Files)
	if err != nil {
		b.logger().Warn("failed to hash sources", "package", pkg, "error", err)
		return ""
	}
	return digest
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

func (b *Builder) goBin() string {
	if b.GoBin == "" {
		return "go"
	}
	return b.GoBin
}

func (b *Builder) printf(format string, args ...any) {
	if b.Out == nil {
		return
	}
	_, _ = banner.Fprintf(b.Out, format, args...)
}

// goEnv lists the environment that changes what go build produces.
func goEnv() []string {
	var env []string
	for _, key := range []string{"GOFLAGS", "CGO_ENABLED", "GOOS", "GOARCH", "GOEXPERIMENT", "GOTOOLCHAIN"} {
		env = append(env, key+"="+os.Getenv(key))
	}
	return env
}

func commandLine(bin string, args []string) string {
	quoted := []string{shellescape.Quote(bin)}
	for _, a := range args {
		quoted = append(quoted, shellescape.Quote(a))
	}
	return strings.Join(quoted, " ")
}
