package build

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type listedModule struct {
	Path    string
	Version string
	Dir     string
	GoMod   string
	Replace *listedModule
}

type listedPackage struct {
	ImportPath string
	Dir        string
	Standard   bool
	Module     *listedModule
	Error      *struct{ Err string }

	GoFiles    []string
	CgoFiles   []string
	CFiles     []string
	CXXFiles   []string
	HFiles     []string
	SFiles     []string
	SysoFiles  []string
	EmbedFiles []string
}

func (p *listedPackage) files() []string {
	var files []string
	for _, group := range [][]string{p.GoFiles, p.CgoFiles, p.CFiles, p.CXXFiles, p.HFiles, p.SFiles, p.SysoFiles, p.EmbedFiles} {
		for _, f := range group {
			files = append(files, filepath.Join(p.Dir, f))
		}
	}
	return files
}

// Sources is what a build of one package reads: the files of every package
// compiled from a writable location, and the identity of every dependency
// fetched into the module cache.
type Sources struct {
	Toolchain string
	Files     []string
	Modules   []string
}

// ListSources asks the go command for the complete dependency graph of pkg.
// Standard library packages are left out; they change only with the
// toolchain version.
func (b *Builder) ListSources(ctx context.Context, pkg string) (Sources, error) {
	args := []string{"list", "-deps", "-json", pkg}
	cmd := exec.CommandContext(ctx, b.goBin(), args...)
	cmd.Dir = b.WorkDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return Sources{}, &Error{Command: commandLine(b.goBin(), args), Output: stderr.String(), Err: err}
	}

	env := exec.CommandContext(ctx, b.goBin(), "env", "GOVERSION", "GOMOD")
	env.Dir = b.WorkDir
	envOut, err := env.Output()
	if err != nil {
		return Sources{}, fmt.Errorf("failed to read go env: %w", err)
	}
	values := strings.Split(strings.TrimSpace(string(envOut)), "\n")
	for len(values) < 2 {
		values = append(values, "")
	}

	var (
		src     = Sources{Toolchain: strings.TrimSpace(values[0])}
		seenMod = make(map[string]struct{})
	)
	addGoMod := func(goMod string) {
		if goMod == "" || goMod == os.DevNull {
			return
		}
		if _, ok := seenMod[goMod]; ok {
			return
		}
		seenMod[goMod] = struct{}{}
		src.Files = append(src.Files, goMod)
		sum := filepath.Join(filepath.Dir(goMod), "go.sum")
		if _, err := os.Stat(sum); err == nil {
			src.Files = append(src.Files, sum)
		}
	}
	// Package arguments naming files may not report their module.
	addGoMod(strings.TrimSpace(values[1]))

	dec := json.NewDecoder(bytes.NewReader(out))
	for {
		var p listedPackage
		if err := dec.Decode(&p); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Sources{}, fmt.Errorf("failed to decode go list output: %w", err)
		}
		if p.Error != nil {
			return Sources{}, fmt.Errorf("go list %s: %s", p.ImportPath, p.Error.Err)
		}
		if p.Standard {
			continue
		}

		mod := p.Module
		if mod != nil && mod.Replace != nil {
			mod = mod.Replace
		}
		if mod != nil && mod.Version != "" {
			// Versioned modules in the module cache are immutable.
			id := mod.Path + "@" + mod.Version
			if _, ok := seenMod[id]; !ok {
				seenMod[id] = struct{}{}
				src.Modules = append(src.Modules, id)
			}
			continue
		}

		src.Files = append(src.Files, p.files()...)
		if mod != nil {
			addGoMod(mod.GoMod)
		}
	}
	return src, nil
}
