// Package scratch allocates randomly named build locations for test
// executables and plugin directories.
package scratch

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

const (
	pluginDirPrefix  = "gohookplugin_"
	executablePrefix = "gohooktest_"
	pluginExt        = ".so"
	tokenLen         = 13
)

// Dir is a plugin directory. Every artifact built into it gets its own name.
type Dir struct {
	Path string
}

// PluginDir creates a fresh plugin directory below buildDir.
func PluginDir(buildDir string) (*Dir, error) {
	dir := filepath.Join(buildDir, pluginDirPrefix+Token())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plugin directory %s: %w", dir, err)
	}
	return &Dir{Path: dir}, nil
}

// Next returns a new, unused artifact path inside the directory.
func (d *Dir) Next() string {
	return filepath.Join(d.Path, Token()+pluginExt)
}

// ExecutablePath returns a random executable name below buildDir. The file is
// not created.
func ExecutablePath(buildDir string) string {
	name := executablePrefix + Token()
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(buildDir, name)
}

// IsExecutable reports whether name looks like a file made by ExecutablePath.
func IsExecutable(name string) bool {
	return strings.HasPrefix(filepath.Base(name), executablePrefix)
}

// IsPluginDir reports whether name looks like a directory made by PluginDir.
func IsPluginDir(name string) bool {
	return strings.HasPrefix(filepath.Base(name), pluginDirPrefix)
}

// Token returns a short random lowercase hex token.
func Token() string {
	u := uuid.New()
	// Bytes 9 to 15 of a version 4 UUID carry no version or variant bits.
	return hex.EncodeToString(u[9:])[:tokenLen]
}
