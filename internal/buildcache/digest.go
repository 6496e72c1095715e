package buildcache

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Digest hashes the build parameters together with the contents of files.
// The order of files does not matter and duplicates are hashed once.
func Digest(params []string, files []string) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	for _, p := range params {
		_, _ = io.WriteString(h, p)
		_, _ = h.Write([]byte{0})
	}

	abs := make([]string, 0, len(files))
	for _, f := range files {
		p, err := filepath.Abs(f)
		if err != nil {
			return "", err
		}
		abs = append(abs, p)
	}
	slices.Sort(abs)
	abs = slices.Compact(abs)

	for _, path := range abs {
		if err := hashFile(h, path); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, _ = io.WriteString(w, filepath.ToSlash(path))
	_, _ = w.Write([]byte{0})
	_, _ = io.WriteString(w, strconv.FormatInt(info.Size(), 10))
	_, _ = w.Write([]byte{0})

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return nil
}
