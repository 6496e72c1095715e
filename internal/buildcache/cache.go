// Package buildcache remembers artifacts built from an unchanged source tree
// so repeated test runs can skip the compiler.
package buildcache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketEntries = []byte("entries")

	ErrNotFound = errors.New("not found")
)

type Cache struct {
	db          *bbolt.DB
	artifactDir string
}

// Open opens or creates the cache database at path. Artifacts are kept in an
// "artifacts" directory next to it.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	artifactDir := filepath.Join(dir, "artifacts")
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open build cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Cache{db: db, artifactDir: artifactDir}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the entry for digest. Entries whose artifact vanished are
// dropped and reported as ErrNotFound.
func (c *Cache) Lookup(digest string) (Entry, error) {
	var entry Entry
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEntries).Get([]byte(digest))
		if data == nil {
			return ErrNotFound
		}
		return entry.UnmarshalBinary(data)
	})
	if err != nil {
		return Entry{}, err
	}

	info, err := os.Stat(entry.Artifact)
	if err != nil || info.Size() != entry.Size {
		if err := c.Delete(digest); err != nil {
			return Entry{}, err
		}
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// Store copies the artifact at src into the cache and records it.
func (c *Cache) Store(digest string, kind Kind, pkg string, src string) (Entry, error) {
	dst := filepath.Join(c.artifactDir, digest)
	size, err := CopyFile(src, dst)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Digest:   digest,
		Kind:     kind,
		Package:  pkg,
		Artifact: dst,
		Size:     size,
		BuiltAt:  time.Now().Unix(),
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		data, err := entry.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		return tx.Bucket(bucketEntries).Put(entry.Key(), data)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Delete removes an entry and its artifact.
func (c *Cache) Delete(digest string) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(digest))
	})
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(c.artifactDir, digest)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns every entry in key order.
func (c *Cache) List() ([]Entry, error) {
	var entries []Entry
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := entry.UnmarshalBinary(v); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// CopyFile copies src to dst through a temporary file in dst's directory,
// so dst is either absent or complete. dst gets mode 0755.
func CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "copy-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name()) // Clean up if rename fails
	}()

	n, err := io.Copy(tmp, in)
	if err != nil {
		return 0, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		return 0, fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("failed to rename file: %w", err)
	}
	return n, nil
}
