// Package filex wraps the local file operations of the sync client over an
// afero.Fs, so the engine can run against the OS filesystem in production and
// an in-memory one in tests.
package filex

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// EnsureDir creates dir (and parents) if needed.
func EnsureDir(fsys afero.Fs, dir string) error {
	if err := fsys.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// WriteFileAtomic writes data next to path and renames it into place, so a
// crash never leaves a half-written file under the final name.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte) error {
	if err := EnsureDir(fsys, filepath.Dir(path)); err != nil {
		return err
	}

	tmp := path + ".part"
	if err := afero.WriteFile(fsys, tmp, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(fsys afero.Fs, path string) error {
	err := fsys.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("remove %s: %w", path, err)
}
