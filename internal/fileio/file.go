package fileio

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

func (r *Retrier) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := r.Do(ctx, "read "+path, func() error {
		var err error
		data, err = os.ReadFile(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFile replaces path with data through a temporary file in the same
// directory, so readers never observe a partial calendar.
func (r *Retrier) WriteFile(ctx context.Context, path string, data []byte) error {
	return r.Do(ctx, "write "+path, func() error {
		return writeAtomic(path, data)
	})
}

// Remove deletes path. A file that is already gone counts as removed.
func (r *Retrier) Remove(ctx context.Context, path string) error {
	return r.Do(ctx, "remove "+path, func() error {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
}

// ListFiles returns the names of the regular files directly inside dir, sorted.
func (r *Retrier) ListFiles(ctx context.Context, dir string) ([]string, error) {
	var names []string
	err := r.Do(ctx, "list "+dir, func() error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		names = names[:0]
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				names = append(names, entry.Name())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func writeAtomic(path string, data []byte) (err error) {
	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".calsync-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpPath, mode); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
