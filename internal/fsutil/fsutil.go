// Package fsutil holds scoped reads and atomic writes for report and
// artifact files.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by ReadFileLimited for files over the limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// ReadFileScoped reads path through an os.Root opened on its directory, so
// a symlinked name cannot lead the read outside that directory.
func ReadFileScoped(path string) ([]byte, error) {
	return ReadFileLimited(path, 0)
}

// ReadFileLimited is ReadFileScoped that refuses files larger than limit
// bytes. A limit of zero or less reads any size.
func ReadFileLimited(path string, limit int64) ([]byte, error) {
	dir, name := filepath.Split(filepath.Clean(path))
	if name == "" || name == "." || name == ".." {
		return nil, fmt.Errorf("not a file path: %q", path)
	}
	if dir == "" {
		dir = "."
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if limit <= 0 {
		return io.ReadAll(f)
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w (%d bytes)", path, ErrTooLarge, limit)
	}
	return data, nil
}
