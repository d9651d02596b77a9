// Package file is the local-filesystem input source.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local reads one file from the local filesystem.
type Local struct {
	path string
}

// NewLocal wraps a path. "~/" expands to the user home directory.
func NewLocal(path string) *Local {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return &Local{path: path}
}

// Path returns the resolved path.
func (l *Local) Path() string { return l.path }

// Open opens the file for reading. Directories are rejected so a mistyped
// path fails with a clear message instead of a CSV parse error.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open %s: is a directory", l.path)
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}

// Size returns the file size in bytes, for cap checks before reading.
func (l *Local) Size() (int64, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", l.path, err)
	}
	return info.Size(), nil
}
