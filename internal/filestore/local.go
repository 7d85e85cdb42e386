package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local stores files in a directory. Each file is written to a temporary
// name first and renamed once complete.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) Put(_ context.Context, name, _ string, data []byte) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid file name %q", name)
	}

	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(l.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
