package resource

import (
	"fmt"
	"os"
)

// Dir is an acquired directory.
type Dir struct {
	Path string
	// Owned is true when the directory was created by us and is removed on
	// release.
	Owned bool
}

// AcquireDir returns path if set, creating it when missing, or a fresh
// temporary directory named after pattern (see os.MkdirTemp). Directories
// created here are removed recursively on release; a directory that already
// existed is left alone. On error nothing is registered with the scope.
func (s *Scope) AcquireDir(path, pattern string) (Dir, error) {
	if path == "" {
		tmp, err := os.MkdirTemp("", pattern)
		if err != nil {
			return Dir{}, fmt.Errorf("creating temporary directory: %w", err)
		}
		s.Defer("directory "+tmp, removeDir(tmp))
		return Dir{Path: tmp, Owned: true}, nil
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && !info.IsDir():
		return Dir{}, fmt.Errorf("%s exists and is not a directory", path)
	case err == nil:
		return Dir{Path: path}, nil
	case !os.IsNotExist(err):
		return Dir{}, fmt.Errorf("checking directory %s: %w", path, err)
	}

	if err := os.MkdirAll(path, 0700); err != nil {
		return Dir{}, fmt.Errorf("creating directory %s: %w", path, err)
	}
	s.Defer("directory "+path, removeDir(path))
	return Dir{Path: path, Owned: true}, nil
}

func removeDir(path string) func() error {
	return func() error {
		return os.RemoveAll(path)
	}
}
