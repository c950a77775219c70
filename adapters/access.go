package adapters

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/brettbedarf/h5browse"
)

// checkAccess maps the filesystem state of path to the store error taxonomy
// before a backend tries to parse it
func checkAccess(op, path string, mode h5browse.Mode) error {
	fi, err := os.Stat(path)
	if err != nil {
		return classifyOSError(op, path, err)
	}
	if fi.IsDir() {
		return h5browse.NewStoreError(op, path, fmt.Errorf("%w: is a directory", h5browse.ErrFormat))
	}

	flag := os.O_RDONLY
	if mode == h5browse.ReadWrite {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return classifyOSError(op, path, err)
	}
	return f.Close()
}

func classifyOSError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return h5browse.NewStoreError(op, path, fmt.Errorf("%w: %w", h5browse.ErrNotFound, err))
	case errors.Is(err, fs.ErrPermission):
		return h5browse.NewStoreError(op, path, fmt.Errorf("%w: %w", h5browse.ErrPermission, err))
	default:
		return h5browse.NewStoreError(op, path, err)
	}
}
