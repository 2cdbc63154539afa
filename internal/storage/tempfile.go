package storage

import (
	"fmt"
	"io"
	"os"
)

// WithTempFile copies r into a new temp file under dir, calls fn with the
// file's path, and removes the file before returning whatever fn returned.
// The file is removed on every path, including copy failures and panics in fn.
func WithTempFile(dir, pattern string, r io.Reader, fn func(path string) error) (err error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = fmt.Errorf("remove temp %s: %w", path, rmErr)
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}

	return fn(path)
}
