package fetch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// TempRegistry tracks temporary files so they can be deleted at the end of
// a run, or at process exit for anything a run left behind.
type TempRegistry struct {
	dir   string
	mu    sync.Mutex
	paths map[string]struct{}
}

// NewTempRegistry creates a registry writing under dir (os.TempDir when empty).
func NewTempRegistry(dir string) *TempRegistry {
	return &TempRegistry{dir: dir, paths: make(map[string]struct{})}
}

// Write stores data in a new uniquely named file and registers it.
func (t *TempRegistry) Write(data []byte, ext string) (string, error) {
	f, err := os.CreateTemp(t.dir, "tutorialpipe-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()
	t.Adopt(path)
	if _, err := f.Write(data); err != nil {
		f.Close()
		t.Remove(path)
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		t.Remove(path)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return path, nil
}

// Adopt registers an existing file for deletion.
func (t *TempRegistry) Adopt(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paths[path] = struct{}{}
}

// Owns reports whether path is registered.
func (t *TempRegistry) Owns(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.paths[path]
	return ok
}

// Remove deletes path if it is registered. Unregistered paths are left alone.
func (t *TempRegistry) Remove(path string) error {
	t.mu.Lock()
	_, ok := t.paths[path]
	delete(t.paths, path)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveAll deletes every registered file.
func (t *TempRegistry) RemoveAll() error {
	t.mu.Lock()
	paths := make([]string, 0, len(t.paths))
	for p := range t.paths {
		paths = append(paths, p)
	}
	t.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := t.Remove(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of registered files.
func (t *TempRegistry) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.paths)
}
