package receipt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for uploaded image storage
type Storage interface {
	// Save saves a file and returns the name it was stored under
	Save(filename string, data []byte) (string, error)

	// Get retrieves a stored file
	Get(name string) ([]byte, error)

	// Delete removes a stored file; deleting a missing file is not an error
	Delete(name string) error
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// path confines a stored name to the base directory
func (l *LocalStorage) path(name string) (string, error) {
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	return filepath.Join(l.basePath, base), nil
}

// Save saves a file to local storage
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path, err := l.path(filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filepath.Base(path), nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(name string) ([]byte, error) {
	path, err := l.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(name string) error {
	path, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
