package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is a [Store] that keeps the pair in a single JSON document on disk.
// Writes go to a temporary file in the same directory and are renamed into
// place, so readers see either the old or the new pair.
type File struct {
	mu   sync.Mutex
	path string
	keys Keys
}

// NewFile creates a file-backed store at path. The parent directory is
// created on first write.
func NewFile(path string, keys Keys) *File {
	return &File{path: path, keys: keys.normalize()}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(_ context.Context) (Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Pair{}, nil
		}
		return Pair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	doc := map[string]string{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Pair{}, fmt.Errorf("%w: corrupt token file: %v", ErrUnavailable, err)
	}
	return Pair{Access: doc[f.keys.Access], Refresh: doc[f.keys.Refresh]}, nil
}

func (f *File) Set(_ context.Context, pair Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pair.Access == "" && pair.Refresh == "" {
		return f.remove()
	}

	doc := make(map[string]string, 2)
	if pair.Access != "" {
		doc[f.keys.Access] = pair.Access
	}
	if pair.Refresh != "" {
		doc[f.keys.Refresh] = pair.Refresh
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remove()
}

func (f *File) remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
