package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// fileContents is the on-disk layout. Several servers can share one file;
// each keeps its values under its own scope.
type fileContents struct {
	Scopes map[string]map[string]string `json:"scopes"`
}

// FileBackend stores values in a JSON file, scoped by server.
type FileBackend struct {
	path  string
	scope string
}

// NewFileBackend returns a FileBackend writing scope's values to path.
func NewFileBackend(path, scope string) *FileBackend {
	return &FileBackend{path: path, scope: scope}
}

// Path returns the file the backend writes to.
func (f *FileBackend) Path() string {
	return f.path
}

func (f *FileBackend) Load(_ context.Context, key string) (string, error) {
	contents, err := f.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}

	value, ok := contents.Scopes[f.scope][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (f *FileBackend) Save(_ context.Context, key, value string) error {
	return f.update(func(values map[string]string) {
		values[key] = value
	})
}

func (f *FileBackend) Remove(_ context.Context, key string) error {
	return f.update(func(values map[string]string) {
		delete(values, key)
	})
}

func (f *FileBackend) read() (*fileContents, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &contents, nil
}

// update applies fn to this scope's values under the file lock and writes the
// result atomically. Other scopes are carried over untouched.
func (f *FileBackend) update(fn func(values map[string]string)) error {
	lock, err := acquireFileLock(f.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.release()

	contents, err := f.read()
	if err != nil {
		// A missing or corrupt file starts over empty.
		contents = &fileContents{}
	}
	if contents.Scopes == nil {
		contents.Scopes = make(map[string]map[string]string)
	}
	values := contents.Scopes[f.scope]
	if values == nil {
		values = make(map[string]string)
	}

	fn(values)

	if len(values) == 0 {
		delete(contents.Scopes, f.scope)
	} else {
		contents.Scopes[f.scope] = values
	}

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return err
	}

	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, f.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
