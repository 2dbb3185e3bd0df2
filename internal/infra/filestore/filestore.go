// Package filestore persists each state entry as <key>.json under a directory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Storage is a directory of JSON files, one per key.
type Storage struct {
	dir        string
	createTemp func(dir, pattern string) (*os.File, error)
}

// New creates the directory if needed.
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore.New: create directory %q: %w", dir, err)
	}
	return &Storage{dir: dir, createTemp: os.CreateTemp}, nil
}

// Dir returns the backing directory.
func (s *Storage) Dir() string { return s.dir }

// Load reads the file for key. A missing file is reported as absent, not as an error.
func (s *Storage) Load(ctx context.Context, key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("filestore.Load: read %q: %w", path, err)
	}
	return data, true, nil
}

// Save stages every entry in a temporary file and only then renames them
// into place, so a failed write leaves all keys untouched. A crash between
// two renames can still leave some keys updated and others not.
func (s *Storage) Save(ctx context.Context, entries map[string][]byte) error {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		if _, err := s.path(key); err != nil {
			return err
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	staged := make([]string, 0, len(keys))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		tmp, err := s.stage(entries[key])
		if err != nil {
			return fmt.Errorf("filestore.Save: %s: %w", key, err)
		}
		staged = append(staged, tmp)
	}

	for i, key := range keys {
		path, _ := s.path(key)
		if err := os.Rename(staged[i], path); err != nil {
			return fmt.Errorf("filestore.Save: %s: rename into place: %w", key, err)
		}
	}
	return nil
}

// Close is a no-op.
func (s *Storage) Close() error { return nil }

func (s *Storage) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("filestore: invalid key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// stage writes data to a synced temporary file in the storage directory.
func (s *Storage) stage(data []byte) (string, error) {
	tmp, err := s.createTemp(s.dir, "state.*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}
