package cache

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidID is returned for ids that cannot be mapped to a file name.
var ErrInvalidID = errors.New("invalid cache id")

// FileTier keeps one file per id inside a directory.
type FileTier struct {
	dir string
}

// NewFileTier creates a file tier rooted at dir. The directory is created on
// first write.
func NewFileTier(dir string) *FileTier {
	return &FileTier{dir: dir}
}

// Dir returns the root directory.
func (f *FileTier) Dir() string {
	return f.dir
}

// Path returns the file path used for id.
func (f *FileTier) Path(id string) (string, error) {
	name := url.PathEscape(id)
	if name == "" {
		return "", ErrInvalidID
	}
	// "." and ".." survive PathEscape
	if strings.Trim(name, ".") == "" {
		name = strings.ReplaceAll(name, ".", "%2E")
	}
	return filepath.Join(f.dir, name), nil
}

// Exists reports whether a file for id is present.
func (f *FileTier) Exists(id string) bool {
	path, err := f.Path(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the bytes stored for id.
func (f *FileTier) Read(id string) ([]byte, error) {
	path, err := f.Path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		CacheErrors.WithLabelValues("file_read").Inc()
		return nil, fmt.Errorf("read cached file: %w", err)
	}
	return data, nil
}

// Write stores data for id, replacing the file atomically.
func (f *FileTier) Write(id string, data []byte) error {
	path, err := f.Path(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		CacheErrors.WithLabelValues("file_write").Inc()
		return fmt.Errorf("create download dir: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".partial-*")
	if err != nil {
		CacheErrors.WithLabelValues("file_write").Inc()
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		CacheErrors.WithLabelValues("file_write").Inc()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		CacheErrors.WithLabelValues("file_write").Inc()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		CacheErrors.WithLabelValues("file_write").Inc()
		return fmt.Errorf("rename cached file: %w", err)
	}
	return nil
}
