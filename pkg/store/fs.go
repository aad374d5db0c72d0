package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS is a filesystem-backed [Store]. URIs are slash-separated paths resolved
// under a root directory; path escapes ("..") are rejected.
//
// FS is safe for concurrent use — each call touches an independent file, and
// uploads are atomic (write to a temp file, then rename) so a polling reader
// never observes a half-written blob.
type FS struct {
	root string
}

var _ Store = (*FS)(nil)

// NewFS creates a filesystem store rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: root dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root %q: %w", dir, err)
	}
	return &FS{root: dir}, nil
}

// Download implements Store.
func (s *FS) Download(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("store: %q: %w", uri, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %q: %w", uri, err)
	}
	return data, nil
}

// Upload implements Store. contentType is ignored; the filesystem carries no
// metadata.
func (s *FS) Upload(ctx context.Context, data []byte, uri, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.resolve(uri)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("store: create dir for %q: %w", uri, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("store: temp file for %q: %w", uri, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store: write %q: %w", uri, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store: close %q: %w", uri, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store: commit %q: %w", uri, err)
	}
	return uri, nil
}

// resolve maps a URI to an absolute path under the root.
func (s *FS) resolve(uri string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(uri, "/")))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("store: uri %q escapes the store root", uri)
	}
	return filepath.Join(s.root, clean), nil
}
