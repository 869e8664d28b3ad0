package blob

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps blobs on the local filesystem under a root directory.
// Content type is recovered from the key's extension on read.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{root: dir}, nil
}

// path maps a key to a file path, refusing traversal outside the root.
func (s *FSStore) path(key string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", false
	}
	return filepath.Join(s.root, clean), true
}

// Put writes the blob to disk.
func (s *FSStore) Put(_ context.Context, key, _ string, body io.Reader) error {
	p, ok := s.path(key)
	if !ok {
		return ErrNotFound
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(p)
		return err
	}
	return f.Close()
}

// Get opens the blob for reading.
func (s *FSStore) Get(_ context.Context, key string) (*Object, error) {
	p, ok := s.path(key)
	if !ok {
		return nil, ErrNotFound
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	ct := mime.TypeByExtension(filepath.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Object{Body: f, ContentType: ct, Size: info.Size()}, nil
}

// Delete removes the blob. Deleting a missing key is not an error.
func (s *FSStore) Delete(_ context.Context, key string) error {
	p, ok := s.path(key)
	if !ok {
		return nil
	}
	err := os.Remove(p)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
