package images

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapesRoot indicates a blob name that would resolve outside
// the store's root directory.
var ErrPathEscapesRoot = errors.New("images: path escapes blob root")

// Store is file storage for normalized image blobs, keyed by a
// generated name like "{id}.jpg". All reads resolve through an
// escape-safe path check.
type Store struct {
	root string
}

// NewStore creates the root directory if needed and returns a handle.
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("images: blob root is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("images: resolving blob root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("images: creating blob root: %w", err)
	}
	return &Store{root: absRoot}, nil
}

// Save writes a blob under the given name.
func (s *Store) Save(name string, data []byte) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Read returns the blob bytes. Returns ErrPathEscapesRoot for names
// that resolve outside the root and fs.ErrNotExist for absent blobs.
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Remove deletes the blob. Missing blobs are not an error.
func (s *Store) Remove(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) resolve(name string) (string, error) {
	resolved := filepath.Clean(filepath.Join(s.root, name))
	if resolved != s.root && !strings.HasPrefix(resolved, s.root+string(filepath.Separator)) {
		return "", ErrPathEscapesRoot
	}
	if resolved == s.root {
		return "", ErrPathEscapesRoot
	}
	return resolved, nil
}

// ContentTypeForName infers the content type served for a blob from
// its extension. Normalized blobs are always jpeg; the remaining
// entries cover blobs persisted before normalization was introduced.
func ContentTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}
