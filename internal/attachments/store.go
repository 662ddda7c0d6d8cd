package attachments

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store reads attachment payloads under a fixed root directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// ReadBytes returns the content of the named attachment. Names resolving
// outside the root are rejected; a missing file is an error.
func (s *Store) ReadBytes(name string) ([]byte, error) {
	path := filepath.Join(s.root, filepath.Clean("/"+name))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("attachment %q resolves outside the attachment root", name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment %q: %w", name, err)
	}
	return data, nil
}
