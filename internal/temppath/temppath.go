// Package temppath maps a container name to a deterministic host directory
// under a single base temp root, ensuring the base exists.
package temppath

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Helper owns one base directory under which every container gets a
// subdirectory named after its container name.
type Helper struct {
	once sync.Once
	base string
	err  error
}

// New returns a Helper rooted at base. If base is empty, it defaults to
// os.TempDir()/it-workspaces.
func New(base string) *Helper {
	if base == "" {
		base = filepath.Join(os.TempDir(), "it-workspaces")
	}
	return &Helper{base: base}
}

// Base ensures the base temp root exists and returns it. Safe for
// concurrent use; the directory is created at most once.
func (h *Helper) Base() (string, error) {
	h.once.Do(func() {
		h.err = os.MkdirAll(h.base, 0o755)
	})
	if h.err != nil {
		return "", fmt.Errorf("temppath: create base %s: %w", h.base, h.err)
	}
	return h.base, nil
}

// DirFor returns (and creates) the deterministic workspace directory for a
// given container name.
func (h *Helper) DirFor(containerName string) (string, error) {
	base, err := h.Base()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, containerName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("temppath: create workspace dir %s: %w", dir, err)
	}
	return dir, nil
}

// PathFor returns the deterministic workspace directory for a container
// name without creating it, for callers (e.g. an orphan sweep) that only
// need to locate and remove a possibly-already-gone directory.
func (h *Helper) PathFor(containerName string) (string, error) {
	base, err := h.Base()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, containerName), nil
}
