package temppath

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirForIsDeterministicAndCreated(t *testing.T) {
	base := filepath.Join(t.TempDir(), "root")
	h := New(base)

	dir1, err := h.DirFor("it_abc")
	if err != nil {
		t.Fatalf("DirFor: %v", err)
	}
	dir2, err := h.DirFor("it_abc")
	if err != nil {
		t.Fatalf("DirFor: %v", err)
	}
	if dir1 != dir2 {
		t.Errorf("expected deterministic path, got %q and %q", dir1, dir2)
	}
	if _, err := os.Stat(dir1); err != nil {
		t.Errorf("expected directory to exist: %v", err)
	}
}

func TestPathForDoesNotCreateDirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "root")
	h := New(base)

	path, err := h.PathFor("it_never_created")
	if err != nil {
		t.Fatalf("PathFor: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected PathFor not to create the directory, stat err = %v", err)
	}
}

func TestDefaultBaseUnderTempDir(t *testing.T) {
	h := New("")
	base, err := h.Base()
	if err != nil {
		t.Fatalf("Base: %v", err)
	}
	if filepath.Dir(base) != filepath.Clean(os.TempDir()) {
		t.Errorf("expected default base under os.TempDir(), got %q", base)
	}
}
