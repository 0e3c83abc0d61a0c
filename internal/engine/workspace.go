package engine

import (
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// snapshotWorkspace returns the set of absolute file paths present under
// dir right now.
func snapshotWorkspace(dir string) (map[string]struct{}, error) {
	files := make(map[string]struct{})
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		files[path] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot workspace %s: %w", dir, err)
	}
	return files, nil
}

// diffGenerated returns paths present in current but not in baseline,
// restricted to paths under dir, sorted for determinism.
func diffGenerated(dir string, baseline, current map[string]struct{}) []string {
	out := make([]string, 0)
	for path := range current {
		if _, seen := baseline[path]; seen {
			continue
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// relWorkspacePaths converts absolute paths under dir into workspace-
// relative ones, for the ExecutionResult's public surface.
func relWorkspacePaths(dir string, abs []string) []string {
	out := make([]string, 0, len(abs))
	for _, p := range abs {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = p
		}
		out = append(out, rel)
	}
	return out
}

// ListWorkspaceFiles lists workspace-relative file paths for a session,
// optionally restricted to files generated across runs on the session's
// current container.
func (e *Engine) ListWorkspaceFiles(sessionID string, onlyGenerated bool) ([]string, error) {
	s, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Current == nil {
		return nil, fmt.Errorf("engine: session %s has no active container", sessionID)
	}
	meta := s.Current

	if onlyGenerated {
		out := make([]string, 0, len(meta.SessionGeneratedFiles))
		for p := range meta.SessionGeneratedFiles {
			rel, err := filepath.Rel(meta.WorkspaceDir, p)
			if err != nil {
				rel = p
			}
			out = append(out, rel)
		}
		sort.Strings(out)
		return out, nil
	}

	current, err := snapshotWorkspace(meta.WorkspaceDir)
	if err != nil {
		return nil, err
	}
	abs := make([]string, 0, len(current))
	for p := range current {
		abs = append(abs, p)
	}
	sort.Strings(abs)
	return relWorkspacePaths(meta.WorkspaceDir, abs), nil
}

// AddFileFromBase64 decodes b64 and writes it to relPath inside the
// session's current workspace.
func (e *Engine) AddFileFromBase64(sessionID, relPath, b64 string) error {
	s, err := e.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if s.Current == nil {
		return fmt.Errorf("engine: session %s has no active container", sessionID)
	}
	target, err := safeJoin(s.Current.WorkspaceDir, relPath)
	if err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode base64 for %s: %w", relPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

// CopyFileIntoWorkspace copies a host file into the session's current
// workspace at destRelPath.
func (e *Engine) CopyFileIntoWorkspace(sessionID, localPath, destRelPath string) error {
	s, err := e.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if s.Current == nil {
		return fmt.Errorf("engine: session %s has no active container", sessionID)
	}
	target, err := safeJoin(s.Current.WorkspaceDir, destRelPath)
	if err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source file %s: %w", localPath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// ReadFileBase64 reads relPath from the session's current workspace and
// returns it base64-encoded.
func (e *Engine) ReadFileBase64(sessionID, relPath string) (string, error) {
	data, err := e.ReadFileBinary(sessionID, relPath)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ReadFileBinary reads relPath from the session's current workspace.
func (e *Engine) ReadFileBinary(sessionID, relPath string) ([]byte, error) {
	s, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Current == nil {
		return nil, fmt.Errorf("engine: session %s has no active container", sessionID)
	}
	target, err := safeJoin(s.Current.WorkspaceDir, relPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(target)
}

// safeJoin joins rel onto base after rejecting path traversal, matching the
// write-path validation idiom used elsewhere for workspace writes.
func safeJoin(base, rel string) (string, error) {
	clean := filepath.Clean(rel)
	if clean == "." || clean == ".." || filepathHasDotDotPrefix(clean) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("engine: invalid relative path %q", rel)
	}
	return filepath.Join(base, clean), nil
}

func filepathHasDotDotPrefix(p string) bool {
	return len(p) >= 2 && p[0] == '.' && p[1] == '.'
}
