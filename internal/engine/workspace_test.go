package engine

import (
	"encoding/base64"
	"testing"

	"apex-sandbox/internal/sessionmgr"
)

// newSessionWithWorkspace wires a session's current container meta directly
// against a host directory, bypassing the container runtime, so the
// workspace helper methods can be tested without Docker.
func newSessionWithWorkspace(t *testing.T, e *Engine) (sessionID string, workspaceDir string) {
	t.Helper()
	workspaceDir = t.TempDir()
	id, err := e.sessions.Create(sessionmgr.SessionConfig{Strategy: sessionmgr.PerSession})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	meta := sessionmgr.NewContainerMeta(id, "fake-container", "alpine:latest", "it_fake", workspaceDir)
	if err := e.sessions.SetCurrent(id, meta); err != nil {
		t.Fatalf("set current: %v", err)
	}
	return id, workspaceDir
}

func TestAddFileFromBase64ThenReadFileBase64RoundTrips(t *testing.T) {
	e := newTestEngine(t)
	sessionID, _ := newSessionWithWorkspace(t, e)

	content := "hello, workspace"
	b64 := base64.StdEncoding.EncodeToString([]byte(content))
	if err := e.AddFileFromBase64(sessionID, "notes/readme.txt", b64); err != nil {
		t.Fatalf("AddFileFromBase64: %v", err)
	}

	got, err := e.ReadFileBase64(sessionID, "notes/readme.txt")
	if err != nil {
		t.Fatalf("ReadFileBase64: %v", err)
	}
	if got != b64 {
		t.Errorf("round trip mismatch: got %q, want %q", got, b64)
	}
}

func TestAddFileFromBase64RejectsPathTraversal(t *testing.T) {
	e := newTestEngine(t)
	sessionID, _ := newSessionWithWorkspace(t, e)

	if err := e.AddFileFromBase64(sessionID, "../escape.txt", base64.StdEncoding.EncodeToString([]byte("x"))); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestListWorkspaceFiles(t *testing.T) {
	e := newTestEngine(t)
	sessionID, _ := newSessionWithWorkspace(t, e)

	if err := e.AddFileFromBase64(sessionID, "a.txt", base64.StdEncoding.EncodeToString([]byte("a"))); err != nil {
		t.Fatalf("AddFileFromBase64: %v", err)
	}
	if err := e.AddFileFromBase64(sessionID, "sub/b.txt", base64.StdEncoding.EncodeToString([]byte("b"))); err != nil {
		t.Fatalf("AddFileFromBase64: %v", err)
	}

	files, err := e.ListWorkspaceFiles(sessionID, false)
	if err != nil {
		t.Fatalf("ListWorkspaceFiles: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("expected 2 files, got %v", files)
	}
}

