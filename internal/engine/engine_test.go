package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"apex-sandbox/internal/config"
	"apex-sandbox/internal/containermgr"
	"apex-sandbox/internal/sessionmgr"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if err := exec.Command("docker", "info").Run(); err != nil {
		t.Skip("docker not available, skipping engine test")
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Load()
	cfg.WorkspaceRoot = t.TempDir()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

// TestShellHappyPath covers scenario 1: a trivial shell run with no
// dependencies produces no generated files and exit code zero.
func TestShellHappyPath(t *testing.T) {
	skipIfNoDocker(t)
	e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	sessionID, err := e.CreateSession(sessionmgr.SessionConfig{Strategy: sessionmgr.PerExecution})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	result, err := e.ExecuteCode(ctx, sessionID, ExecutionOptions{
		Language: "shell",
		Code:     "echo hello",
	})
	if err != nil {
		t.Fatalf("ExecuteCode: %v", err)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "hello\n")
	}
	if result.ExitCode != 0 {
		t.Errorf("exitCode = %d, want 0", result.ExitCode)
	}
	if len(result.GeneratedFiles) != 0 {
		t.Errorf("expected no generated files, got %v", result.GeneratedFiles)
	}
}

// TestDependencyCacheHit covers scenario 2: a second run with an identical
// dependency list on the same PER_SESSION container skips reinstall.
func TestDependencyCacheHit(t *testing.T) {
	skipIfNoDocker(t)
	e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	sessionID, err := e.CreateSession(sessionmgr.SessionConfig{Strategy: sessionmgr.PerSession})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	opts := ExecutionOptions{
		Language:     "python",
		Code:         "print('ok')",
		Dependencies: []string{"six"},
	}

	first, err := e.ExecuteCode(ctx, sessionID, opts)
	if err != nil {
		t.Fatalf("first ExecuteCode: %v", err)
	}
	if first.DependencyStdout == "" {
		t.Error("expected nonempty dependencyStdout on first install")
	}

	second, err := e.ExecuteCode(ctx, sessionID, opts)
	if err != nil {
		t.Fatalf("second ExecuteCode: %v", err)
	}
	if second.DependencyStdout != "" {
		t.Errorf("expected cached install to skip, got dependencyStdout %q", second.DependencyStdout)
	}

	if err := e.CleanupSession(ctx, sessionID, false); err != nil {
		t.Fatalf("CleanupSession: %v", err)
	}
}

// TestGeneratedFileDetection covers scenario 3: a file written by user code
// is reported as generated and exists on the host workspace.
func TestGeneratedFileDetection(t *testing.T) {
	skipIfNoDocker(t)
	e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	sessionID, err := e.CreateSession(sessionmgr.SessionConfig{Strategy: sessionmgr.PerSession})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	result, err := e.ExecuteCode(ctx, sessionID, ExecutionOptions{
		Language: "python",
		Code:     "open('report.txt', 'w').write('done')",
	})
	if err != nil {
		t.Fatalf("ExecuteCode: %v", err)
	}

	found := false
	for _, f := range result.GeneratedFiles {
		if f == "report.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected report.txt in generatedFiles, got %v", result.GeneratedFiles)
	}

	if _, err := os.Stat(filepath.Join(result.WorkspaceDir, "report.txt")); err != nil {
		t.Errorf("expected report.txt on disk at %s: %v", result.WorkspaceDir, err)
	}

	_ = e.CleanupSession(ctx, sessionID, false)
}

// TestRunAppWithDependencies covers scenario 4: a pre-existing entry file in
// a caller-mounted directory, with dependencies installed into that same
// mount rather than into /workspace.
func TestRunAppWithDependencies(t *testing.T) {
	skipIfNoDocker(t)
	e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	projectDir := t.TempDir()
	entry := "server.js"
	script := "const express = require('express'); console.log(typeof express);"
	if err := os.WriteFile(filepath.Join(projectDir, entry), []byte(script), 0o644); err != nil {
		t.Fatalf("write entry file: %v", err)
	}

	sessionID, err := e.CreateSession(sessionmgr.SessionConfig{
		Strategy: sessionmgr.PerExecution,
		ContainerConfig: containermgr.ContainerConfig{
			Mounts: []containermgr.ContainerMount{
				{Kind: containermgr.MountDirectory, Source: projectDir, Target: "/project"},
			},
		},
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	result, err := e.ExecuteCode(ctx, sessionID, ExecutionOptions{
		Language:     "ecmascript-variant-A",
		RunApp:       &RunApp{EntryFile: entry, Cwd: "/project"},
		Dependencies: []string{"express"},
	})
	if err != nil {
		t.Fatalf("ExecuteCode: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exitCode = %d, want 0 (stderr: %s)", result.ExitCode, result.Stderr)
	}
	if result.Stdout != "function\n" {
		t.Errorf("stdout = %q, want %q (express failed to resolve)", result.Stdout, "function\n")
	}

	if _, err := os.Stat(filepath.Join(projectDir, "package.json")); err != nil {
		t.Errorf("expected package.json materialized into the run-app mount at %s: %v", projectDir, err)
	}
	if _, err := os.Stat(filepath.Join(projectDir, "node_modules", "express")); err != nil {
		t.Errorf("expected express installed into the run-app mount, not /workspace: %v", err)
	}
}

// TestPoolSharedWorkspaceRejected covers invariant I5.
func TestPoolSharedWorkspaceRejected(t *testing.T) {
	e := newTestEngine(t)
	sessionID, err := e.CreateSession(sessionmgr.SessionConfig{Strategy: sessionmgr.Pool})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	_, err = e.ExecuteCode(context.Background(), sessionID, ExecutionOptions{
		Language:         "shell",
		Code:             "echo hi",
		WorkspaceSharing: sessionmgr.Shared,
	})
	if err != ErrSharedWorkspaceRequiresPerSession {
		t.Errorf("expected ErrSharedWorkspaceRequiresPerSession, got %v", err)
	}
}

func TestGetSessionInfoUnknownSession(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.GetSessionInfo("does-not-exist"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
