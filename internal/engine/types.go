// Package engine is the orchestrator's execution engine: it consumes the
// language registry, the container manager, and the session manager to
// implement session creation, per-execution container selection, workspace
// preparation, dependency caching, code-write and exec, stream
// demultiplexing, generated-file detection, and cleanup.
package engine

import (
	"time"

	"apex-sandbox/internal/sessionmgr"
)

// RunApp identifies a pre-existing entry file in a caller-supplied mounted
// directory, as opposed to an inline snippet.
type RunApp struct {
	EntryFile string
	Cwd       string
}

// StreamSink receives opaque output chunks as they arrive. Implementations
// must not block the engine; they may drop chunks at their own discretion
// but must never reorder them.
type StreamSink func(chunk string)

// ExecutionOptions is the caller's request for one executeCode call.
type ExecutionOptions struct {
	Language     string
	Code         string
	RunApp       *RunApp
	Dependencies []string

	CPULimit    float64 // fractional CPU cores; 0 means "no override"
	MemoryLimit string  // "512m" | "1g" | "512k" | "<bytes>"; "" means "no override"

	// Timeout bounds a single exec (and, at the engine's discretion, the
	// dependency-install phase). Zero means no bound.
	Timeout time.Duration

	Stdout           StreamSink
	Stderr           StreamSink
	DependencyStdout StreamSink
	DependencyStderr StreamSink

	WorkspaceSharing sessionmgr.WorkspaceSharing
}

// ExecutionResult is what executeCode returns.
type ExecutionResult struct {
	Stdout                string
	Stderr                string
	DependencyStdout      string
	DependencyStderr      string
	ExitCode              int
	ExecutionTimeMillis   int64
	WorkspaceDir          string
	GeneratedFiles        []string
	SessionGeneratedFiles []string
	SessionID             string
	ContainerID           string
}

// SessionInfo is the derived, caller-facing view of a session.
type SessionInfo struct {
	SessionID      string
	CreatedAt      int64 // unix millis
	LastExecutedAt int64 // unix millis
	IsActive       bool
}
