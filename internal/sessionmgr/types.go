// Package sessionmgr is pure in-memory bookkeeping: sessions, their current
// container, per-container metadata, container history, and idle-retained
// containers kept for potential image-matched reuse within a session.
package sessionmgr

import (
	"time"

	"apex-sandbox/internal/containermgr"
)

// PlacementStrategy governs whether a run gets a fresh, pooled, or
// session-owned container.
type PlacementStrategy string

const (
	PerExecution PlacementStrategy = "PER_EXECUTION"
	PerSession   PlacementStrategy = "PER_SESSION"
	Pool         PlacementStrategy = "POOL"
)

// WorkspaceSharing governs whether a PER_SESSION session reuses one
// workspace directory across runs (shared) or gets a fresh one whenever its
// container is replaced (isolated).
type WorkspaceSharing string

const (
	Isolated WorkspaceSharing = "isolated"
	Shared   WorkspaceSharing = "shared"
)

// SessionConfig is supplied at session creation.
type SessionConfig struct {
	Strategy          PlacementStrategy
	ContainerConfig   containermgr.ContainerConfig
	RequestedID       string
	EnforceNewSession bool
}

// ContainerMeta is a container's own state inside a session.
type ContainerMeta struct {
	SessionID             string
	ContainerID           string
	ImageName             string
	ContainerName         string
	WorkspaceDir          string
	DepsInstalled         bool
	DepsChecksum          string
	BaselineFiles         map[string]struct{}
	GeneratedFiles        map[string]struct{}
	SessionGeneratedFiles map[string]struct{}
	IsRunning             bool
	CreatedAt             time.Time
	LastExecutedAt        time.Time
}

// NewContainerMeta returns a fresh meta record for a just-created container.
func NewContainerMeta(sessionID, containerID, image, name, workspaceDir string) *ContainerMeta {
	now := time.Now()
	return &ContainerMeta{
		SessionID:             sessionID,
		ContainerID:           containerID,
		ImageName:             image,
		ContainerName:         name,
		WorkspaceDir:          workspaceDir,
		BaselineFiles:         make(map[string]struct{}),
		GeneratedFiles:        make(map[string]struct{}),
		SessionGeneratedFiles: make(map[string]struct{}),
		CreatedAt:             now,
	}
}

// Session is the in-memory record of one caller-visible session.
type Session struct {
	ID               string
	Config           SessionConfig
	Current          *ContainerMeta
	ContainerHistory []*ContainerMeta
	IdleRetained     []*ContainerMeta
	CreatedAt        time.Time
	LastExecutedAt   time.Time
}

// IsActive is derived: a current container exists and is currently running
// an exec.
func (s *Session) IsActive() bool {
	return s.Current != nil && s.Current.IsRunning
}

// Derived recomputes CreatedAt/LastExecutedAt from history, per the external
// interface's getSessionInfo contract.
func (s *Session) Derived() (createdAt, lastExecutedAt time.Time) {
	createdAt = s.CreatedAt
	lastExecutedAt = s.LastExecutedAt
	for _, meta := range s.ContainerHistory {
		if createdAt.IsZero() || meta.CreatedAt.Before(createdAt) {
			createdAt = meta.CreatedAt
		}
		if meta.LastExecutedAt.After(lastExecutedAt) {
			lastExecutedAt = meta.LastExecutedAt
		}
	}
	return createdAt, lastExecutedAt
}
