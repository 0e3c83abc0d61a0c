package sessionmgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned by lookups against an unknown session id.
var ErrSessionNotFound = fmt.Errorf("sessionmgr: session not found")

// ErrSessionExists is returned by Create when RequestedID already exists and
// EnforceNewSession is true.
var ErrSessionExists = fmt.Errorf("sessionmgr: session already exists")

// Manager is the single mutex-guarded table of sessions and container meta.
// It holds the mutex only across table mutations, never across container
// I/O, matching the concurrency model: independent sessions run
// concurrently, but one session's executeCode calls are serialized by the
// caller's contract.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	byContainer map[string]*ContainerMeta
}

// NewManager returns an empty session table.
func NewManager() *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		byContainer: make(map[string]*ContainerMeta),
	}
}

// Create registers a new session, returning its id. If cfg.RequestedID
// already exists: return it unchanged when EnforceNewSession is false, fail
// when true.
func (m *Manager) Create(cfg SessionConfig) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := cfg.RequestedID
	if id != "" {
		if _, ok := m.sessions[id]; ok {
			if cfg.EnforceNewSession {
				return "", ErrSessionExists
			}
			return id, nil
		}
	} else {
		id = uuid.New().String()
	}

	now := time.Now()
	m.sessions[id] = &Session{
		ID:        id,
		Config:    cfg,
		CreatedAt: now,
	}
	return id, nil
}

// Get returns the session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// All returns every known session id.
func (m *Manager) All() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SetCurrent assigns meta as the session's current container, appending it
// to history (idempotent on ContainerID) and indexing it by container id.
func (m *Manager) SetCurrent(sessionID string, meta *ContainerMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Current = meta
	m.appendHistoryLocked(s, meta)
	m.byContainer[meta.ContainerID] = meta
	return nil
}

// ClearCurrent detaches the session's current container without removing it
// from history.
func (m *Manager) ClearCurrent(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Current = nil
	return nil
}

// RetainIdle pushes a session's current container into its idle-retained
// list, for possible later image-matched reuse in shared-workspace mode.
func (m *Manager) RetainIdle(sessionID string, meta *ContainerMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.IdleRetained = append(s.IdleRetained, meta)
	return nil
}

// TakeIdleByImage removes and returns the first idle-retained container
// whose image matches, or nil if none match.
func (m *Manager) TakeIdleByImage(sessionID, image string) (*ContainerMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	for i, meta := range s.IdleRetained {
		if meta.ImageName == image {
			s.IdleRetained = append(s.IdleRetained[:i], s.IdleRetained[i+1:]...)
			return meta, nil
		}
	}
	return nil, nil
}

func (m *Manager) appendHistoryLocked(s *Session, meta *ContainerMeta) {
	for _, existing := range s.ContainerHistory {
		if existing.ContainerID == meta.ContainerID {
			return
		}
	}
	s.ContainerHistory = append(s.ContainerHistory, meta)
}

// ByContainer looks up meta by container id, across all sessions.
func (m *Manager) ByContainer(containerID string) (*ContainerMeta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.byContainer[containerID]
	return meta, ok
}

// UpdateContainerState toggles a container's running flag and, when
// entering the running state, stamps lastExecutedAt.
func (m *Manager) UpdateContainerState(containerID string, isRunning bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.byContainer[containerID]
	if !ok {
		return
	}
	meta.IsRunning = isRunning
	if isRunning {
		meta.LastExecutedAt = time.Now()
		if s, ok := m.sessions[meta.SessionID]; ok {
			s.LastExecutedAt = meta.LastExecutedAt
		}
	}
}

// Delete removes a session's table entry. It does not touch containers;
// callers must tear those down first.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	for _, meta := range s.ContainerHistory {
		delete(m.byContainer, meta.ContainerID)
	}
	delete(m.sessions, sessionID)
}
