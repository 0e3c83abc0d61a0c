package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"apex-sandbox/internal/config"
	"apex-sandbox/internal/containermgr"
	"apex-sandbox/internal/langregistry"
	"apex-sandbox/internal/logging"
	"apex-sandbox/internal/metrics"
	"apex-sandbox/internal/sessionmgr"
	"apex-sandbox/internal/temppath"
)

// poolMetricsInterval is how often the pool occupancy gauge is refreshed.
const poolMetricsInterval = 5 * time.Second

// Verbosity controls how chatty the engine's own logging is.
type Verbosity string

const (
	VerbosityInfo  Verbosity = "info"
	VerbosityDebug Verbosity = "debug"
)

// Engine is the orchestrator's execution engine.
type Engine struct {
	registry *langregistry.Registry
	mgr      *containermgr.Manager
	pool     *containermgr.Pool
	sessions *sessionmgr.Manager
	temp     *temppath.Helper
	metrics  *metrics.Metrics
	cfg      config.Config

	verbosityMu sync.RWMutex
	verbosity   Verbosity

	closeOnce   sync.Once
	stopMetrics chan struct{}
}

// New wires up an Engine from configuration. The caller owns its lifetime
// and must call Cleanup before dropping the last reference.
func New(cfg config.Config) (*Engine, error) {
	mgr, err := containermgr.NewManager(cfg.DockerHost)
	if err != nil {
		return nil, fmt.Errorf("engine: init container manager: %w", err)
	}

	pool := containermgr.NewPool(mgr, containermgr.PoolConfig{
		MaxSize:     cfg.PoolMaxSize,
		MinSize:     cfg.PoolMinSize,
		IdleTimeout: cfg.PoolIdleTimeout,
	})

	e := &Engine{
		registry:    langregistry.Default(),
		mgr:         mgr,
		pool:        pool,
		sessions:    sessionmgr.NewManager(),
		temp:        temppath.New(cfg.WorkspaceRoot),
		metrics:     metrics.Get(),
		cfg:         cfg,
		verbosity:   VerbosityInfo,
		stopMetrics: make(chan struct{}),
	}
	go e.reportPoolMetrics()
	return e, nil
}

// reportPoolMetrics periodically samples the warm pool's idle/in-use
// occupancy into the sandbox_pool_containers gauge, until Close is called.
func (e *Engine) reportPoolMetrics() {
	ticker := time.NewTicker(poolMetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			idle, inUse := e.pool.Snapshot()
			e.metrics.PoolContainers.WithLabelValues("idle").Set(float64(idle))
			e.metrics.PoolContainers.WithLabelValues("in_use").Set(float64(inUse))
		case <-e.stopMetrics:
			return
		}
	}
}

// Close stops the engine's background metrics reporter. Safe to call more
// than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.stopMetrics)
	})
}

// SetVerbosity adjusts how chatty the engine's logging is.
func (e *Engine) SetVerbosity(v Verbosity) {
	e.verbosityMu.Lock()
	defer e.verbosityMu.Unlock()
	e.verbosity = v
}

func (e *Engine) isDebug() bool {
	e.verbosityMu.RLock()
	defer e.verbosityMu.RUnlock()
	return e.verbosity == VerbosityDebug
}

// CreateSession registers a new session per cfg, returning its id.
func (e *Engine) CreateSession(cfg sessionmgr.SessionConfig) (string, error) {
	id, err := e.sessions.Create(cfg)
	if err != nil {
		return "", err
	}
	if e.isDebug() {
		logging.S().Debugw("session created", "sessionId", id, "strategy", cfg.Strategy)
	}
	return id, nil
}

// GetSessionInfo returns the derived, caller-facing view of a session.
func (e *Engine) GetSessionInfo(sessionID string) (SessionInfo, error) {
	s, err := e.sessions.Get(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	createdAt, lastExecutedAt := s.Derived()
	return SessionInfo{
		SessionID:      s.ID,
		CreatedAt:      createdAt.UnixMilli(),
		LastExecutedAt: lastExecutedAt.UnixMilli(),
		IsActive:       s.IsActive(),
	}, nil
}

// newContainerName allocates a unique, prefixed container name.
func newContainerName() string {
	return containermgr.NamePrefix + uuid.New().String()
}
