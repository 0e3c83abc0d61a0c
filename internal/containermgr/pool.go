package containermgr

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"apex-sandbox/internal/logging"
)

// PoolConfig bounds the warm pool's size and idle lifetime.
type PoolConfig struct {
	MaxSize     int
	MinSize     int
	IdleTimeout time.Duration
}

// DefaultPoolConfig matches the spec's defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxSize: 5, MinSize: 2, IdleTimeout: 5 * time.Minute}
}

// Pool is a bounded collection of already-created containers kept idle for
// fast acquisition, keyed implicitly by image (repository+tag, ignoring
// registry prefix).
type Pool struct {
	mgr *Manager
	cfg PoolConfig

	mu      sync.Mutex
	entries []*Container
}

// NewPool wraps mgr with warm-pool bookkeeping.
func NewPool(mgr *Manager, cfg PoolConfig) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultPoolConfig().MaxSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultPoolConfig().IdleTimeout
	}
	return &Pool{mgr: mgr, cfg: cfg}
}

// ErrPoolExhausted is returned by Acquire when no free entry matches and the
// pool has no room left to create one.
var ErrPoolExhausted = fmt.Errorf("containermgr: pool exhausted")

// workspaceMountSource returns the host source bound at /workspace, if any.
func workspaceMountSource(cfg ContainerConfig) string {
	for _, m := range cfg.Mounts {
		if m.Target == "/workspace" {
			return m.Source
		}
	}
	return ""
}

// imageKey strips a registry prefix so "docker.io/library/python:3.9-slim"
// and "python:3.9-slim" are considered the same pool key.
func imageKey(img string) string {
	parts := strings.Split(img, "/")
	return parts[len(parts)-1]
}

// Acquire returns a container bound to expectedImage: a free pooled entry if
// one matches, otherwise a freshly created one if the pool has room.
// A reused entry keeps the /workspace bind mount it was created with; its
// workspace is emptied via exec before it is handed back, so the caller
// always starts from an empty /workspace.
func (p *Pool) Acquire(ctx context.Context, cfg ContainerConfig) (*Container, error) {
	p.mu.Lock()
	for _, c := range p.entries {
		if c.inUse || imageKey(c.Image) != imageKey(cfg.Image) {
			continue
		}
		c.inUse = true
		p.mu.Unlock()

		if err := p.mgr.Start(ctx, c.ID); err != nil {
			p.drop(c)
			return nil, fmt.Errorf("start pooled container: %w", err)
		}
		if err := p.cleanWorkspace(ctx, c); err != nil {
			logging.S().Warnw("pooled container workspace clean failed, evicting", "container", c.ID, "err", err)
			_ = p.mgr.Remove(context.Background(), c.ID, true)
			p.drop(c)
			return nil, fmt.Errorf("clean pooled workspace: %w", err)
		}
		return c, nil
	}

	if len(p.entries) >= p.cfg.MaxSize {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.mu.Unlock()

	c, err := p.mgr.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.inUse = true
	c.WorkspaceDir = workspaceMountSource(cfg)
	p.mu.Lock()
	p.entries = append(p.entries, c)
	p.mu.Unlock()
	return c, nil
}

// ReleaseByID looks up a tracked entry by container id and releases it back
// to the pool, for callers that only retain a container id (e.g. the
// session manager's ContainerMeta) rather than the *Container pointer.
func (p *Pool) ReleaseByID(ctx context.Context, containerID string) error {
	p.mu.Lock()
	var c *Container
	for _, e := range p.entries {
		if e.ID == containerID {
			c = e
			break
		}
	}
	p.mu.Unlock()
	if c == nil {
		return fmt.Errorf("containermgr: container %s not tracked by pool", containerID)
	}
	return p.Release(ctx, c)
}

// Release returns a container to the pool: clean its workspace, mark it
// free, stamp lastUsed, then run maintenance.
func (p *Pool) Release(ctx context.Context, c *Container) error {
	if err := p.cleanWorkspace(ctx, c); err != nil {
		logging.S().Warnw("released container workspace clean failed, removing from pool", "container", c.ID, "err", err)
		_ = p.mgr.Remove(context.Background(), c.ID, true)
		p.drop(c)
		return fmt.Errorf("clean workspace on release: %w", err)
	}

	p.mu.Lock()
	c.inUse = false
	c.lastUsed = time.Now()
	image := c.Image
	p.mu.Unlock()

	p.maintain(ctx, image)
	return nil
}

func (p *Pool) cleanWorkspace(ctx context.Context, c *Container) error {
	res, err := p.mgr.Exec(ctx, c.ID, "/workspace", []string{"sh", "-c", "rm -rf /workspace/* /workspace/..?* /workspace/.[!.]* 2>/dev/null; true"}, nil, nil, nil)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("workspace cleanup exec exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// maintain evicts idle entries older than IdleTimeout and tops the pool back
// up to MinSize with fresh containers of the given image.
func (p *Pool) maintain(ctx context.Context, image string) {
	now := time.Now()

	p.mu.Lock()
	var stale []*Container
	kept := p.entries[:0:0]
	for _, c := range p.entries {
		if !c.inUse && now.Sub(c.lastUsed) > p.cfg.IdleTimeout {
			stale = append(stale, c)
			continue
		}
		kept = append(kept, c)
	}
	p.entries = kept
	freeCount := 0
	for _, c := range p.entries {
		if !c.inUse && imageKey(c.Image) == imageKey(image) {
			freeCount++
		}
	}
	p.mu.Unlock()

	for _, c := range stale {
		if err := p.mgr.Remove(ctx, c.ID, true); err != nil {
			logging.S().Warnw("idle eviction remove failed", "container", c.ID, "err", err)
		}
	}

	for freeCount < p.cfg.MinSize {
		c, err := p.mgr.Create(ctx, ContainerConfig{Image: image, Profile: DefaultProfile()})
		if err != nil {
			logging.S().Warnw("pool top-up create failed", "image", image, "err", err)
			return
		}
		p.mu.Lock()
		p.entries = append(p.entries, c)
		p.mu.Unlock()
		freeCount++
	}
}

// drop removes c from the pool's tracked entries without touching the
// container runtime.
func (p *Pool) drop(c *Container) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e == c {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return
		}
	}
}

// Snapshot returns a point-in-time copy of pool occupancy for metrics.
func (p *Pool) Snapshot() (idle, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.entries {
		if c.inUse {
			inUse++
		} else {
			idle++
		}
	}
	return idle, inUse
}

// RemoveAll force-removes every pooled container, used by the manager-wide
// Cleanup sweep.
func (p *Pool) RemoveAll(ctx context.Context) {
	p.mu.Lock()
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()
	for _, c := range entries {
		if err := p.mgr.Remove(ctx, c.ID, true); err != nil {
			logging.S().Warnw("pool cleanup remove failed", "container", c.ID, "err", err)
		}
	}
}
