package engine

import (
	"context"
	"fmt"
	"os"

	"apex-sandbox/internal/containermgr"
	"apex-sandbox/internal/langregistry"
	"apex-sandbox/internal/logging"
	"apex-sandbox/internal/sessionmgr"
)

// acquireContainer implements Step 3 of executeCode: select or provision a
// container and its workspace per the session's placement strategy. The
// returned bool reports whether the container+workspace is freshly prepared
// this call (so the caller knows whether to (re)materialize manifest files).
func (e *Engine) acquireContainer(ctx context.Context, s *sessionmgr.Session, plugin langregistry.Plugin, image string, opts ExecutionOptions) (*sessionmgr.ContainerMeta, bool, error) {
	switch s.Config.Strategy {
	case sessionmgr.PerExecution:
		return e.acquireFresh(ctx, s, image, opts)

	case sessionmgr.Pool:
		return e.acquirePooled(ctx, s, image, opts)

	case sessionmgr.PerSession:
		return e.acquirePerSession(ctx, s, image, opts)

	default:
		return nil, false, ErrUnsupportedStrategy
	}
}

// acquireFresh always creates a brand-new container and workspace directory,
// used for PER_EXECUTION.
func (e *Engine) acquireFresh(ctx context.Context, s *sessionmgr.Session, image string, opts ExecutionOptions) (*sessionmgr.ContainerMeta, bool, error) {
	name := newContainerName()
	workspaceDir, err := e.temp.DirFor(name)
	if err != nil {
		return nil, false, err
	}
	cfg := e.buildContainerConfig(s, image, name, workspaceDir)
	c, err := e.mgr.Create(ctx, cfg)
	if err != nil {
		return nil, false, err
	}
	meta := sessionmgr.NewContainerMeta(s.ID, c.ID, image, name, workspaceDir)
	if err := e.sessions.SetCurrent(s.ID, meta); err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

func (e *Engine) acquirePooled(ctx context.Context, s *sessionmgr.Session, image string, opts ExecutionOptions) (*sessionmgr.ContainerMeta, bool, error) {
	if s.Current != nil {
		if s.Current.ImageName == image {
			return s.Current, false, nil
		}
		if err := e.mgr.Remove(ctx, s.Current.ContainerID, true); err != nil {
			return nil, false, fmt.Errorf("engine: detach mismatched pooled container: %w", err)
		}
		_ = os.RemoveAll(s.Current.WorkspaceDir)
		if err := e.sessions.ClearCurrent(s.ID); err != nil {
			return nil, false, err
		}
	}

	name := newContainerName()
	workspaceDir, err := e.temp.DirFor(name)
	if err != nil {
		return nil, false, err
	}
	cfg := e.buildContainerConfig(s, image, name, workspaceDir)
	c, err := e.pool.Acquire(ctx, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("engine: acquire from pool: %w", err)
	}
	// A warm container may still carry a previous borrower's per-execution
	// override; re-apply the base profile before handing it out.
	if err := e.mgr.UpdateResources(ctx, c.ID, cfg.Profile); err != nil {
		logging.S().Warnw("pooled container base profile reset failed, continuing with prior limits", "container", c.ID, "err", err)
	}
	meta := sessionmgr.NewContainerMeta(s.ID, c.ID, image, c.Name, c.WorkspaceDir)
	if err := e.sessions.SetCurrent(s.ID, meta); err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

func (e *Engine) acquirePerSession(ctx context.Context, s *sessionmgr.Session, image string, opts ExecutionOptions) (*sessionmgr.ContainerMeta, bool, error) {
	if s.Current != nil && s.Current.ImageName == image {
		return s.Current, false, nil
	}

	if s.Current != nil && opts.WorkspaceSharing == sessionmgr.Shared {
		outgoing := s.Current
		if err := e.mgr.Stop(ctx, outgoing.ContainerID); err != nil {
			return nil, false, fmt.Errorf("engine: stop outgoing session container: %w", err)
		}
		if err := e.sessions.RetainIdle(s.ID, outgoing); err != nil {
			return nil, false, err
		}
		if err := e.sessions.ClearCurrent(s.ID); err != nil {
			return nil, false, err
		}

		idle, err := e.sessions.TakeIdleByImage(s.ID, image)
		if err != nil {
			return nil, false, err
		}
		if idle != nil {
			if err := e.mgr.Start(ctx, idle.ContainerID); err != nil {
				return nil, false, fmt.Errorf("engine: restart idle-retained container: %w", err)
			}
			if err := e.sessions.SetCurrent(s.ID, idle); err != nil {
				return nil, false, err
			}
			return idle, true, nil
		}

		workspaceDir, err := e.temp.DirFor(s.ID)
		if err != nil {
			return nil, false, err
		}
		name := newContainerName()
		cfg := e.buildContainerConfig(s, image, name, workspaceDir)
		c, err := e.mgr.Create(ctx, cfg)
		if err != nil {
			return nil, false, err
		}
		meta := sessionmgr.NewContainerMeta(s.ID, c.ID, image, name, workspaceDir)
		if err := e.sessions.SetCurrent(s.ID, meta); err != nil {
			return nil, false, err
		}
		return meta, true, nil
	}

	// Non-shared (isolated): remove and replace on mismatch, fresh directory.
	if s.Current != nil {
		if err := e.mgr.Remove(ctx, s.Current.ContainerID, true); err != nil {
			return nil, false, fmt.Errorf("engine: remove mismatched session container: %w", err)
		}
		_ = os.RemoveAll(s.Current.WorkspaceDir)
		if err := e.sessions.ClearCurrent(s.ID); err != nil {
			return nil, false, err
		}
	}

	name := newContainerName()
	var workspaceDir string
	var err error
	if opts.WorkspaceSharing == sessionmgr.Shared {
		workspaceDir, err = e.temp.DirFor(s.ID)
	} else {
		workspaceDir, err = e.temp.DirFor(name)
	}
	if err != nil {
		return nil, false, err
	}

	cfg := e.buildContainerConfig(s, image, name, workspaceDir)
	c, err := e.mgr.Create(ctx, cfg)
	if err != nil {
		return nil, false, err
	}
	meta := sessionmgr.NewContainerMeta(s.ID, c.ID, image, name, workspaceDir)
	if err := e.sessions.SetCurrent(s.ID, meta); err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

// buildContainerConfig clones the session's configured mounts/env/profile,
// substituting image, name, and the /workspace mount for this acquisition.
func (e *Engine) buildContainerConfig(s *sessionmgr.Session, image, name, workspaceDir string) containermgr.ContainerConfig {
	cfg := s.Config.ContainerConfig
	cfg.Image = image
	cfg.Name = name

	mounts := make([]containermgr.ContainerMount, 0, len(cfg.Mounts)+1)
	for _, m := range cfg.Mounts {
		if m.Target == "/workspace" {
			continue
		}
		mounts = append(mounts, m)
	}
	mounts = append(mounts, containermgr.ContainerMount{
		Kind:   containermgr.MountDirectory,
		Source: workspaceDir,
		Target: "/workspace",
	})
	cfg.Mounts = mounts

	if cfg.Profile.MemoryBytes == 0 {
		cfg.Profile = containermgr.DefaultProfile()
	}
	return cfg
}
