package engine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"apex-sandbox/internal/logging"
	"apex-sandbox/internal/sessionmgr"
)

// CleanupSession tears down a session's container(s) and, unless
// keepGenerated is set, its workspace directory. POOL containers are
// released back to the pool rather than removed.
func (e *Engine) CleanupSession(ctx context.Context, sessionID string, keepGenerated bool) error {
	s, err := e.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	if s.Current != nil {
		if err := e.retireContainer(ctx, s.Config.Strategy, s.Current, keepGenerated); err != nil {
			logging.S().Warnw("cleanup: retire current container failed", "sessionId", sessionID, "err", err)
		}
	}

	for _, idle := range s.IdleRetained {
		if err := e.retireContainer(ctx, s.Config.Strategy, idle, keepGenerated); err != nil {
			logging.S().Warnw("cleanup: retire idle-retained container failed", "sessionId", sessionID, "err", err)
		}
	}

	e.sessions.Delete(sessionID)
	return nil
}

// retireContainer disposes of one container per strategy and retention
// preference. Failures are logged and treated as best-effort, per the
// cleanup error-handling design.
func (e *Engine) retireContainer(ctx context.Context, strategy sessionmgr.PlacementStrategy, meta *sessionmgr.ContainerMeta, keepGenerated bool) error {
	if strategy == sessionmgr.Pool {
		return e.pool.ReleaseByID(ctx, meta.ContainerID)
	}

	if keepGenerated {
		if err := pruneToGenerated(meta.WorkspaceDir, meta.SessionGeneratedFiles); err != nil {
			logging.S().Warnw("cleanup: prune workspace failed", "container", meta.ContainerID, "err", err)
		}
		return e.mgr.Remove(ctx, meta.ContainerID, true)
	}

	if err := e.mgr.Remove(ctx, meta.ContainerID, true); err != nil {
		return err
	}
	return os.RemoveAll(meta.WorkspaceDir)
}

// Cleanup tears down every known session, then, unless keepGenerated is set,
// runs the Container Manager's orphan sweep to recover from crashes. It also
// stops the engine's background metrics reporter, since Cleanup is the
// terminal operation of the engine's lifetime.
func (e *Engine) Cleanup(ctx context.Context, keepGenerated bool) {
	defer e.Close()

	for _, id := range e.sessions.All() {
		if err := e.CleanupSession(ctx, id, keepGenerated); err != nil {
			logging.S().Warnw("cleanup: session cleanup failed", "sessionId", id, "err", err)
		}
	}

	if keepGenerated {
		return
	}

	e.pool.RemoveAll(ctx)

	managed, err := e.mgr.ListManagedByPrefix(ctx)
	if err != nil {
		logging.S().Warnw("cleanup: orphan sweep list failed", "err", err)
		return
	}
	for _, c := range managed {
		if c.State == "running" {
			continue
		}
		if err := e.mgr.Remove(ctx, c.ID, true); err != nil {
			logging.S().Warnw("cleanup: orphan remove failed", "container", c.ID, "err", err)
			continue
		}
		if dir, err := e.temp.PathFor(orphanWorkspaceName(c.Names)); err == nil {
			_ = os.RemoveAll(dir)
		}
	}
}

// pruneToGenerated deletes every file under dir not present in keep, then
// removes now-empty directories bottom-up, keeping the root.
func pruneToGenerated(dir string, keep map[string]struct{}) error {
	var files []string
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
		files = append(files, path)
		return nil
	})
	if err != nil {
		return err
	}

	for _, f := range files {
		if _, ok := keep[f]; ok {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return removeEmptyDirsBottomUp(dir)
}

// orphanWorkspaceName recovers the container name (and thus its host
// workspace directory) from a Docker API name list, which carries a leading
// slash.
func orphanWorkspaceName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

func removeEmptyDirsBottomUp(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i]) // no-op if non-empty
	}
	return nil
}
