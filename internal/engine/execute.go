package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"apex-sandbox/internal/containermgr"
	"apex-sandbox/internal/langregistry"
	"apex-sandbox/internal/logging"
	"apex-sandbox/internal/sessionmgr"
)

// ExecuteCode is the engine's central operation: it selects or provisions a
// container per the session's placement strategy, prepares a workspace,
// installs dependencies idempotently, writes and runs the user's code (or
// validates a run-app mount), and reports generated files and streams.
func (e *Engine) ExecuteCode(ctx context.Context, sessionID string, opts ExecutionOptions) (ExecutionResult, error) {
	// Step 1 — validate.
	s, err := e.sessions.Get(sessionID)
	if err != nil {
		return ExecutionResult{}, err
	}
	if opts.WorkspaceSharing == sessionmgr.Shared && s.Config.Strategy != sessionmgr.PerSession {
		return ExecutionResult{}, ErrSharedWorkspaceRequiresPerSession
	}

	plugin, err := e.registry.Get(opts.Language)
	if err != nil {
		return ExecutionResult{}, err
	}

	// Step 2 — resolve image.
	image := plugin.DefaultImage()
	if s.Config.ContainerConfig.Image != "" {
		image = s.Config.ContainerConfig.Image
	}

	if opts.RunApp != nil {
		if !hasMountTarget(s.Config.ContainerConfig.Mounts, opts.RunApp.Cwd) {
			return ExecutionResult{}, ErrRunAppMountMissing
		}
	}

	// Step 3 — acquire container and workspace.
	meta, fresh, err := e.acquireContainer(ctx, s, plugin, image, opts)
	if err != nil {
		return ExecutionResult{}, err
	}
	e.sessions.UpdateContainerState(meta.ContainerID, true)

	materializeDir := meta.WorkspaceDir
	if opts.RunApp != nil {
		if src, ok := mountSourceFor(s.Config.ContainerConfig.Mounts, opts.RunApp.Cwd); ok {
			materializeDir = src
		}
	}

	if fresh || !meta.DepsInstalled || meta.DepsChecksum != dependencyChecksum(opts.Dependencies) {
		if err := plugin.Materialize(ctx, langregistry.MaterializeOptions{
			Code:         opts.Code,
			Dependencies: opts.Dependencies,
		}, materializeDir); err != nil {
			e.sessions.UpdateContainerState(meta.ContainerID, false)
			return ExecutionResult{}, fmt.Errorf("engine: materialize workspace: %w", err)
		}
	}

	// Step 4 — per-execution resource overrides.
	if opts.CPULimit > 0 || opts.MemoryLimit != "" {
		base := s.Config.ContainerConfig.Profile
		if base.MemoryBytes == 0 {
			base = containermgr.DefaultProfile()
		}
		profile, err := resourceOverride(base, opts.CPULimit, opts.MemoryLimit)
		if err != nil {
			logging.S().Warnw("invalid resource override, continuing with prior limits", "sessionId", sessionID, "err", err)
		} else if err := e.mgr.UpdateResources(ctx, meta.ContainerID, profile); err != nil {
			logging.S().Warnw("resource override failed, continuing with prior limits", "sessionId", sessionID, "err", err)
		}
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	// Step 5 — capture baseline.
	baseline, err := snapshotWorkspace(meta.WorkspaceDir)
	if err != nil {
		e.sessions.UpdateContainerState(meta.ContainerID, false)
		return ExecutionResult{}, err
	}

	// Step 6 — dependency phase.
	installDir := "/workspace"
	if opts.RunApp != nil {
		installDir = opts.RunApp.Cwd
	}
	depStdout, depStderr, err := e.runDependencyPhase(execCtx, meta, plugin, opts, installDir)
	if err != nil {
		e.sessions.UpdateContainerState(meta.ContainerID, false)
		return ExecutionResult{}, err
	}
	if meta.DepsInstalled {
		baseline, err = snapshotWorkspace(meta.WorkspaceDir)
		if err != nil {
			e.sessions.UpdateContainerState(meta.ContainerID, false)
			return ExecutionResult{}, err
		}
	}

	// Step 7 — prepare run target.
	workdir := "/workspace"
	var argv []string
	if opts.RunApp != nil {
		workdir = opts.RunApp.Cwd
		argv = plugin.RunAppCommand(opts.RunApp.EntryFile, meta.DepsInstalled)
	} else {
		if err := e.writeInlineSnippet(execCtx, meta, plugin, opts.Code); err != nil {
			e.sessions.UpdateContainerState(meta.ContainerID, false)
			return ExecutionResult{}, err
		}
		// The snippet file exists before user code starts, so it belongs to
		// the baseline rather than to this run's generated files.
		baseline, err = snapshotWorkspace(meta.WorkspaceDir)
		if err != nil {
			e.sessions.UpdateContainerState(meta.ContainerID, false)
			return ExecutionResult{}, err
		}
		argv = plugin.InlineCommand(meta.DepsInstalled)
	}

	// Step 8 — execute.
	start := time.Now()
	result, err := e.mgr.Exec(execCtx, meta.ContainerID, workdir, argv, s.Config.ContainerConfig.Env, toManagerSink(opts.Stdout), toManagerSink(opts.Stderr))
	elapsed := time.Since(start)
	if err != nil {
		e.sessions.UpdateContainerState(meta.ContainerID, false)
		if execCtx.Err() == context.DeadlineExceeded {
			_ = e.mgr.Kill(context.Background(), meta.ContainerID)
			e.metrics.ExecutionsTotal.WithLabelValues("timeout").Inc()
			return ExecutionResult{}, ErrTimeout
		}
		e.metrics.ExecutionsTotal.WithLabelValues("error").Inc()
		return ExecutionResult{}, err
	}
	e.metrics.ExecutionDuration.Observe(elapsed.Seconds())
	e.metrics.ExecutionsTotal.WithLabelValues("completed").Inc()

	// Step 9 — post-run accounting.
	current, err := snapshotWorkspace(meta.WorkspaceDir)
	if err != nil {
		e.sessions.UpdateContainerState(meta.ContainerID, false)
		return ExecutionResult{}, err
	}
	generatedAbs := diffGenerated(meta.WorkspaceDir, baseline, current)
	meta.GeneratedFiles = toSet(generatedAbs)
	if meta.SessionGeneratedFiles == nil {
		meta.SessionGeneratedFiles = make(map[string]struct{})
	}
	for _, p := range generatedAbs {
		meta.SessionGeneratedFiles[p] = struct{}{}
	}
	meta.LastExecutedAt = time.Now()
	meta.IsRunning = false
	e.sessions.UpdateContainerState(meta.ContainerID, false)

	sessionGenerated := make([]string, 0, len(meta.SessionGeneratedFiles))
	for p := range meta.SessionGeneratedFiles {
		sessionGenerated = append(sessionGenerated, p)
	}

	out := ExecutionResult{
		Stdout:                result.Stdout,
		Stderr:                result.Stderr,
		DependencyStdout:      depStdout,
		DependencyStderr:      depStderr,
		ExitCode:              result.ExitCode,
		ExecutionTimeMillis:   elapsed.Milliseconds(),
		WorkspaceDir:          meta.WorkspaceDir,
		GeneratedFiles:        relWorkspacePaths(meta.WorkspaceDir, generatedAbs),
		SessionGeneratedFiles: relWorkspacePaths(meta.WorkspaceDir, sessionGenerated),
		SessionID:             sessionID,
		ContainerID:           meta.ContainerID,
	}

	// Step 10 — return/retain.
	switch s.Config.Strategy {
	case sessionmgr.PerExecution:
		_ = e.mgr.Remove(context.Background(), meta.ContainerID, true)
		_ = os.RemoveAll(meta.WorkspaceDir)
		e.sessions.Delete(sessionID)
	case sessionmgr.Pool:
		// leave bound; released to the pool at cleanupSession.
	case sessionmgr.PerSession:
		// keep running.
	}

	return out, nil
}

// runDependencyPhase implements Step 6: checksum-based install caching. On
// every path that doesn't end in a confirmed successful install, it marks
// meta.DepsInstalled false so the run-target command builders (Step 7) never
// see a stale true left over from a different, now-reinstalled dependency set.
func (e *Engine) runDependencyPhase(ctx context.Context, meta *sessionmgr.ContainerMeta, plugin langregistry.Plugin, opts ExecutionOptions, workDir string) (stdout, stderr string, err error) {
	newChecksum := dependencyChecksum(opts.Dependencies)
	if meta.DepsInstalled && meta.DepsChecksum == newChecksum {
		e.metrics.DependencyCacheTotal.WithLabelValues("hit").Inc()
		return "", "", nil
	}
	e.metrics.DependencyCacheTotal.WithLabelValues("miss").Inc()
	meta.DepsInstalled = false

	execFn := func(ctx context.Context, workdir string, argv []string, env map[string]string) (string, string, int, error) {
		res, err := e.mgr.Exec(ctx, meta.ContainerID, workdir, argv, env, toManagerSink(opts.DependencyStdout), toManagerSink(opts.DependencyStderr))
		if err != nil {
			return "", "", 1, err
		}
		return res.Stdout, res.Stderr, res.ExitCode, nil
	}

	stdout, stderr, exitCode, installErr := plugin.InstallDependencies(ctx, langregistry.InstallOptions{
		Dependencies: opts.Dependencies,
		WorkDir:      workDir,
		Exec:         execFn,
	})
	if installErr == langregistry.ErrNoInstallPhase {
		meta.DepsInstalled = true
		meta.DepsChecksum = newChecksum
		return "", "", nil
	}
	if installErr != nil {
		logging.S().Warnw("dependency install routine failed", "container", meta.ContainerID, "err", installErr)
		return stdout, stderr, nil
	}
	if exitCode != 0 {
		return stdout, stderr, nil
	}

	meta.DepsInstalled = true
	meta.DepsChecksum = newChecksum
	return stdout, stderr, nil
}

// writeInlineSnippet writes code into /workspace/<inlineFilename> via an
// in-container here-document exec, so POOL containers whose workspace was
// cleaned via exec see the file immediately, then marks it executable when
// the plugin requires it (shell only).
func (e *Engine) writeInlineSnippet(ctx context.Context, meta *sessionmgr.ContainerMeta, plugin langregistry.Plugin, code string) error {
	target := "/workspace/" + plugin.InlineFilename()
	heredoc := fmt.Sprintf("cat <<'SANDBOX_EOF' > %s\n%s\nSANDBOX_EOF", target, code)
	res, err := e.mgr.Exec(ctx, meta.ContainerID, "/workspace", []string{"sh", "-c", heredoc}, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("engine: write inline snippet: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("engine: write inline snippet exited %d: %s", res.ExitCode, res.Stderr)
	}
	if plugin.Executable() {
		chres, err := e.mgr.Exec(ctx, meta.ContainerID, "/workspace", []string{"chmod", "+x", target}, nil, nil, nil)
		if err != nil {
			return fmt.Errorf("engine: chmod inline snippet: %w", err)
		}
		if chres.ExitCode != 0 {
			return fmt.Errorf("engine: chmod inline snippet exited %d: %s", chres.ExitCode, chres.Stderr)
		}
	}
	return nil
}

func hasMountTarget(mounts []containermgr.ContainerMount, target string) bool {
	for _, m := range mounts {
		if m.Kind == containermgr.MountDirectory && m.Target == target {
			return true
		}
	}
	return false
}

// mountSourceFor returns the host-side path bound to a container-side mount
// target, for routing the Materialize call at a run-app's cwd rather than at
// the container's default /workspace mount.
func mountSourceFor(mounts []containermgr.ContainerMount, target string) (string, bool) {
	for _, m := range mounts {
		if m.Kind == containermgr.MountDirectory && m.Target == target {
			return m.Source, true
		}
	}
	return "", false
}

func toSet(paths []string) map[string]struct{} {
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		out[p] = struct{}{}
	}
	return out
}

func toManagerSink(s StreamSink) containermgr.StreamSink {
	if s == nil {
		return nil
	}
	return containermgr.StreamSink(s)
}
