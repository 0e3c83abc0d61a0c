package containermgr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"apex-sandbox/internal/logging"
)

// NamePrefix marks containers this manager owns, so the orphan sweep in
// Cleanup can recognize them after a crash.
const NamePrefix = "it_"

// Manager wraps a Docker SDK client with the orchestrator's container
// lifecycle operations. It does not itself hold pool state; Pool composes a
// Manager with warm-container bookkeeping.
type Manager struct {
	cli *client.Client
}

// NewManager builds a Docker SDK client from the standard environment
// variables (DOCKER_HOST, DOCKER_TLS_VERIFY, ...), matching the SDK client
// construction used elsewhere for sandboxed execution. No connection to the
// daemon is made until the first API call.
func NewManager(dockerHost string) (*Manager, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client init: %w", err)
	}
	return &Manager{cli: cli}, nil
}

// Close releases the underlying Docker SDK client.
func (m *Manager) Close() error {
	return m.cli.Close()
}

// EnsureImage pulls image if it is not already present locally, awaiting
// pull completion before returning.
func (m *Manager) EnsureImage(ctx context.Context, imageName string) error {
	_, _, err := m.cli.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil
	}
	logging.S().Infow("pulling container image", "image", imageName)
	rc, pullErr := m.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if pullErr != nil {
		return fmt.Errorf("pull image %s: %w", imageName, pullErr)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("await image pull %s: %w", imageName, err)
	}
	return nil
}

// idleCommand keeps a container alive across multiple exec calls.
var idleCommand = []string{"tail", "-f", "/dev/null"}

// Create provisions a new container per cfg. The container is started
// before Create returns.
func (m *Manager) Create(ctx context.Context, cfg ContainerConfig) (*Container, error) {
	if err := m.EnsureImage(ctx, cfg.Image); err != nil {
		return nil, err
	}

	mounts, err := resolveMounts(cfg.Mounts)
	if err != nil {
		return nil, err
	}

	profile := cfg.Profile
	pidsLimit := profile.PidsLimit

	hostCfg := &container.HostConfig{
		SecurityOpt: []string{"no-new-privileges:true"},
		Mounts:      mounts,
		NetworkMode: "bridge",
		Resources: container.Resources{
			Memory:     profile.MemoryBytes,
			MemorySwap: profile.MemoryBytes,
			CPUPeriod:  profile.CPUPeriod,
			CPUQuota:   profile.CPUQuota,
			PidsLimit:  &pidsLimit,
		},
	}

	created, err := m.cli.ContainerCreate(ctx, &container.Config{
		Image:        cfg.Image,
		Cmd:          idleCommand,
		Env:          flattenEnv(cfg.Env),
		WorkingDir:   "/workspace",
		Tty:          true,
		AttachStdout: true,
		AttachStderr: true,
	}, hostCfg, &network.NetworkingConfig{}, nil, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	if err := m.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = m.Remove(context.Background(), created.ID, true)
		return nil, fmt.Errorf("start container: %w", err)
	}

	now := time.Now()
	return &Container{
		ID:           created.ID,
		Name:         cfg.Name,
		Image:        cfg.Image,
		WorkspaceDir: workspaceMountSource(cfg),
		createdAt:    now,
		lastUsed:     now,
	}, nil
}

// Start ensures a previously created container is running.
func (m *Manager) Start(ctx context.Context, containerID string) error {
	running, _, err := m.Inspect(ctx, containerID)
	if err != nil {
		return err
	}
	if running {
		return nil
	}
	if err := m.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", containerID, err)
	}
	return nil
}

// Stop gracefully stops a running container without removing it, used when
// a PER_SESSION container is retained idle for possible later reuse.
func (m *Manager) Stop(ctx context.Context, containerID string) error {
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("stop container %s: %w", containerID, err)
	}
	return nil
}

// Inspect reports whether the container is running and its image name.
func (m *Manager) Inspect(ctx context.Context, containerID string) (running bool, imageName string, err error) {
	info, err := m.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return false, "", fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	running = info.State != nil && info.State.Running
	return running, info.Config.Image, nil
}

// UpdateResources applies a new resource profile to a live container,
// matching the engine's per-execution override step.
func (m *Manager) UpdateResources(ctx context.Context, containerID string, profile ResourceProfile) error {
	pidsLimit := profile.PidsLimit
	_, err := m.cli.ContainerUpdate(ctx, containerID, container.UpdateConfig{
		Resources: container.Resources{
			Memory:     profile.MemoryBytes,
			MemorySwap: profile.MemoryBytes,
			CPUPeriod:  profile.CPUPeriod,
			CPUQuota:   profile.CPUQuota,
			PidsLimit:  &pidsLimit,
		},
	})
	if err != nil {
		return fmt.Errorf("update container %s resources: %w", containerID, err)
	}
	return nil
}

// Remove force-removes a container. Workspace directory removal is the
// caller's responsibility (the temppath package owns that mapping).
func (m *Manager) Remove(ctx context.Context, containerID string, force bool) error {
	err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}
	return nil
}

// Kill force-kills a running container, used on exec timeout.
func (m *Manager) Kill(ctx context.Context, containerID string) error {
	if err := m.cli.ContainerKill(ctx, containerID, "SIGKILL"); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("kill container %s: %w", containerID, err)
	}
	return nil
}

// StreamSink receives raw output chunks as they are read off the exec
// stream. Implementations must not block the reader; they may drop chunks
// at their own discretion but must never reorder them.
type StreamSink func(chunk string)

// Exec runs argv inside containerID's workspace, demultiplexing the
// attached stream into stdout/stderr and optionally forwarding chunks to
// sinks as they arrive.
func (m *Manager) Exec(ctx context.Context, containerID, workdir string, argv []string, env map[string]string, stdoutSink, stderrSink StreamSink) (ExecResult, error) {
	execCfg := container.ExecOptions{
		Cmd:          argv,
		Env:          flattenEnv(env),
		WorkingDir:   workdir,
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := m.cli.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec create: %w", err)
	}

	attach, err := m.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	stdoutW := &sinkWriter{buf: &stdout, sink: stdoutSink}
	stderrW := &sinkWriter{buf: &stderr, sink: stderrSink}
	if _, err := stdcopy.StdCopy(stdoutW, stderrW, attach.Reader); err != nil && err != io.EOF {
		return ExecResult{}, fmt.Errorf("exec stream read: %w", err)
	}

	inspect, err := m.cli.ContainerExecInspect(ctx, created.ID)
	exitCode := 1
	if err == nil {
		exitCode = inspect.ExitCode
	}

	return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

// sinkWriter appends to buf and, if sink is non-nil, forwards each write
// synchronously. It never reorders chunks relative to its own stream.
type sinkWriter struct {
	buf  *bytes.Buffer
	sink StreamSink
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if w.sink != nil && n > 0 {
		w.sink(string(p[:n]))
	}
	return n, err
}

// ListManagedByPrefix enumerates every container (running or not) whose
// name carries NamePrefix, used by the orphan sweep.
func (m *Manager) ListManagedByPrefix(ctx context.Context) ([]dockertypes.Container, error) {
	all, err := m.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	out := make([]dockertypes.Container, 0)
	for _, c := range all {
		for _, name := range c.Names {
			if strings.Contains(name, NamePrefix) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
