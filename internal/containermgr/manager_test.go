package containermgr

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if err := exec.Command("docker", "info").Run(); err != nil {
		t.Skip("docker not available, skipping container manager test")
	}
}

func TestNewManager(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()
}

func TestManagerCreateExecRemove(t *testing.T) {
	skipIfNoDocker(t)

	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	dir := t.TempDir()
	cfg := ContainerConfig{
		Image:   "alpine:latest",
		Name:    "it_test_" + t.Name(),
		Profile: DefaultProfile(),
		Mounts:  []ContainerMount{{Kind: MountDirectory, Source: dir, Target: "/workspace"}},
	}

	c, err := m.Create(ctx, cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer m.Remove(context.Background(), c.ID, true)

	res, err := m.Exec(ctx, c.ID, "/workspace", []string{"echo", "hello"}, nil, nil, nil)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("expected stdout 'hello\\n', got %q", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", res.ExitCode)
	}
}

func TestPoolAcquireReleaseReuse(t *testing.T) {
	skipIfNoDocker(t)

	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()
	pool := NewPool(m, PoolConfig{MaxSize: 2, MinSize: 0, IdleTimeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	dir := t.TempDir()
	cfg := ContainerConfig{
		Image:   "alpine:latest",
		Name:    "it_pool_test_" + t.Name(),
		Profile: DefaultProfile(),
		Mounts:  []ContainerMount{{Kind: MountDirectory, Source: dir, Target: "/workspace"}},
	}

	c1, err := pool.Acquire(ctx, cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := pool.Release(ctx, c1); err != nil {
		t.Fatalf("release: %v", err)
	}

	idle, inUse := pool.Snapshot()
	if idle != 1 || inUse != 0 {
		t.Errorf("expected 1 idle / 0 in use after release, got idle=%d inUse=%d", idle, inUse)
	}

	c2, err := pool.Acquire(ctx, cfg)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if c2.ID != c1.ID {
		t.Error("expected the released container to be reused")
	}
	_ = m.Remove(context.Background(), c2.ID, true)
}
