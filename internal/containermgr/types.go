// Package containermgr wraps the Docker SDK client: image pulls, container
// create/start/exec/remove, and a bounded warm pool of idle containers keyed
// by image.
package containermgr

import "time"

// MountKind is the kind of host resource bound into a container.
type MountKind string

const (
	MountFile      MountKind = "file"
	MountDirectory MountKind = "directory"
	MountZip       MountKind = "zip"
)

// ContainerMount describes one host<->container bind. Files and directories
// bind directly; a zip source is extracted to a temp directory first and
// that directory is bound instead.
type ContainerMount struct {
	Kind     MountKind
	Source   string
	Target   string
	ReadOnly bool
}

// ResourceProfile is the set of caps applied at container creation and,
// optionally, re-applied per execution.
type ResourceProfile struct {
	MemoryBytes int64
	CPUPeriod   int64
	CPUQuota    int64
	PidsLimit   int64
}

// DefaultProfile is the spec's fixed security and resource profile: 512MiB
// memory, ~0.5 CPU (50ms quota per 100ms period).
func DefaultProfile() ResourceProfile {
	return ResourceProfile{
		MemoryBytes: 512 * 1024 * 1024,
		CPUPeriod:   100_000,
		CPUQuota:    50_000,
		PidsLimit:   256,
	}
}

// ContainerConfig describes how to provision a container.
type ContainerConfig struct {
	Image   string
	Mounts  []ContainerMount
	Env     map[string]string
	Name    string
	Profile ResourceProfile
}

// Container is a live, engine-managed container.
type Container struct {
	ID            string
	Name          string
	Image         string
	WorkspaceDir  string
	createdAt     time.Time
	lastUsed      time.Time
	inUse         bool
}

// CreatedAt is when the container was created.
func (c *Container) CreatedAt() time.Time { return c.createdAt }

// ExecResult is the outcome of one `exec` invocation inside a container.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}
