// Package langregistry is the process-wide table mapping a language name to
// the plugin describing how to materialize, install dependencies for, and
// invoke that language inside a sandbox container.
package langregistry

import "context"

// ContainerExecFunc runs argv inside a live container's workspace and
// returns its captured stdout, stderr and exit code. The engine supplies the
// concrete implementation (backed by the container manager); plugins never
// talk to the container runtime directly.
type ContainerExecFunc func(ctx context.Context, workdir string, argv []string, env map[string]string) (stdout, stderr string, exitCode int, err error)

// MaterializeOptions carries everything a plugin needs to write its files
// into a freshly prepared host workspace directory.
type MaterializeOptions struct {
	Code         string
	Dependencies []string
}

// InstallOptions carries everything a plugin needs to run its dependency
// installer inside the live container.
type InstallOptions struct {
	Dependencies []string
	WorkDir      string
	Exec         ContainerExecFunc
}

// Plugin is a duck-typed capability record describing one language. It is
// modeled as an interface, not as a base type to inherit from.
type Plugin interface {
	// Name is the language identifier this plugin is registered under.
	Name() string

	// DefaultImage is the container image used unless the session overrides it.
	DefaultImage() string

	// InlineFilename is the workspace-relative path inline snippets are written to.
	InlineFilename() string

	// Executable reports whether the inline file must be marked executable
	// after the engine writes it (true only for shell).
	Executable() bool

	// Materialize writes the dependency manifest/config files the language
	// needs (package.json, tsconfig.json, requirements.txt, ...) into dir,
	// the host side of the container's /workspace bind mount (in run-app
	// mode, the host side of the mount at the run-app's cwd). It runs before
	// the dependency-install phase and before the baseline is captured, so
	// these files are never reported as user-generated. It does not write
	// the inline snippet itself — the engine writes that separately, inside
	// the live container, in its run-target preparation step.
	Materialize(ctx context.Context, opts MaterializeOptions, dir string) error

	// InlineCommand returns the argv used to run an inline snippet.
	InlineCommand(depsInstalled bool) []string

	// RunAppCommand returns the argv used to run a pre-existing entry file.
	RunAppCommand(entryFile string, depsInstalled bool) []string

	// InstallDependencies runs the language's package installer inside the
	// live container. A plugin with no install phase (none of the four
	// built-ins qualify, but custom registrations may) omits this by
	// returning ErrNoInstallPhase.
	InstallDependencies(ctx context.Context, opts InstallOptions) (stdout, stderr string, exitCode int, err error)
}

// ErrNoInstallPhase is returned by InstallDependencies when a plugin has no
// dependency-installation step; the engine treats this as a vacuous success
// with empty streams.
var ErrNoInstallPhase = pluginError("no install phase")

type pluginError string

func (e pluginError) Error() string { return string(e) }
