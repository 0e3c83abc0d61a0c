package langregistry

import "context"

// shell is the built-in "shell" plugin. Dependencies are interpreted as
// Alpine package names.
type shell struct{}

func newShell() Plugin { return shell{} }

func (shell) Name() string           { return "shell" }
func (shell) DefaultImage() string   { return "alpine:latest" }
func (shell) InlineFilename() string { return "code.sh" }
func (shell) Executable() bool       { return true }

// Materialize is a no-op: apk takes package names directly, there is no
// manifest file to stage ahead of the dependency-install phase.
func (shell) Materialize(_ context.Context, _ MaterializeOptions, _ string) error {
	return nil
}

func (shell) InlineCommand(_ bool) []string {
	return []string{"sh", "code.sh"}
}

func (shell) RunAppCommand(entryFile string, _ bool) []string {
	return []string{"sh", entryFile}
}

func (shell) InstallDependencies(ctx context.Context, opts InstallOptions) (string, string, int, error) {
	if len(opts.Dependencies) == 0 {
		return "", "", 0, nil
	}
	refreshOut, refreshErr, code, err := opts.Exec(ctx, opts.WorkDir, []string{"apk", "update"}, nil)
	if err != nil || code != 0 {
		return refreshOut, refreshErr, code, err
	}
	argv := append([]string{"apk", "add", "--no-cache"}, opts.Dependencies...)
	installOut, installErr, code, err := opts.Exec(ctx, opts.WorkDir, argv, nil)
	return refreshOut + installOut, refreshErr + installErr, code, err
}
