package langregistry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// python is the built-in "python" plugin.
type python struct{}

func newPython() Plugin { return python{} }

func (python) Name() string           { return "python" }
func (python) DefaultImage() string   { return "python:3.9-slim" }
func (python) InlineFilename() string { return "code.py" }
func (python) Executable() bool       { return false }

func (p python) Materialize(_ context.Context, opts MaterializeOptions, dir string) error {
	if len(opts.Dependencies) == 0 {
		return nil
	}
	req := strings.Join(opts.Dependencies, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(req), 0o644); err != nil {
		return fmt.Errorf("write requirements.txt: %w", err)
	}
	return nil
}

// interpreterCommand prefers python3, matching the teacher's "locate an
// available interpreter" convention for minimal slim images.
func interpreterCommand() string { return "python3" }

func (python) InlineCommand(_ bool) []string {
	return []string{"sh", "-lc", fmt.Sprintf("if command -v %s >/dev/null 2>&1; then exec %s -u code.py; else exec python -u code.py; fi", interpreterCommand(), interpreterCommand())}
}

func (python) RunAppCommand(entryFile string, _ bool) []string {
	return []string{"sh", "-lc", fmt.Sprintf("if command -v %s >/dev/null 2>&1; then exec %s -u %s; else exec python -u %s; fi", interpreterCommand(), interpreterCommand(), entryFile, entryFile)}
}

func (python) InstallDependencies(ctx context.Context, opts InstallOptions) (string, string, int, error) {
	if len(opts.Dependencies) == 0 {
		return "", "", 0, nil
	}
	argv := []string{"pip", "install", "--no-cache-dir", "-r", "requirements.txt"}
	return opts.Exec(ctx, opts.WorkDir, argv, nil)
}
