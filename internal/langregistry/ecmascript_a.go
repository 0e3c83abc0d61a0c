package langregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ecmascriptPlain is the "ecmascript-variant-A" plugin: plain JavaScript run
// directly with the node interpreter.
type ecmascriptPlain struct{}

func newECMAScriptPlain() Plugin { return ecmascriptPlain{} }

func (ecmascriptPlain) Name() string           { return "ecmascript-variant-A" }
func (ecmascriptPlain) DefaultImage() string   { return "node:18-alpine" }
func (ecmascriptPlain) InlineFilename() string { return "code.js" }
func (ecmascriptPlain) Executable() bool       { return false }

func (p ecmascriptPlain) Materialize(_ context.Context, opts MaterializeOptions, dir string) error {
	if len(opts.Dependencies) == 0 {
		return nil
	}
	manifest := packageJSON(opts.Dependencies)
	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal package.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), b, 0o644); err != nil {
		return fmt.Errorf("write package.json: %w", err)
	}
	return nil
}

func (ecmascriptPlain) InlineCommand(_ bool) []string {
	return []string{"node", "code.js"}
}

func (ecmascriptPlain) RunAppCommand(entryFile string, _ bool) []string {
	return []string{"node", entryFile}
}

func (ecmascriptPlain) InstallDependencies(ctx context.Context, opts InstallOptions) (string, string, int, error) {
	return runNpmInstall(ctx, opts)
}

// packageJSON builds a minimal manifest enumerating declared dependencies at
// the "*" version so npm resolves whatever is current.
func packageJSON(deps []string) map[string]interface{} {
	depMap := make(map[string]string, len(deps))
	for _, d := range deps {
		depMap[d] = "*"
	}
	return map[string]interface{}{
		"name":         "sandbox-run",
		"version":      "0.0.0",
		"private":      true,
		"dependencies": depMap,
	}
}

func runNpmInstall(ctx context.Context, opts InstallOptions) (string, string, int, error) {
	if len(opts.Dependencies) == 0 {
		return "", "", 0, nil
	}
	argv := []string{"npm", "install", "--no-audit", "--no-fund"}
	stdout, stderr, code, err := opts.Exec(ctx, opts.WorkDir, argv, nil)
	return stdout, stderr, code, err
}
