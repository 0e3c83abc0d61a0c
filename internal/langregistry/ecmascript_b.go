package langregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ecmascriptTyped is the "ecmascript-variant-B" plugin: TypeScript, run
// through a typed-runtime launcher (tsx) rather than compiled ahead of time.
type ecmascriptTyped struct{}

func newECMAScriptTyped() Plugin { return ecmascriptTyped{} }

func (ecmascriptTyped) Name() string           { return "ecmascript-variant-B" }
func (ecmascriptTyped) DefaultImage() string   { return "node:18-alpine" }
func (ecmascriptTyped) InlineFilename() string { return "code.ts" }
func (ecmascriptTyped) Executable() bool       { return false }

func (p ecmascriptTyped) Materialize(_ context.Context, opts MaterializeOptions, dir string) error {
	tsconfig := map[string]interface{}{
		"compilerOptions": map[string]interface{}{
			"target":           "ES2020",
			"module":           "commonjs",
			"strict":           false,
			"esModuleInterop":  true,
			"skipLibCheck":     true,
			"resolveJsonModule": true,
		},
	}
	tb, err := json.MarshalIndent(tsconfig, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tsconfig.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tsconfig.json"), tb, 0o644); err != nil {
		return fmt.Errorf("write tsconfig.json: %w", err)
	}

	if len(opts.Dependencies) == 0 {
		return nil
	}
	manifest := packageJSON(opts.Dependencies)
	pb, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal package.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), pb, 0o644); err != nil {
		return fmt.Errorf("write package.json: %w", err)
	}
	return nil
}

func (ecmascriptTyped) InlineCommand(_ bool) []string {
	return []string{"npx", "--yes", "tsx", "code.ts"}
}

func (ecmascriptTyped) RunAppCommand(entryFile string, _ bool) []string {
	return []string{"npx", "--yes", "tsx", entryFile}
}

func (ecmascriptTyped) InstallDependencies(ctx context.Context, opts InstallOptions) (string, string, int, error) {
	return runNpmInstall(ctx, opts)
}
