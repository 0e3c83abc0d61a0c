package langregistry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	r := Default()
	want := []string{"ecmascript-variant-A", "ecmascript-variant-B", "python", "shell"}
	for _, name := range want {
		_, err := r.Get(name)
		assert.NoErrorf(t, err, "expected builtin plugin %q registered", name)
	}
}

func TestRegistryUnknownLanguage(t *testing.T) {
	r := New()
	_, err := r.Get("cobol")
	assert.Error(t, err)
}

func TestRegistryNamesSorted(t *testing.T) {
	names := Default().Names()
	assert.IsIncreasing(t, names)
}

func TestPythonMaterializeWritesRequirements(t *testing.T) {
	dir := t.TempDir()
	p, err := Default().Get("python")
	require.NoError(t, err)

	opts := MaterializeOptions{Code: "print('hi')", Dependencies: []string{"requests"}}
	require.NoError(t, p.Materialize(context.Background(), opts, dir))

	assert.FileExists(t, filepath.Join(dir, "requirements.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "code.py"))
}

func TestPythonMaterializeNoDependenciesWritesNothing(t *testing.T) {
	dir := t.TempDir()
	p, _ := Default().Get("python")
	opts := MaterializeOptions{Code: "print('hi')"}
	require.NoError(t, p.Materialize(context.Background(), opts, dir))

	assert.NoFileExists(t, filepath.Join(dir, "requirements.txt"))
}

func TestShellExecutableFlag(t *testing.T) {
	p, _ := Default().Get("shell")
	assert.True(t, p.Executable(), "expected shell plugin to require its inline file be marked executable")

	other, _ := Default().Get("python")
	assert.False(t, other.Executable(), "expected python plugin not to require executable bit")
}

func TestShellNoDependenciesSkipsInstall(t *testing.T) {
	p, _ := Default().Get("shell")
	called := false
	opts := InstallOptions{
		Exec: func(ctx context.Context, workdir string, argv []string, env map[string]string) (string, string, int, error) {
			called = true
			return "", "", 0, nil
		},
	}
	stdout, stderr, code, err := p.InstallDependencies(context.Background(), opts)
	assert.False(t, called, "exec should not be invoked when there are no dependencies")
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
	assert.Zero(t, code)
	assert.NoError(t, err)
}
