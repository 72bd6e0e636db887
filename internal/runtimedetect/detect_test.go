package runtimedetect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrycli/quarry/internal/vctx"
)

func workspaceWith(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  vctx.Runtime
	}{
		{"go", map[string]string{"go.mod": "module x\n"}, vctx.RuntimeGo},
		{"rust", map[string]string{"Cargo.toml": "[package]\n"}, vctx.RuntimeRust},
		{"c", map[string]string{"Makefile": "all:\n\tgcc -o main main.c\n"}, vctx.RuntimeC},
		{"python-pyproject", map[string]string{"pyproject.toml": "[project]\n"}, vctx.RuntimePython},
		{"python-requirements", map[string]string{"requirements.txt": "flask\n"}, vctx.RuntimePython},
		{"typescript", map[string]string{"package.json": "{}"}, vctx.RuntimeTypeScript},
		{"empty", nil, vctx.RuntimeUnspecified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := workspaceWith(t, tt.files)
			assert.Equal(t, tt.want, Detect(dir))
		})
	}
}

// go.mod outranks everything else when several manifests coexist.
func TestDetect_Precedence(t *testing.T) {
	dir := workspaceWith(t, map[string]string{
		"go.mod":       "module x\n",
		"Cargo.toml":   "[package]\n",
		"package.json": "{}",
	})
	assert.Equal(t, vctx.RuntimeGo, Detect(dir))
}

// A Makefile that never invokes a C compiler is not a C workspace.
func TestDetect_NonCCompilingMakefile(t *testing.T) {
	dir := workspaceWith(t, map[string]string{
		"Makefile":     "all:\n\techo nothing to build\n",
		"package.json": "{}",
	})
	assert.Equal(t, vctx.RuntimeTypeScript, Detect(dir))
}
