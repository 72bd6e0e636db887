// Package runtimedetect resolves a workspace's language runtime and drives
// the matching toolchain's build step.
package runtimedetect

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/quarrycli/quarry/internal/vctx"
)

// Detect resolves a workspace's runtime tag by precedence: go.mod,
// Cargo.toml, a C-compiling Makefile, python project
// files, then package.json. Returns RuntimeUnspecified if nothing matches.
func Detect(workspace string) vctx.Runtime {
	if exists(workspace, "go.mod") {
		return vctx.RuntimeGo
	}
	if exists(workspace, "Cargo.toml") {
		return vctx.RuntimeRust
	}
	if hasCCompilingMakefile(workspace) {
		return vctx.RuntimeC
	}
	if exists(workspace, "pyproject.toml") || exists(workspace, "requirements.txt") {
		return vctx.RuntimePython
	}
	if exists(workspace, "package.json") {
		return vctx.RuntimeTypeScript
	}
	return vctx.RuntimeUnspecified
}

func exists(workspace, name string) bool {
	_, err := os.Stat(filepath.Join(workspace, name))
	return err == nil
}

// hasCCompilingMakefile reports whether workspace has a Makefile whose
// default target plausibly compiles C (invokes cc/gcc/clang, directly or
// via $(CC)). This is a heuristic, not a parse of make's grammar.
func hasCCompilingMakefile(workspace string) bool {
	data, err := os.ReadFile(filepath.Join(workspace, "Makefile"))
	if err != nil {
		return false
	}
	content := string(data)
	for _, marker := range []string{"gcc", "clang", "$(CC)", "cc "} {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
