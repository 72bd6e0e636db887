package runtimedetect

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/quarrycli/quarry/internal/vctx"
)

// DefaultCompileTimeout is the wall-clock bound for a compile attempt.
const DefaultCompileTimeout = 60 * time.Second

// CompileResult carries the compile driver's combined output and outcome.
type CompileResult struct {
	Passed   bool
	Output   string
	TimedOut bool
}

// Compile runs the build command appropriate to runtime against workspace,
// streaming combined stdout+stderr into one in-memory buffer and enforcing
// timeout as a wall-clock bound. On timeout it sends SIGTERM to the
// process group, waits briefly, then SIGKILLs.
func Compile(ctx context.Context, workspace string, runtime vctx.Runtime, timeout time.Duration) (*CompileResult, error) {
	if timeout <= 0 {
		timeout = DefaultCompileTimeout
	}

	switch runtime {
	case vctx.RuntimeGo:
		return runCommand(ctx, workspace, timeout, "go", "build", "./...")
	case vctx.RuntimeRust:
		return runCommand(ctx, workspace, timeout, "cargo", "check")
	case vctx.RuntimeC:
		return runCommand(ctx, workspace, timeout, "make")
	case vctx.RuntimePython:
		return compilePython(ctx, workspace, timeout)
	case vctx.RuntimeTypeScript:
		return runCommand(ctx, workspace, timeout, "tsc", "--noEmit")
	default:
		return nil, errors.Newf("cannot compile unrecognized runtime %q", runtime)
	}
}

// compilePython syntax-checks every .py file under workspace individually,
// since the runtime has no single "build" step.
func compilePython(ctx context.Context, workspace string, timeout time.Duration) (*CompileResult, error) {
	var files []string
	err := filepath.WalkDir(workspace, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".py") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walking workspace for python files")
	}

	if len(files) == 0 {
		return &CompileResult{Passed: true, Output: "no .py files found"}, nil
	}

	args := append([]string{"-m", "py_compile"}, files...)
	return runCommand(ctx, workspace, timeout, "python3", args...)
}

// runCommand is the shared process-supervision path the compile driver
// uses for every runtime that reduces to "run one command, bound its
// wall clock, collect combined output".
func runCommand(ctx context.Context, workspace string, timeout time.Duration, name string, args ...string) (*CompileResult, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// exec.Command, not CommandContext: the select below owns the timeout,
	// and CommandContext would SIGKILL the process as soon as cctx ends.
	cmd := exec.Command(name, args...)
	cmd.Dir = workspace
	setProcessGroup(cmd)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Start()
	if err != nil {
		return nil, errors.Wrapf(err, "starting %s", name)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return &CompileResult{Passed: err == nil, Output: buf.String()}, nil
	case <-cctx.Done():
		terminateGroup(cmd)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			killGroup(cmd)
			<-done
		}
		return &CompileResult{Passed: false, Output: buf.String(), TimedOut: true}, nil
	}
}

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
