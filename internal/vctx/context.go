// Package vctx holds the validation context: the immutable, read-only
// record every validator executes against.
package vctx

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/quarrycli/quarry/internal/errs"
)

// Runtime is the detected or declared toolchain tag for a workspace.
type Runtime string

const (
	RuntimeGo          Runtime = "go"
	RuntimeRust        Runtime = "rust"
	RuntimeC           Runtime = "c"
	RuntimePython      Runtime = "python"
	RuntimeTypeScript  Runtime = "typescript"
	RuntimeUnspecified Runtime = "unspecified"
)

// ParseRuntime validates a declared runtime tag. The empty string maps to
// RuntimeUnspecified so detection can take over.
func ParseRuntime(s string) (Runtime, error) {
	switch Runtime(s) {
	case RuntimeGo, RuntimeRust, RuntimeC, RuntimePython, RuntimeTypeScript:
		return Runtime(s), nil
	case "", RuntimeUnspecified:
		return RuntimeUnspecified, nil
	default:
		return RuntimeUnspecified, errors.Wrapf(errs.RuntimeUnknown, "unrecognized runtime %q", s)
	}
}

// Context is constructed once per `run` and never mutated afterward;
// validators only ever read from it.
type Context struct {
	Workspace      string
	Runtime        Runtime
	TaskID         string
	AttemptID      string
	DefaultTimeout time.Duration
	Deadline       time.Time
	ScratchDir     string

	// ProgressFn, if non-nil, receives human-readable breadcrumbs emitted by
	// long-running validators (today, the container runs).
	ProgressFn func(string)
}

// Options configures Build.
type Options struct {
	Workspace      string
	Runtime        Runtime
	TaskID         string
	DefaultTimeout time.Duration
	GlobalTimeout  time.Duration
	ProgressFn     func(string)
}

// Build resolves the workspace to an absolute path, validates it exists and
// is a directory, allocates a scratch directory under the platform temp
// root, and returns a read-only Context plus a cleanup func the caller must
// defer. The scratch directory is removed unconditionally by
// cleanup, whether the run succeeded, failed, or was cancelled.
func Build(opts Options) (*Context, func(), error) {
	abs, err := filepath.Abs(opts.Workspace)
	if err != nil {
		return nil, nil, errors.Wrapf(errs.WorkspaceMissing, "resolving workspace %q: %s", opts.Workspace, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, nil, errors.Wrapf(errs.WorkspaceMissing, "workspace %q does not exist or is not a directory", abs)
	}

	scratch, err := os.MkdirTemp("", "quarry-run-*")
	if err != nil {
		return nil, nil, errors.Wrap(err, "allocating scratch directory")
	}

	attemptID := uuid.NewString()
	defaultTimeout := opts.DefaultTimeout
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	globalTimeout := opts.GlobalTimeout
	if globalTimeout <= 0 {
		globalTimeout = 5 * time.Minute
	}

	ctx := &Context{
		Workspace:      abs,
		Runtime:        opts.Runtime,
		TaskID:         opts.TaskID,
		AttemptID:      attemptID,
		DefaultTimeout: defaultTimeout,
		Deadline:       time.Now().Add(globalTimeout),
		ScratchDir:     scratch,
		ProgressFn:     opts.ProgressFn,
	}

	cleanup := func() {
		_ = os.RemoveAll(scratch)
	}
	return ctx, cleanup, nil
}

// Expired reports whether the run's global deadline has passed.
func (c *Context) Expired() bool {
	return time.Now().After(c.Deadline)
}

// Progress emits a breadcrumb if a callback was registered, otherwise it is
// a no-op rather than an error — progress reporting is best-effort.
func (c *Context) Progress(msg string) {
	if c.ProgressFn != nil {
		c.ProgressFn(msg)
	}
}
