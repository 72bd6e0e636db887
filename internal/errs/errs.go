// Package errs defines the validation engine's error taxonomy: a closed set
// of sentinel kinds that engine failures are wrapped against, so callers
// can branch with errors.Is instead of sniffing strings.
package errs

import (
	"github.com/cockroachdb/errors"
)

// Kind sentinels, one per error taxonomy entry in the validator engine.
// Validators and the command layer wrap these with errors.Wrap/Wrapf so
// they compose with errors.Is; errors from the file system or the standard
// library that fit no kind are returned unwrapped.
var (
	SpecInvalid         = errors.New("spec_invalid")
	InvalidArguments    = errors.New("invalid_arguments")
	WorkspaceMissing    = errors.New("workspace_missing")
	RuntimeUnknown      = errors.New("runtime_unknown")
	PortInUse           = errors.New("port_in_use")
	ReadinessTimeout    = errors.New("readiness_timeout")
	ShutdownTimeout     = errors.New("shutdown_timeout")
	ShutdownNonzero     = errors.New("shutdown_nonzero")
	CompileFailed       = errors.New("compile_failed")
	ConnectTimeout      = errors.New("connect_timeout")
	ReadTimeout         = errors.New("read_timeout")
	UnexpectedStatus    = errors.New("unexpected_status")
	BodyMismatch        = errors.New("body_mismatch")
	DockerUnavailable   = errors.New("docker_unavailable")
	ContainerTimeout    = errors.New("container_timeout")
	ContainerNonzero    = errors.New("container_nonzero")
	RunDeadlineExceeded = errors.New("run_deadline_exceeded")
	Cancelled           = errors.New("cancelled")
	StateIntegrity      = errors.New("state_integrity")
	StateLocked         = errors.New("state_locked")
)

// MaxOutcomeErrorBytes bounds the rendered length of a Validator Outcome's
// error string so a failing container log cannot flood the terminal.
const MaxOutcomeErrorBytes = 512

// Truncate clips s to MaxOutcomeErrorBytes, appending an ellipsis marker so
// truncation is visible to the learner rather than silently cutting output.
func Truncate(s string) string {
	if len(s) <= MaxOutcomeErrorBytes {
		return s
	}
	const marker = "... (truncated)"
	cut := MaxOutcomeErrorBytes - len(marker)
	if cut < 0 {
		cut = MaxOutcomeErrorBytes
	}
	return s[:cut] + marker
}

// Wrap truncates err's rendered message to the outcome bound and returns it
// as a string suitable for a Validator Outcome's error field.
func Wrap(err error) string {
	if err == nil {
		return ""
	}
	return Truncate(err.Error())
}

// ExitCode maps an infrastructure error (one that aborts the command rather
// than producing a failing outcome) to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, StateIntegrity):
		return 3
	case errors.Is(err, DockerUnavailable):
		return 4
	case errors.Is(err, WorkspaceMissing), errors.Is(err, RuntimeUnknown),
		errors.Is(err, StateLocked), errors.Is(err, InvalidArguments):
		return 2
	default:
		return 1
	}
}
