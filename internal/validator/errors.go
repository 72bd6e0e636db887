package validator

import (
	"fmt"

	"github.com/quarrycli/quarry/internal/errs"
)

// validatorError wraps one of the closed error-taxonomy sentinels with a
// validator-specific message, letting call sites chain a short human
// description onto a sentinel errors.Is callers can still match against.
type validatorError struct {
	sentinel error
	message  string
}

func (e *validatorError) Error() string { return e.message }
func (e *validatorError) Unwrap() error { return e.sentinel }

func newUnexpectedStatus(want, got int) *validatorError {
	return &validatorError{
		sentinel: errs.UnexpectedStatus,
		message:  fmt.Sprintf("expected %d, got %d", want, got),
	}
}

func newStatusFailure(format string, args ...interface{}) *validatorError {
	return &validatorError{sentinel: errs.UnexpectedStatus, message: fmt.Sprintf(format, args...)}
}

func newBodyMismatch(detail string) *validatorError {
	return &validatorError{sentinel: errs.BodyMismatch, message: "body mismatch: " + detail}
}

func newHeaderMismatch(detail string) *validatorError {
	return &validatorError{sentinel: errs.BodyMismatch, message: detail}
}

func newCompileError(output string) *validatorError {
	return &validatorError{sentinel: errs.CompileFailed, message: "compile failed: " + errs.Truncate(output)}
}
