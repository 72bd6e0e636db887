package concurrency

import (
	"context"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/quarrycli/quarry/internal/errs"
	"github.com/quarrycli/quarry/internal/harness"
)

// readinessGrace is how long GracefulShutdown waits after spawning before
// sending SIGTERM. graceful_shutdown's args carry no port, so there is
// nothing to poll; "readiness" here is a short fixed settle time instead of
// an invented port argument.
const readinessGrace = 200 * time.Millisecond

// GracefulShutdown spawns binary, waits briefly for it to settle, sends
// SIGTERM, and waits up to timeoutMS for a zero exit. The three failure
// modes — never ready, SIGTERM ignored, nonzero exit — surface as distinct
// errors.
func GracefulShutdown(ctx context.Context, workspace, binary string, timeoutMS int) error {
	child, err := harness.Spawn(ctx, harness.SpawnOptions{
		Workspace: workspace,
		Binary:    binary,
		Port:      0,
	})
	if err != nil {
		return errors.Wrapf(errs.ReadinessTimeout, "%s: %s", binary, err)
	}
	defer child.Teardown()

	time.Sleep(readinessGrace)

	if err := child.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrapf(err, "sending SIGTERM to %s", binary)
	}

	exited, code, waitErr := child.Wait(time.Duration(timeoutMS) * time.Millisecond)
	if waitErr != nil {
		return errors.Wrap(waitErr, "waiting for shutdown")
	}
	if !exited {
		return errors.Wrapf(errs.ShutdownTimeout,
			"%s ignored SIGTERM, still running after %dms", binary, timeoutMS)
	}
	if code != 0 {
		return errors.Wrapf(errs.ShutdownNonzero,
			"%s exited with status %d, want 0", binary, code)
	}
	return nil
}
