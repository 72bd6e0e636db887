// Package probe implements the network probes. Every HTTP probe builds its
// request by hand on a raw TCP stream rather than through net/http's
// client, so header casing, status-line shape, and body framing can be
// asserted exactly as the wire declares them.
package probe

import (
	"fmt"
	"net"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/quarrycli/quarry/internal/errs"
)

// tcpPollInterval is the retry cadence while waiting for a listener to
// appear.
const tcpPollInterval = 50 * time.Millisecond

// TCPListening polls a TCP connect to 127.0.0.1:port until it succeeds or
// timeout elapses. The learner's server may still be starting when the
// check begins, so a single refused connect is not a failure; only the
// deadline is.
func TCPListening(port int, timeout time.Duration) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, tcpPollInterval)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
		time.Sleep(tcpPollInterval)
	}
	return errors.Wrapf(errs.ReadinessTimeout,
		"nothing listening on %s within %s (%s)", addr, timeout, lastErr)
}
