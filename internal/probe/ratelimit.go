package probe

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitResult summarizes one rate_limit probe run.
type RateLimitResult struct {
	BurstPassed   bool
	Saw429        bool
	FirstNon2xx   int
	TotalRequests int
}

// ProbeRateLimit issues requests against path on a single connection per
// request. After the initial back-to-back burst, requests go out at most one
// per millisecond and no faster than a limiter refilling at `allowed` per
// second with a bucket of `burst` lets them — a deterministic cadence rather
// than a per-run guess. It succeeds the "burst"
// check if the first `burst` requests all return 2xx, and succeeds overall
// if a 429 is observed within one second of probing.
func ProbeRateLimit(port int, path string, allowed, burst int) (*RateLimitResult, error) {
	limiter := rate.NewLimiter(rate.Limit(allowed), burst)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result := &RateLimitResult{BurstPassed: true}
	timeouts := DefaultTimeouts()

	// Issue the initial burst back-to-back, then step down to a
	// deterministic one-request-per-millisecond cadence.
	const maxProbes = 200
	for i := 0; i < maxProbes; i++ {
		if i >= burst {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}

		resp, err := Do(port, Request{Method: "GET", Path: path}, timeouts)
		result.TotalRequests++
		if err != nil {
			break
		}

		if i < burst {
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				result.BurstPassed = false
			}
			continue
		}

		if resp.StatusCode == 429 {
			result.Saw429 = true
			return result, nil
		}
		nonSuccess := resp.StatusCode < 200 || resp.StatusCode >= 300
		if nonSuccess && result.FirstNon2xx == 0 {
			result.FirstNon2xx = resp.StatusCode
		}

		if ctx.Err() != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}

	return result, nil
}
