// Package concurrency holds the load-shaped validators: the
// concurrent-request storm, the graceful-shutdown drill, and the
// client-side scenario scripts for job-queue and worker-pool exercises.
package concurrency

import (
	"sync"
	"time"

	"github.com/quarrycli/quarry/internal/probe"
)

// StormResult summarizes a concurrent_requests run.
type StormResult struct {
	Passed     bool
	Total      int
	Mismatches int
	TimedOut   int
}

// Storm issues num requests to path in parallel (parallelism >= num, no
// staggering) and waits for all to settle. Genuine concurrency is the
// point of the check: a single-connection server must fail it.
func Storm(port int, path string, num, expectedStatus int) *StormResult {
	var wg sync.WaitGroup
	var mu sync.Mutex
	result := &StormResult{Total: num}

	timeouts := probe.DefaultTimeouts()
	timeouts.Total = 5 * time.Second

	wg.Add(num)
	for i := 0; i < num; i++ {
		go func() {
			defer wg.Done()
			resp, err := probe.Do(port, probe.Request{Method: "GET", Path: path}, timeouts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.TimedOut++
				return
			}
			if resp.StatusCode != expectedStatus {
				result.Mismatches++
			}
		}()
	}
	wg.Wait()

	result.Passed = result.Mismatches == 0 && result.TimedOut == 0
	return result
}
