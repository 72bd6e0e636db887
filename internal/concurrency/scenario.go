package concurrency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/quarrycli/quarry/internal/harness"
	"github.com/quarrycli/quarry/internal/probe"
)

// scenarioPort is the port client-side scenario scripts assume the server
// binary binds. The scenario kinds carry no port argument, so one default
// is fixed here.
const scenarioPort = 8000

// scenarioPollInterval and scenarioTimeout bound the poll loop every
// scenario step uses to observe server-side progress.
const (
	scenarioPollInterval = 100 * time.Millisecond
	scenarioTimeout      = 15 * time.Second
)

// jobQueueStatus and workerPoolStatus are the JSON bodies this module
// expects from the server binary's status endpoints: a learner's server
// exposes POST /jobs (or /tasks) to submit work and GET /jobs/status (or
// /pool/status) to report progress.
type jobQueueStatus struct {
	Acknowledged int `json:"acknowledged"`
	Completed    int `json:"completed"`
}

type workerPoolStatus struct {
	ActiveWorkers int `json:"active_workers"`
	Completed     int `json:"completed"`
}

// JobQueueScenario submits submitCount jobs to a spawned server binary and
// waits for all of them to be acknowledged and completed.
func JobQueueScenario(ctx context.Context, workspace, binary string, submitCount, workerCount int) error {
	child, err := harness.Spawn(ctx, harness.SpawnOptions{
		Workspace: workspace,
		Binary:    binary,
		Args:      []string{"--workers", fmt.Sprint(workerCount)},
		Port:      scenarioPort,
	})
	if err != nil {
		return err
	}
	defer child.Teardown()

	for i := 0; i < submitCount; i++ {
		body, _ := json.Marshal(map[string]int{"id": i})
		resp, err := probe.Do(scenarioPort, probe.Request{
			Method:  "POST",
			Path:    "/jobs",
			Headers: []probe.Header{{Name: "Content-Type", Value: "application/json"}},
			Body:    body,
		}, probe.DefaultTimeouts())
		if err != nil {
			return errors.Wrapf(err, "submitting job %d", i)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return errors.Newf("submitting job %d: server returned %d", i, resp.StatusCode)
		}
	}

	return pollUntil(scenarioTimeout, func() (bool, error) {
		resp, err := probe.Do(scenarioPort, probe.Request{Method: "GET", Path: "/jobs/status"}, probe.DefaultTimeouts())
		if err != nil {
			return false, nil // transient; keep polling until the step deadline
		}
		var status jobQueueStatus
		if err := json.Unmarshal(resp.Body, &status); err != nil {
			return false, errors.Wrap(err, "parsing /jobs/status response")
		}
		return status.Acknowledged >= submitCount && status.Completed >= submitCount, nil
	})
}

// WorkerPoolScenario submits taskCount tasks and verifies both that all
// tasks eventually complete and that no more than workerCount run
// concurrently at any polled instant.
func WorkerPoolScenario(ctx context.Context, workspace, binary string, workerCount, taskCount int) error {
	child, err := harness.Spawn(ctx, harness.SpawnOptions{
		Workspace: workspace,
		Binary:    binary,
		Args:      []string{"--workers", fmt.Sprint(workerCount)},
		Port:      scenarioPort,
	})
	if err != nil {
		return err
	}
	defer child.Teardown()

	for i := 0; i < taskCount; i++ {
		body, _ := json.Marshal(map[string]int{"id": i})
		resp, err := probe.Do(scenarioPort, probe.Request{
			Method:  "POST",
			Path:    "/tasks",
			Headers: []probe.Header{{Name: "Content-Type", Value: "application/json"}},
			Body:    body,
		}, probe.DefaultTimeouts())
		if err != nil {
			return errors.Wrapf(err, "submitting task %d", i)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return errors.Newf("submitting task %d: server returned %d", i, resp.StatusCode)
		}
	}

	maxActive := 0
	err = pollUntil(scenarioTimeout, func() (bool, error) {
		resp, err := probe.Do(scenarioPort, probe.Request{Method: "GET", Path: "/pool/status"}, probe.DefaultTimeouts())
		if err != nil {
			return false, nil
		}
		var status workerPoolStatus
		if err := json.Unmarshal(resp.Body, &status); err != nil {
			return false, errors.Wrap(err, "parsing /pool/status response")
		}
		if status.ActiveWorkers > maxActive {
			maxActive = status.ActiveWorkers
		}
		return status.Completed >= taskCount, nil
	})
	if err != nil {
		return err
	}
	if maxActive > workerCount {
		return errors.Newf("observed %d concurrent workers, want at most %d", maxActive, workerCount)
	}
	return nil
}

// pollUntil calls check repeatedly until it reports true, returns a
// non-nil error, or timeout elapses.
func pollUntil(timeout time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		time.Sleep(scenarioPollInterval)
	}
	return errors.Newf("scenario did not complete within %s", timeout)
}
