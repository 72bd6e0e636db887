// Package validator wires each parsed spec.Validator to its concrete
// execution against a Validation Context, producing the Validator Outcome
// the dispatcher collects. This is the validator catalogue realized:
// the Process Harness, Network Probes, Concurrency Validators, Runtime
// Detector, and Container Validators each contribute the execution for the
// kinds they own.
package validator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quarrycli/quarry/internal/concurrency"
	"github.com/quarrycli/quarry/internal/container"
	"github.com/quarrycli/quarry/internal/errs"
	"github.com/quarrycli/quarry/internal/probe"
	"github.com/quarrycli/quarry/internal/result"
	"github.com/quarrycli/quarry/internal/runtimedetect"
	"github.com/quarrycli/quarry/internal/spec"
	"github.com/quarrycli/quarry/internal/vctx"
)

// Execute runs one parsed validator against ctx and returns its outcome.
// It never returns a Go error for a validator-level failure: every failure
// mode becomes a failing Outcome, so a broken check can never take the
// whole run down with it.
func Execute(ctx context.Context, vctx *vctx.Context, v *spec.Validator) result.Outcome {
	start := time.Now()
	err := dispatch(ctx, vctx, v)
	duration := time.Since(start)

	if err != nil {
		return result.NewOutcome(string(v.Kind), v.Name, false, errs.Wrap(err), duration)
	}
	return result.NewOutcome(string(v.Kind), v.Name, true, "", duration)
}

func dispatch(ctx context.Context, vc *vctx.Context, v *spec.Validator) error {
	switch v.Kind {
	case spec.KindFileExists:
		return fileExists(vc, v.FileExists)
	case spec.KindCanCompile:
		return canCompile(ctx, vc, v.CanCompile)
	case spec.KindTCPListening:
		return tcpListening(v.TCPListening)
	case spec.KindHTTPResponse:
		return httpResponse(v.HTTPResponse)
	case spec.KindHTTPGetFile:
		return httpGetFile(vc, v.HTTPGetFile)
	case spec.KindHTTPGetCompressed:
		return httpGetCompressed(v.HTTPGetCompressed)
	case spec.KindJSONResponse:
		return jsonResponse(v.JSONResponse)
	case spec.KindConcurrentRequests:
		return concurrentRequests(v.ConcurrentRequests)
	case spec.KindRateLimit:
		return rateLimit(v.RateLimit)
	case spec.KindGracefulShutdown:
		return gracefulShutdown(ctx, vc, v.GracefulShutdown)
	case spec.KindRaceDetector:
		return raceDetector(ctx, vc, v.RaceDetector)
	case spec.KindGoCompile:
		return goCompile(ctx, vc, v.GoCompile)
	case spec.KindJobQueueScenario:
		return jobQueueScenario(ctx, vc, v.JobQueueScenario)
	case spec.KindWorkerPoolScenario:
		return workerPoolScenario(ctx, vc, v.WorkerPoolScenario)
	default:
		return errs.SpecInvalid
	}
}

func fileExists(vc *vctx.Context, args *spec.FileExistsArgs) error {
	path := filepath.Join(vc.Workspace, args.Path)
	_, err := os.Stat(path)
	if err != nil {
		return err
	}
	return nil
}

func canCompile(ctx context.Context, vc *vctx.Context, args *spec.CanCompileArgs) error {
	if !args.Enabled {
		return nil
	}
	runtime := vc.Runtime
	if runtime == vctx.RuntimeUnspecified {
		runtime = runtimedetect.Detect(vc.Workspace)
	}
	res, err := runtimedetect.Compile(ctx, vc.Workspace, runtime, runtimedetect.DefaultCompileTimeout)
	if err != nil {
		return err
	}
	if res.TimedOut {
		return newCompileError("build did not finish within the compile budget")
	}
	if !res.Passed {
		return newCompileError(res.Output)
	}
	return nil
}

func tcpListening(args *spec.TCPListeningArgs) error {
	return probe.TCPListening(args.Port, time.Duration(args.TimeoutMS)*time.Millisecond)
}

func httpResponse(args *spec.HTTPResponseArgs) error {
	resp, err := probe.Do(args.Port, probe.Request{Method: args.Method, Path: args.Path}, probe.DefaultTimeouts())
	if err != nil {
		return err
	}
	if resp.StatusCode != args.Status {
		return newUnexpectedStatus(args.Status, resp.StatusCode)
	}
	if args.HasBody && !containsBytes(resp.Body, args.BodyContains) {
		return newBodyMismatch(args.BodyContains)
	}
	return nil
}

func httpGetFile(vc *vctx.Context, args *spec.HTTPGetFileArgs) error {
	resp, err := probe.Do(args.Port, probe.Request{Method: "GET", Path: args.Path}, probe.DefaultTimeouts())
	if err != nil {
		return err
	}
	want, err := os.ReadFile(filepath.Join(vc.Workspace, args.File))
	if err != nil {
		return err
	}
	if !bytesEqual(resp.Body, want) {
		return newBodyMismatch("response body does not byte-equal " + args.File)
	}
	return nil
}

func httpGetCompressed(args *spec.HTTPGetCompressedArgs) error {
	resp, err := probe.Do(args.Port, probe.Request{
		Method:  "GET",
		Path:    args.Path,
		Headers: []probe.Header{{Name: "Accept-Encoding", Value: args.Encoding}},
	}, probe.DefaultTimeouts())
	if err != nil {
		return err
	}
	got, ok := resp.Get("Content-Encoding")
	if !ok || got != args.Encoding {
		return newHeaderMismatch(fmt.Sprintf("Content-Encoding is %q, want %q", got, args.Encoding))
	}
	if _, err := probe.Decompress(args.Encoding, resp.Body); err != nil {
		return err
	}
	return nil
}

func jsonResponse(args *spec.JSONResponseArgs) error {
	resp, err := probe.Do(args.Port, probe.Request{Method: "GET", Path: args.Path}, probe.DefaultTimeouts())
	if err != nil {
		return err
	}
	got, err := probe.ResolveJSONPointer(resp.Body, args.Pointer)
	if err != nil {
		return err
	}
	if got != args.Expected {
		return newBodyMismatch("expected " + args.Expected + ", got " + got)
	}
	return nil
}

func concurrentRequests(args *spec.ConcurrentRequestsArgs) error {
	res := concurrency.Storm(args.Port, args.Path, args.Num, args.ExpectedStatus)
	if !res.Passed {
		return newStatusFailure(
			"%d/%d requests mismatched status, %d timed out", res.Mismatches, res.Total, res.TimedOut)
	}
	return nil
}

func rateLimit(args *spec.RateLimitArgs) error {
	res, err := probe.ProbeRateLimit(args.Port, args.Path, args.Allowed, args.Burst)
	if err != nil {
		return err
	}
	if !res.BurstPassed {
		return newStatusFailure("initial burst of %d did not all succeed", args.Burst)
	}
	if !res.Saw429 {
		return newStatusFailure("never observed a 429 after the burst (%d requests sent)", res.TotalRequests)
	}
	return nil
}

func gracefulShutdown(ctx context.Context, vc *vctx.Context, args *spec.GracefulShutdownArgs) error {
	binary := resolveBinary(vc, args.Binary)
	return concurrency.GracefulShutdown(ctx, vc.Workspace, binary, args.TimeoutMS)
}

func raceDetector(ctx context.Context, vc *vctx.Context, args *spec.RaceDetectorArgs) error {
	dir := args.SourceDir
	if dir == "" {
		dir = "."
	}
	return runDockerValidator(ctx, vc, []string{"sh", "-c", "go test -race ./" + trimDotSlash(dir) + "/..."})
}

func goCompile(ctx context.Context, vc *vctx.Context, args *spec.GoCompileArgs) error {
	dir := args.SourceDir
	if dir == "" {
		dir = "."
	}
	return runDockerValidator(ctx, vc, []string{"sh", "-c", "cd " + dir + " && go build ./..."})
}

func runDockerValidator(ctx context.Context, vc *vctx.Context, cmd []string) error {
	cli, err := container.NewClient()
	if err != nil {
		return err
	}
	defer cli.Close()

	_, err = cli.Run(ctx, container.RunOptions{
		Workspace: vc.Workspace,
		Cmd:       cmd,
		Progress:  vc.Progress,
	})
	return err
}

func jobQueueScenario(ctx context.Context, vc *vctx.Context, args *spec.JobQueueScenarioArgs) error {
	binary := resolveBinary(vc, args.Binary)
	return concurrency.JobQueueScenario(ctx, vc.Workspace, binary, args.SubmitCount, args.WorkerCount)
}

func workerPoolScenario(ctx context.Context, vc *vctx.Context, args *spec.WorkerPoolScenarioArgs) error {
	binary := resolveBinary(vc, args.Binary)
	return concurrency.WorkerPoolScenario(ctx, vc.Workspace, binary, args.WorkerCount, args.TaskCount)
}

func resolveBinary(vc *vctx.Context, binary string) string {
	if filepath.IsAbs(binary) {
		return binary
	}
	return filepath.Join(vc.Workspace, binary)
}

func trimDotSlash(dir string) string {
	if dir == "." {
		return "."
	}
	return dir
}

func containsBytes(haystack []byte, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, []byte(needle)) >= 0
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func indexOf(haystack, needle []byte) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
