// Package dispatcher implements the Validator Dispatcher: it runs a task's
// ordered validator spec list against a Validation Context and produces the
// result vector the reporter renders.
package dispatcher

import (
	"context"
	"sync"

	"github.com/quarrycli/quarry/internal/errs"
	"github.com/quarrycli/quarry/internal/result"
	"github.com/quarrycli/quarry/internal/spec"
	"github.com/quarrycli/quarry/internal/validator"
	"github.com/quarrycli/quarry/internal/vctx"
)

// maxParallel bounds how many of the validators that opt into parallel
// execution run at once: each gets its own goroutine, and a semaphore of
// this size gates their start.
const maxParallel = 8

// Parsed pairs one raw spec string with its parse result. A parse failure
// travels alongside the list instead of aborting it, so the dispatcher can
// emit a synthetic failing outcome at the right position.
type Parsed struct {
	Raw  string
	Spec *spec.Validator
	Err  error
}

// ParseSpecs parses raw validator-spec strings in declaration order.
func ParseSpecs(raw []string) []Parsed {
	out := make([]Parsed, 0, len(raw))
	for _, r := range raw {
		v, err := spec.Parse(r)
		out = append(out, Parsed{Raw: r, Spec: v, Err: err})
	}
	return out
}

// Run executes specs against vc in declaration order, honoring the parallel
// opt-in (no port, no workspace writes, no Docker) and the run's global
// deadline. Parse failures and deadline overruns are recorded as failing
// outcomes rather than aborting the run.
//
// ctx is cancelled on SIGINT by the caller; when that happens the in-flight
// validator and every validator not yet started are recorded as a
// "cancelled" outcome, and Run returns as soon as the in-flight validator
// has returned.
func Run(ctx context.Context, vc *vctx.Context, specs []Parsed) []result.Outcome {
	outcomes := make([]result.Outcome, len(specs))

	i := 0
	for i < len(specs) {
		if ctx.Err() != nil {
			fillCancelled(specs, outcomes, i)
			return outcomes
		}
		if vc.Expired() {
			fillDeadlineExceeded(specs, outcomes, i)
			return outcomes
		}

		if specs[i].Err != nil {
			outcomes[i] = invalidSpecOutcome(specs[i])
			i++
			continue
		}

		// Validators that opt into parallel execution run in a batch: scan
		// forward while the opt-in holds, then run that batch concurrently.
		if specs[i].Spec.Parallelizable() {
			j := i
			for j < len(specs) && specs[j].Err == nil && specs[j].Spec.Parallelizable() {
				j++
			}
			runParallel(ctx, vc, specs[i:j], outcomes[i:j])
			i = j
			continue
		}

		outcomes[i] = executeOne(ctx, vc, specs[i].Spec)
		i++
	}

	return outcomes
}

func executeOne(ctx context.Context, vc *vctx.Context, v *spec.Validator) result.Outcome {
	if ctx.Err() != nil {
		return result.NewOutcome(string(v.Kind), v.Name, false, errs.Wrap(errs.Cancelled), 0)
	}
	out := validator.Execute(ctx, vc, v)
	if ctx.Err() != nil {
		return result.NewOutcome(string(v.Kind), v.Name, false, errs.Wrap(errs.Cancelled), out.Duration)
	}
	return out
}

func runParallel(ctx context.Context, vc *vctx.Context, batch []Parsed, out []result.Outcome) {
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	for i, p := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v *spec.Validator) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = executeOne(ctx, vc, v)
		}(i, p.Spec)
	}
	wg.Wait()
}

func invalidSpecOutcome(p Parsed) result.Outcome {
	return result.NewOutcome("invalid", "invalid spec", false, errs.Wrap(p.Err), 0)
}

func fillCancelled(specs []Parsed, outcomes []result.Outcome, from int) {
	for i := from; i < len(specs); i++ {
		outcomes[i] = result.NewOutcome(kindOf(specs[i]), nameOf(specs[i]), false, errs.Wrap(errs.Cancelled), 0)
	}
}

func fillDeadlineExceeded(specs []Parsed, outcomes []result.Outcome, from int) {
	for i := from; i < len(specs); i++ {
		outcomes[i] = result.NewOutcome(kindOf(specs[i]), nameOf(specs[i]), false,
			errs.Wrap(errs.RunDeadlineExceeded), 0)
	}
}

func kindOf(p Parsed) string {
	if p.Err != nil {
		return "invalid"
	}
	return string(p.Spec.Kind)
}

func nameOf(p Parsed) string {
	if p.Err != nil {
		return "invalid spec"
	}
	return p.Spec.Name
}
