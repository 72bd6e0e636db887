package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/quarrycli/quarry/internal/config"
	"github.com/quarrycli/quarry/internal/dispatcher"
	"github.com/quarrycli/quarry/internal/errs"
	"github.com/quarrycli/quarry/internal/registry"
	"github.com/quarrycli/quarry/internal/report"
	"github.com/quarrycli/quarry/internal/result"
	"github.com/quarrycli/quarry/internal/runtimedetect"
	"github.com/quarrycli/quarry/internal/state"
	"github.com/quarrycli/quarry/internal/vctx"
	"github.com/quarrycli/quarry/pkg/logger"
)

// errChecksFailed signals "run finished, one or more validators failed":
// exit 1, with the detail already rendered by the reporter.
var errChecksFailed = errors.New("one or more checks failed")

func newRunCommand(cfg *config.Config, log logger.Logger) *cobra.Command {
	var (
		taskID        string
		workspace     string
		runtimeFlag   string
		noSubmit      bool
		globalTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a task's validators against the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), cfg, log, runOptions{
				taskID:        taskID,
				workspace:     workspace,
				runtime:       runtimeFlag,
				noSubmit:      noSubmit,
				globalTimeout: globalTimeout,
			})
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "task id to validate")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace directory (defaults to the active project's)")
	cmd.Flags().StringVar(&runtimeFlag, "runtime", "", "runtime tag (go|rust|c|python|typescript); detected when omitted")
	cmd.Flags().BoolVar(&noSubmit, "no-submit", false, "skip uploading the attempt outcome")
	cmd.Flags().DurationVar(&globalTimeout, "timeout", 5*time.Minute, "global deadline for the whole run")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

type runOptions struct {
	taskID        string
	workspace     string
	runtime       string
	noSubmit      bool
	globalTimeout time.Duration
}

func runTask(parent context.Context, cfg *config.Config, log logger.Logger, opts runOptions) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	task, err := registry.Lookup(opts.taskID)
	if err != nil {
		return errors.Wrap(errors.Mark(err, errs.InvalidArguments), "resolving task")
	}

	statePath, err := config.StatePath()
	if err != nil {
		return err
	}
	store := state.New(statePath, []byte(cfg.Auth.Token))
	st, stateErr := store.Load(ctx)
	if stateErr != nil {
		if errors.Is(stateErr, errs.StateLocked) {
			return stateErr
		}
		// An integrity failure voids the cache but never blocks a run.
		log.Warn("cached state discarded", "reason", stateErr.Error())
	}

	workspace := opts.workspace
	if workspace == "" {
		workspace = st.WorkspacePath
	}
	if workspace == "" {
		return errors.Wrap(errs.WorkspaceMissing, "no workspace given and no active project recorded")
	}

	runtime, err := vctx.ParseRuntime(opts.runtime)
	if err != nil {
		return err
	}
	if runtime == vctx.RuntimeUnspecified {
		runtime = runtimedetect.Detect(workspace)
	}

	vc, cleanup, err := vctx.Build(vctx.Options{
		Workspace:     workspace,
		Runtime:       runtime,
		TaskID:        task.ID,
		GlobalTimeout: opts.globalTimeout,
		ProgressFn: func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		},
	})
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info("running task", "task", task.ID, "workspace", vc.Workspace, "runtime", string(vc.Runtime))

	specs := dispatcher.ParseSpecs(task.Validators)
	outcomes := dispatcher.Run(ctx, vc, specs)

	alreadyCompleted := false
	attempt := 1
	for _, ts := range st.Tasks {
		if ts.ID == task.ID {
			alreadyCompleted = ts.PointsEarned > 0
			if ts.Status != "" && ts.Status != "awaits" {
				attempt = 2
			}
		}
	}

	res := &result.TaskResult{
		TaskID:        task.ID,
		AttemptID:     vc.AttemptID,
		Outcomes:      outcomes,
		AttemptNumber: attempt,
	}
	res.Compute(task.Points, alreadyCompleted)

	report.Render(os.Stdout, res)

	if res.IsComplete && res.PointsEarned > 0 && stateErr == nil {
		if err := store.MarkPointsEarned(ctx, task.ID, res.PointsEarned); err != nil {
			log.Warn("recording earned points failed", "error", err.Error())
		}
	}

	if !opts.noSubmit && cfg.Authenticated() {
		sub := report.NewHTTPSubmitter(cfg.APIBaseURL(), cfg.Auth.Token)
		if err := sub.Submit(ctx, report.NewEnvelope(res)); err != nil {
			log.Warn("attempt submission failed", "error", err.Error())
		}
	}

	if ctx.Err() != nil {
		return errs.Cancelled
	}
	if !res.IsComplete {
		return errChecksFailed
	}
	return nil
}
