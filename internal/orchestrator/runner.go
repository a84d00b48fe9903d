// Package orchestrator drives one trigger-and-wait cycle against a Jenkins job.
//
// Jenkins does not return the number of a triggered build, so the runner
// records the last build number before triggering and then waits for a larger
// one to appear. This attributes the build correctly only when nothing else
// triggers the same job during the run: the first number above the baseline
// is taken as ours even if it skips ahead.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"jenkinsrun/internal/engine"
	"jenkinsrun/internal/logger"
)

// Phase names a step of the trigger-and-wait cycle
type Phase string

const (
	PhaseCaptureBaseline Phase = "capture-baseline"
	PhaseTrigger         Phase = "trigger"
	PhaseAwaitNumber     Phase = "await-number"
	PhaseAwaitCompletion Phase = "await-completion"
)

// Default timing
const (
	DefaultTriggerTimeout     = 60 * time.Second
	DefaultCompletionTimeout  = 60 * time.Second
	DefaultNumberPollInterval = time.Second
	DefaultStatusPollInterval = 3 * time.Second
)

// Options tunes the polling loops. Zero values take the defaults.
type Options struct {
	TriggerTimeout     time.Duration // Budget for a new build number to appear
	CompletionTimeout  time.Duration // Budget for the build to finish
	NumberPollInterval time.Duration
	StatusPollInterval time.Duration
	Clock              Clock
}

func (o Options) withDefaults() Options {
	if o.TriggerTimeout <= 0 {
		o.TriggerTimeout = DefaultTriggerTimeout
	}
	if o.CompletionTimeout <= 0 {
		o.CompletionTimeout = DefaultCompletionTimeout
	}
	if o.NumberPollInterval <= 0 {
		o.NumberPollInterval = DefaultNumberPollInterval
	}
	if o.StatusPollInterval <= 0 {
		o.StatusPollInterval = DefaultStatusPollInterval
	}
	if o.Clock == nil {
		o.Clock = RealClock()
	}
	return o
}

// RunResult describes one trigger-and-wait cycle
type RunResult struct {
	RunID      string             `json:"run_id"`
	Job        string             `json:"job"`
	Baseline   engine.BuildNumber `json:"baseline"`
	Number     engine.BuildNumber `json:"number,omitempty"`
	Result     engine.Result      `json:"result,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Duration returns how long the run took
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Runner triggers builds of one job and waits for them
type Runner struct {
	accessor engine.Accessor
	job      engine.JobRef
	opts     Options
	log      *slog.Logger
}

// New creates a runner for job
func New(accessor engine.Accessor, job engine.JobRef, log *slog.Logger, opts Options) *Runner {
	return &Runner{
		accessor: accessor,
		job:      job,
		opts:     opts.withDefaults(),
		log:      logger.OrDiscard(log),
	}
}

// Options returns the effective options
func (r *Runner) Options() Options {
	return r.opts
}

// RunBuild triggers one build and blocks until it finishes or a polling
// budget runs out. A finished build is a successful run whatever its result.
// On error the returned RunResult still carries what was observed so far.
func (r *Runner) RunBuild(ctx context.Context) (*RunResult, error) {
	res := &RunResult{
		RunID:     uuid.NewString(),
		Job:       r.job.Name,
		StartedAt: r.opts.Clock.Now(),
	}
	log := r.log.With("run_id", res.RunID, "job", r.job.Name)

	err := r.run(ctx, log, res)
	res.FinishedAt = r.opts.Clock.Now()

	if err != nil {
		log.Error("Build run failed", "error", err, "duration", res.Duration().String())
		return res, err
	}

	log.Info("Build run finished", "number", res.Number, "result", res.Result, "duration", res.Duration().String())
	return res, nil
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, res *RunResult) error {
	baseline, err := r.captureBaseline(ctx, log)
	if err != nil {
		return err
	}
	res.Baseline = baseline

	log.Info("Triggering build", "phase", PhaseTrigger)
	if err := r.accessor.TriggerBuild(ctx, r.job); err != nil {
		return fmt.Errorf("%s: %w", PhaseTrigger, err)
	}
	log.Info("Build triggered", "phase", PhaseTrigger)

	number, err := r.awaitNumber(ctx, log, baseline)
	if err != nil {
		return err
	}
	res.Number = number

	state, err := r.awaitCompletion(ctx, log, number)
	if err != nil {
		return err
	}
	res.Result = state.Result

	return nil
}

// captureBaseline reads the last build number before anything is triggered.
// A job that has never been built has baseline 0.
func (r *Runner) captureBaseline(ctx context.Context, log *slog.Logger) (engine.BuildNumber, error) {
	log.Info("Capturing baseline build number", "phase", PhaseCaptureBaseline)

	baseline, err := r.accessor.LatestBuildNumber(ctx, r.job)
	if errors.Is(err, engine.ErrBuildNotFound) {
		log.Info("Job has no builds yet", "phase", PhaseCaptureBaseline, "baseline", 0, "not_found", true)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", PhaseCaptureBaseline, err)
	}

	log.Info("Baseline captured", "phase", PhaseCaptureBaseline, "baseline", baseline)
	return baseline, nil
}

// awaitNumber polls the last build number until it exceeds baseline
func (r *Runner) awaitNumber(ctx context.Context, log *slog.Logger, baseline engine.BuildNumber) (engine.BuildNumber, error) {
	clock := r.opts.Clock
	start := clock.Now()
	log.Info("Waiting for new build number", "phase", PhaseAwaitNumber, "baseline", baseline, "timeout", r.opts.TriggerTimeout.String())

	for poll := 1; ; poll++ {
		if err := clock.Sleep(ctx, r.opts.NumberPollInterval); err != nil {
			return 0, fmt.Errorf("%s: %w", PhaseAwaitNumber, err)
		}

		number, err := r.accessor.LatestBuildNumber(ctx, r.job)
		elapsed := clock.Now().Sub(start)

		switch {
		case errors.Is(err, engine.ErrBuildNotFound):
			log.Info("Build not started yet", "phase", PhaseAwaitNumber, "poll", poll, "elapsed", elapsed.String(), "not_found", true)
		case err != nil:
			return 0, fmt.Errorf("%s: %w", PhaseAwaitNumber, err)
		case number > baseline:
			if number > baseline+1 {
				log.Warn("Build number skipped ahead, assuming the first new build is ours",
					"phase", PhaseAwaitNumber, "baseline", baseline, "number", number)
			}
			log.Info("New build number observed", "phase", PhaseAwaitNumber, "poll", poll, "number", number, "elapsed", elapsed.String())
			return number, nil
		default:
			log.Info("Build not started yet", "phase", PhaseAwaitNumber, "poll", poll, "latest", number, "elapsed", elapsed.String())
		}

		if elapsed >= r.opts.TriggerTimeout {
			return 0, &TimeoutError{
				Phase:   PhaseAwaitNumber,
				Timeout: r.opts.TriggerTimeout,
				Elapsed: elapsed,
				Polls:   poll,
			}
		}
	}
}

// awaitCompletion polls the build until it stops running and returns the
// final state
func (r *Runner) awaitCompletion(ctx context.Context, log *slog.Logger, number engine.BuildNumber) (engine.BuildState, error) {
	clock := r.opts.Clock
	start := clock.Now()
	log.Info("Waiting for build to finish", "phase", PhaseAwaitCompletion, "number", number, "timeout", r.opts.CompletionTimeout.String())

	for poll := 1; ; poll++ {
		state, err := r.accessor.BuildState(ctx, r.job, number)
		elapsed := clock.Now().Sub(start)
		if err != nil {
			log.Error("Failed to read build state", "phase", PhaseAwaitCompletion, "poll", poll, "number", number,
				"not_found", errors.Is(err, engine.ErrBuildNotFound), "error", err)
			return engine.BuildState{}, fmt.Errorf("%s: %w", PhaseAwaitCompletion, err)
		}

		if !state.Running {
			if state.Result == "" {
				log.Warn("Build stopped without a result", "phase", PhaseAwaitCompletion, "number", number)
			}
			log.Info("Build completed", "phase", PhaseAwaitCompletion, "poll", poll, "number", number, "result", state.Result, "elapsed", elapsed.String())
			return state, nil
		}

		log.Info("Build is still running", "phase", PhaseAwaitCompletion, "poll", poll, "number", number, "elapsed", elapsed.String())

		if elapsed >= r.opts.CompletionTimeout {
			return engine.BuildState{}, &TimeoutError{
				Phase:   PhaseAwaitCompletion,
				Timeout: r.opts.CompletionTimeout,
				Elapsed: elapsed,
				Polls:   poll,
				Number:  number,
			}
		}

		if err := clock.Sleep(ctx, r.opts.StatusPollInterval); err != nil {
			return engine.BuildState{}, fmt.Errorf("%s: %w", PhaseAwaitCompletion, err)
		}
	}
}
