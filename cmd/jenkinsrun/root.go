package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"jenkinsrun/internal/config"
	"jenkinsrun/internal/engine"
	"jenkinsrun/internal/engine/jenkins"
	"jenkinsrun/internal/engine/jenkinslib"
	"jenkinsrun/internal/logger"
	"jenkinsrun/internal/orchestrator"
	"jenkinsrun/internal/storage"
	"jenkinsrun/internal/storage/models"
)

var version = "v0.1.0"

// ErrNotSuccessful is returned with --require-success when the build
// finished with any result other than SUCCESS
var ErrNotSuccessful = errors.New("build did not succeed")

type rootOptions struct {
	configPath     string
	job            string
	binding        string
	requireSuccess bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "jenkinsrun",
		Short: "Trigger a Jenkins job and wait for the build to finish",
		Long: `jenkinsrun triggers one build of a Jenkins job, waits for the build to
get a number, and polls it until it completes. Progress is logged to stderr
as JSON; the final result is printed to stdout.`,
		Args:          cobra.NoArgs,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd.Context(), opts, stdout, stderr)
			if err != nil {
				fmt.Fprintln(stderr, "Error:", err)
			}
			return err
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Path to the configuration file (default: ./config.yaml or ~/ijenkins_config.ini)")
	flags.StringVar(&opts.job, "job", "", "Job to trigger, folders separated by '/' (overrides the configuration)")
	flags.StringVar(&opts.binding, "binding", "", "Accessor binding: http or gojenkins (overrides the configuration)")
	flags.BoolVar(&opts.requireSuccess, "require-success", false, "Exit non-zero unless the build result is SUCCESS")

	return cmd
}

func run(ctx context.Context, opts *rootOptions, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(config.GetLogLevel(), stderr)

	var store *storage.Store
	if cfg.Audit.Path != "" {
		store, err = storage.Open(cfg.Audit.Path, log)
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Error("Failed to close audit database", "error", err)
			}
		}()
	}

	accessor, err := newAccessor(cfg.Jenkins, log)
	if err != nil {
		return err
	}

	runner := orchestrator.New(accessor, cfg.Jenkins.JobRef(), log, orchestrator.Options{
		TriggerTimeout:     cfg.Polling.TriggerTimeout,
		CompletionTimeout:  cfg.Polling.CompletionTimeout,
		NumberPollInterval: cfg.Polling.NumberInterval,
		StatusPollInterval: cfg.Polling.StatusInterval,
	})

	res, runErr := runner.RunBuild(ctx)
	if store != nil {
		recordRun(store, log, cfg.Jenkins.URL, res, runErr)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(stdout, renderResult(stdout, res))

	if opts.requireSuccess && res.Result != engine.ResultSuccess {
		return fmt.Errorf("%w: %s #%d finished with %s", ErrNotSuccessful, res.Job, res.Number, resultLabel(res.Result))
	}
	return nil
}

// loadConfig loads the configuration file and applies flag overrides.
// Flags are routed through the environment so they take part in validation.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if opts.job != "" {
		if err := os.Setenv("JENKINSRUN_JENKINS_JOB", opts.job); err != nil {
			return nil, err
		}
	}
	if opts.binding != "" {
		if err := os.Setenv("JENKINSRUN_JENKINS_BINDING", opts.binding); err != nil {
			return nil, err
		}
	}

	path := opts.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

func newAccessor(cfg config.JenkinsConfig, log *slog.Logger) (engine.Accessor, error) {
	client := jenkins.NewClient(cfg, log)

	switch cfg.Binding {
	case config.BindingHTTP:
		return jenkins.NewAccessor(client), nil
	case config.BindingGoJenkins:
		return jenkinslib.NewAccessor(client.HTTPClient(), log), nil
	default:
		return nil, fmt.Errorf("unknown binding %q", cfg.Binding)
	}
}

// recordRun writes the run to the audit trail. Failures are logged only.
func recordRun(store *storage.Store, log *slog.Logger, serverURL string, res *orchestrator.RunResult, runErr error) {
	if res == nil {
		return
	}

	rec := models.RunRecord{
		RunID:      res.RunID,
		Timestamp:  res.StartedAt,
		Job:        res.Job,
		ServerURL:  serverURL,
		Baseline:   int64(res.Baseline),
		Number:     int64(res.Number),
		Result:     string(res.Result),
		Status:     models.StatusSucceeded,
		DurationMS: res.Duration().Milliseconds(),
	}
	if runErr != nil {
		rec.Status = models.StatusFailed
		rec.Error = runErr.Error()
	}

	// The run context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := store.InsertRun(ctx, rec); err != nil {
		log.Warn("Run was not recorded in the audit trail", "run_id", res.RunID, "error", err)
	}
}
