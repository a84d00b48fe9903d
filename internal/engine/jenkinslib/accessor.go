// Package jenkinslib implements engine.Accessor on top of the gojenkins
// client library. gojenkins fetches a CSRF crumb before every POST, which
// makes this binding suitable for servers with crumb protection enabled.
package jenkinslib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/bndr/gojenkins"

	"jenkinsrun/internal/engine"
	"jenkinsrun/internal/logger"
)

// ErrAlreadyQueued is wrapped by the trigger error when the job already has
// a pending queue item and Jenkins would not schedule another build
var ErrAlreadyQueued = errors.New("job already has a queued build")

// Accessor implements engine.Accessor with gojenkins
type Accessor struct {
	httpClient *http.Client
	log        *slog.Logger

	mu      sync.Mutex
	servers map[serverKey]*gojenkins.Jenkins
}

type serverKey struct {
	baseURL  string
	username string
	password string
}

// NewAccessor creates a library-backed accessor. httpClient carries the
// request timeout and TLS settings; nil means http.DefaultClient.
func NewAccessor(httpClient *http.Client, log *slog.Logger) *Accessor {
	return &Accessor{
		httpClient: httpClient,
		log:        logger.OrDiscard(log),
		servers:    make(map[serverKey]*gojenkins.Jenkins),
	}
}

var _ engine.Accessor = (*Accessor)(nil)

// connect returns an initialized gojenkins server for the reference,
// running Init on first use. Init also sets up the package loggers gojenkins
// writes to, which are then routed into the accessor's logger.
func (a *Accessor) connect(ctx context.Context, job engine.JobRef) (*gojenkins.Jenkins, error) {
	key := serverKey{
		baseURL:  strings.TrimSuffix(job.BaseURL, "/"),
		username: job.Credentials.Username,
		password: job.Credentials.Password,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if server, ok := a.servers[key]; ok {
		return server, nil
	}

	server := gojenkins.CreateJenkins(a.httpClient, key.baseURL, key.username, key.password)
	if _, err := server.Init(ctx); err != nil {
		return nil, &engine.ProtocolError{Op: "connect", URL: key.baseURL + "/api/json", Err: err}
	}

	gojenkins.Info = slog.NewLogLogger(a.log.Handler(), slog.LevelDebug)
	gojenkins.Warning = slog.NewLogLogger(a.log.Handler(), slog.LevelWarn)
	gojenkins.Error = slog.NewLogLogger(a.log.Handler(), slog.LevelError)

	a.log.Debug("Connected to Jenkins", "url", key.baseURL, "version", server.Version)
	a.servers[key] = server
	return server, nil
}

// jobHandle returns a gojenkins job bound to the reference's server and
// credentials without fetching the job yet
func (a *Accessor) jobHandle(ctx context.Context, job engine.JobRef) (*gojenkins.Job, error) {
	server, err := a.connect(ctx, job)
	if err != nil {
		return nil, err
	}
	return &gojenkins.Job{
		Jenkins: server,
		Raw:     new(gojenkins.JobResponse),
		Base:    job.Path(),
	}, nil
}

// LatestBuildNumber polls the job and reads lastBuild.number
func (a *Accessor) LatestBuildNumber(ctx context.Context, job engine.JobRef) (engine.BuildNumber, error) {
	if err := job.Validate(); err != nil {
		return 0, err
	}

	const op = "get latest build number"
	fullURL := strings.TrimSuffix(job.BaseURL, "/") + job.Path() + "/api/json"

	handle, err := a.jobHandle(ctx, job)
	if err != nil {
		return 0, err
	}
	status, err := handle.Poll(ctx)
	if err != nil {
		return 0, &engine.ProtocolError{Op: op, URL: fullURL, Err: err}
	}
	a.log.Debug("gojenkins job polled", "job", job.Name, "status", status)
	if !engine.IsSuccessStatus(status) {
		return 0, engine.NewStatusError(op, fullURL, status)
	}

	// gojenkins drops decode errors; a job document always names the job
	if handle.Raw.Name == "" && handle.Raw.URL == "" {
		return 0, &engine.ProtocolError{Op: op, URL: fullURL, StatusCode: status, Err: errors.New("invalid job json")}
	}

	number := handle.Raw.LastBuild.Number
	if number <= 0 {
		return 0, &engine.ProtocolError{Op: op, URL: fullURL, StatusCode: status, Err: fmt.Errorf("job has no builds: %w", engine.ErrBuildNotFound)}
	}

	return engine.BuildNumber(number), nil
}

// BuildState polls one build of the job
func (a *Accessor) BuildState(ctx context.Context, job engine.JobRef, number engine.BuildNumber) (engine.BuildState, error) {
	if err := job.Validate(); err != nil {
		return engine.BuildState{}, err
	}

	const op = "get build state"
	handle, err := a.jobHandle(ctx, job)
	if err != nil {
		return engine.BuildState{}, err
	}
	build := &gojenkins.Build{
		Jenkins: handle.Jenkins,
		Job:     handle,
		Raw:     new(gojenkins.BuildResponse),
		Base:    fmt.Sprintf("%s/%d", job.Path(), number),
	}
	fullURL := strings.TrimSuffix(job.BaseURL, "/") + build.Base + "/api/json"

	status, err := build.Poll(ctx)
	if err != nil {
		return engine.BuildState{}, &engine.ProtocolError{Op: op, URL: fullURL, Err: err}
	}
	a.log.Debug("gojenkins build polled", "job", job.Name, "number", number, "status", status)
	if !engine.IsSuccessStatus(status) {
		return engine.BuildState{}, engine.NewStatusError(op, fullURL, status)
	}

	// A body that failed to decode leaves Raw zeroed, which would read as a
	// finished build without a result
	if build.Raw.Number != int64(number) {
		return engine.BuildState{}, &engine.ProtocolError{
			Op: op, URL: fullURL, StatusCode: status,
			Err: fmt.Errorf("invalid build json: expected build %d, got %d", number, build.Raw.Number),
		}
	}

	return engine.BuildState{
		Number:  number,
		Running: build.Raw.Building,
		Result:  engine.Result(build.Raw.Result),
	}, nil
}

// TriggerBuild invokes the job without parameters. The returned queue id
// is logged only: Jenkins assigns the build number later. A job that is
// already queued gets no new build, which is reported as ErrAlreadyQueued.
func (a *Accessor) TriggerBuild(ctx context.Context, job engine.JobRef) error {
	if err := job.Validate(); err != nil {
		return err
	}

	const op = "trigger build"
	fullURL := strings.TrimSuffix(job.BaseURL, "/") + job.Path() + "/build"

	handle, err := a.jobHandle(ctx, job)
	if err != nil {
		return err
	}

	queueID, err := handle.InvokeSimple(ctx, nil)
	if err != nil {
		return &engine.ProtocolError{Op: op, URL: fullURL, Err: err}
	}
	if queueID == 0 {
		a.log.Warn("Job already has a queued build, nothing was scheduled", "job", job.Name)
		return &engine.ProtocolError{Op: op, URL: fullURL, Err: ErrAlreadyQueued}
	}
	a.log.Debug("gojenkins build queued", "job", job.Name, "queue_id", queueID)

	return nil
}
