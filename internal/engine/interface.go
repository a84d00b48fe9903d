package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// BuildNumber is the per-job sequence number Jenkins assigns to a build.
// Zero means the job has never been built.
type BuildNumber int64

// Result is the terminal outcome Jenkins reports for a finished build
type Result string

const (
	ResultSuccess  Result = "SUCCESS"
	ResultFailure  Result = "FAILURE"
	ResultUnstable Result = "UNSTABLE"
	ResultAborted  Result = "ABORTED"
	ResultNotBuilt Result = "NOT_BUILT"
)

// BuildState is a point-in-time snapshot of one build.
// Result is empty while Running is true.
type BuildState struct {
	Number  BuildNumber `json:"number"`
	Running bool        `json:"building"`
	Result  Result      `json:"result"`
}

// Credentials holds HTTP basic authentication data
type Credentials struct {
	Username string
	Password string
}

// JobRef identifies the job a client works against
type JobRef struct {
	BaseURL     string
	Credentials Credentials
	Name        string
}

// Path returns the URL path of the job, expanding folder segments:
// "team/app" becomes "/job/team/job/app".
func (j JobRef) Path() string {
	var b strings.Builder
	for _, segment := range j.Segments() {
		b.WriteString("/job/")
		b.WriteString(url.PathEscape(segment))
	}
	return b.String()
}

// Segments splits the job name into its folder path
func (j JobRef) Segments() []string {
	var segments []string
	for _, s := range strings.Split(j.Name, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// Validate checks that the reference can be turned into request URLs
func (j JobRef) Validate() error {
	if j.BaseURL == "" {
		return fmt.Errorf("job reference has no server url")
	}
	if len(j.Segments()) == 0 {
		return fmt.Errorf("job name cannot be empty")
	}
	for _, s := range j.Segments() {
		if s == "." || s == ".." {
			return fmt.Errorf("invalid job name format: %s", j.Name)
		}
	}
	return nil
}

// String returns the job name
func (j JobRef) String() string {
	return j.Name
}

// Accessor reads and triggers builds of a single Jenkins job.
// Implementations make exactly one logical round trip per call and never retry.
type Accessor interface {
	// LatestBuildNumber returns the number of the job's last build
	LatestBuildNumber(ctx context.Context, job JobRef) (BuildNumber, error)

	// BuildState returns the running flag and result of the given build
	BuildState(ctx context.Context, job JobRef, number BuildNumber) (BuildState, error)

	// TriggerBuild schedules one new build of the job
	TriggerBuild(ctx context.Context, job JobRef) error
}
