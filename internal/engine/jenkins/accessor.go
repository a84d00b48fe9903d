package jenkins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"jenkinsrun/internal/engine"
)

// jenkinsBuildState is the subset of /job/{job}/{n}/api/json the accessor reads
type jenkinsBuildState struct {
	Number   int64   `json:"number"`
	Building *bool   `json:"building"`
	Result   *string `json:"result"`
}

// Accessor implements engine.Accessor over the plain Jenkins REST API
type Accessor struct {
	client *Client
}

// NewAccessor creates a new raw HTTP accessor
func NewAccessor(client *Client) *Accessor {
	return &Accessor{
		client: client,
	}
}

var _ engine.Accessor = (*Accessor)(nil)

// LatestBuildNumber reads /job/{job}/lastBuild/buildNumber
func (a *Accessor) LatestBuildNumber(ctx context.Context, job engine.JobRef) (engine.BuildNumber, error) {
	if err := job.Validate(); err != nil {
		return 0, err
	}

	const op = "get latest build number"
	fullURL := baseURL(job) + job.Path() + "/lastBuild/buildNumber"

	body, err := a.client.doRequest(ctx, op, http.MethodGet, fullURL, job.Credentials, nil, nil)
	if err != nil {
		return 0, err
	}

	text := strings.TrimSpace(string(body))
	number, err := strconv.ParseInt(text, 10, 64)
	if err != nil || number < 0 {
		return 0, &engine.ProtocolError{Op: op, URL: fullURL, Err: fmt.Errorf("invalid build number %q", truncate(text))}
	}

	return engine.BuildNumber(number), nil
}

// BuildState reads the running flag and result of one build
func (a *Accessor) BuildState(ctx context.Context, job engine.JobRef, number engine.BuildNumber) (engine.BuildState, error) {
	if err := job.Validate(); err != nil {
		return engine.BuildState{}, err
	}

	const op = "get build state"
	query := url.Values{"tree": {"number,building,result"}}
	fullURL := fmt.Sprintf("%s%s/%d/api/json?%s", baseURL(job), job.Path(), number, query.Encode())

	body, err := a.client.doRequest(ctx, op, http.MethodGet, fullURL, job.Credentials, nil, nil)
	if err != nil {
		return engine.BuildState{}, err
	}

	var raw jenkinsBuildState
	if err := json.Unmarshal(body, &raw); err != nil {
		return engine.BuildState{}, &engine.ProtocolError{Op: op, URL: fullURL, Err: fmt.Errorf("invalid build json: %w", err)}
	}
	if raw.Building == nil {
		return engine.BuildState{}, &engine.ProtocolError{Op: op, URL: fullURL, Err: fmt.Errorf("build json has no building field")}
	}

	state := engine.BuildState{
		Number:  number,
		Running: *raw.Building,
	}
	if raw.Result != nil {
		state.Result = engine.Result(*raw.Result)
	}
	if raw.Number != 0 {
		state.Number = engine.BuildNumber(raw.Number)
	}

	return state, nil
}

// TriggerBuild posts to /job/{job}/build with an empty build configuration.
// Some Jenkins versions want the crumb in the form data, others in a header;
// both are sent when a crumb is available.
func (a *Accessor) TriggerBuild(ctx context.Context, job engine.JobRef) error {
	if err := job.Validate(); err != nil {
		return err
	}

	crumbField, crumbValue, err := a.client.getCrumb(ctx, job)
	if err != nil {
		a.client.log.Warn("Failed to get CSRF crumb, proceeding without it", "error", err)
	}

	formData := url.Values{}
	formData.Set("json", "{}")

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	if crumbField != "" && crumbValue != "" {
		formData.Set(crumbField, crumbValue)
		header.Set(crumbField, crumbValue)
	}

	fullURL := baseURL(job) + job.Path() + "/build"
	_, err = a.client.doRequest(ctx, "trigger build", http.MethodPost, fullURL, job.Credentials, strings.NewReader(formData.Encode()), header)
	return err
}
