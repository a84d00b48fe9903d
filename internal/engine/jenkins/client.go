package jenkins

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"jenkinsrun/internal/config"
	"jenkinsrun/internal/engine"
	"jenkinsrun/internal/logger"
)

// maxLoggedBody caps how much of a response body ends up in debug records
const maxLoggedBody = 512

// Client is a thin HTTP transport for the Jenkins REST API
type Client struct {
	client *http.Client
	log    *slog.Logger
}

// NewClient creates a new Jenkins client instance
func NewClient(cfg config.JenkinsConfig, log *slog.Logger) *Client {
	log = logger.OrDiscard(log)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		log.Warn("TLS certificate verification is disabled for Jenkins requests")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // Explicitly requested by configuration
	}

	return &Client{
		client: &http.Client{
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
			Transport: transport,
		},
		log: log,
	}
}

// HTTPClient returns the underlying HTTP client
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// doRequest sends a request to the Jenkins API and returns the response body.
// Transport failures and statuses outside 200..206 come back as *engine.ProtocolError.
func (c *Client) doRequest(ctx context.Context, op, method, fullURL string, creds engine.Credentials, body io.Reader, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, &engine.ProtocolError{Op: op, URL: fullURL, Err: err}
	}

	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	c.log.Debug("Jenkins request", "op", op, "method", method, "url", fullURL)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &engine.ProtocolError{Op: op, URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &engine.ProtocolError{Op: op, URL: fullURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.log.Debug("Jenkins response", "op", op, "status", resp.StatusCode, "body", truncate(string(respBody)))

	if !engine.IsSuccessStatus(resp.StatusCode) {
		c.log.Warn("Jenkins API request failed", "op", op, "status", resp.Status, "url", fullURL)
		return nil, engine.NewStatusError(op, fullURL, resp.StatusCode)
	}

	return respBody, nil
}

// getCrumb retrieves the CSRF crumb from Jenkins for POST requests.
// Returns the crumb field name and value separately.
func (c *Client) getCrumb(ctx context.Context, job engine.JobRef) (string, string, error) {
	crumbURL := baseURL(job) + "/crumbIssuer/api/json"

	body, err := c.doRequest(ctx, "get crumb", http.MethodGet, crumbURL, job.Credentials, nil, nil)
	if err != nil {
		return "", "", err
	}

	var crumbData struct {
		Crumb             string `json:"crumb"`
		CrumbRequestField string `json:"crumbRequestField"`
	}
	if err := json.Unmarshal(body, &crumbData); err != nil {
		return "", "", &engine.ProtocolError{Op: "get crumb", URL: crumbURL, Err: fmt.Errorf("invalid crumb response: %w", err)}
	}

	crumbField := crumbData.CrumbRequestField
	if crumbField == "" {
		crumbField = "Jenkins-Crumb"
	}

	return crumbField, crumbData.Crumb, nil
}

// baseURL returns the server URL without a trailing slash
func baseURL(job engine.JobRef) string {
	return strings.TrimSuffix(job.BaseURL, "/")
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "..."
}
