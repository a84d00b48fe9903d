package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrBuildNotFound is wrapped by a ProtocolError when Jenkins answers 404
var ErrBuildNotFound = errors.New("not found")

// ProtocolError reports a failed exchange with the Jenkins server: a
// transport failure, a status outside 200..206 or an unparsable body.
type ProtocolError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %s (status %d)", e.Op, e.URL, describeStatus(e.StatusCode, e.Err), e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewStatusError builds the ProtocolError for an unexpected HTTP status
func NewStatusError(op, url string, statusCode int) *ProtocolError {
	var err error
	if statusCode == http.StatusNotFound {
		err = ErrBuildNotFound
	}
	return &ProtocolError{Op: op, URL: url, StatusCode: statusCode, Err: err}
}

// IsSuccessStatus reports whether Jenkins answered with a status the client accepts
func IsSuccessStatus(code int) bool {
	return code >= 200 && code <= 206
}

// describeStatus turns a status code into a short message without echoing
// the response body
func describeStatus(statusCode int, err error) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "authentication failed: invalid credentials"
	case http.StatusForbidden:
		return "access denied: insufficient permissions"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "jenkins server error"
	}
	if err != nil {
		return err.Error()
	}
	return "jenkins api request failed"
}
