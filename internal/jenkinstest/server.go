// Package jenkinstest provides an in-process fake of the Jenkins endpoints
// the accessors use. Builds move through a simulated queue and run phase
// driven by the number of polls they receive, so tests stay deterministic.
package jenkinstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Endpoint names a route of the fake server
type Endpoint string

const (
	EndpointRoot      Endpoint = "root"       // GET /api/json
	EndpointCrumb     Endpoint = "crumb"      // GET /crumbIssuer/api/json
	EndpointLastBuild Endpoint = "last-build" // GET /job/{job}/lastBuild/buildNumber
	EndpointJob       Endpoint = "job"        // GET /job/{job}/api/json
	EndpointBuild     Endpoint = "build"      // GET /job/{job}/{n}/api/json
	EndpointTrigger   Endpoint = "trigger"    // POST /job/{job}/build
)

// Options configures a fake server
type Options struct {
	Job       string // Job name, folders separated by "/"
	Username  string // Basic auth is enforced when set
	Password  string
	Crumb     string // Empty disables the crumb issuer (404)
	LastBuild int64  // Number of the last build before the test starts; 0 means never built
	// QueuePolls is how many latest-number reads still report the old number
	// after a trigger.
	QueuePolls int
	// RunPolls is how many state reads report a started build as running.
	RunPolls int
	Result   string // Result of finished builds (default SUCCESS)
	// InQueue makes the job document report a pending queue item
	InQueue bool
}

type build struct {
	remaining int
	result    string
}

// Server is a fake Jenkins server
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	opts      Options
	jobPath   string
	lastBuild int64
	queue     []int
	builds    map[int64]*build
	calls     map[Endpoint]int
	statuses  map[Endpoint]int
	queueID   int
}

// NewServer starts a fake Jenkins server. Callers must Close it.
func NewServer(opts Options) *Server {
	if opts.Result == "" {
		opts.Result = "SUCCESS"
	}

	s := &Server{
		opts:      opts,
		jobPath:   jobPath(opts.Job),
		lastBuild: opts.LastBuild,
		builds:    make(map[int64]*build),
		calls:     make(map[Endpoint]int),
		statuses:  make(map[Endpoint]int),
	}

	// Builds that already exist are finished
	for n := int64(1); n <= opts.LastBuild; n++ {
		s.builds[n] = &build{result: opts.Result}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/json", s.handleRoot)
	mux.HandleFunc("/crumbIssuer/", s.handleCrumb)
	mux.HandleFunc(s.jobPath+"/", s.handleJob)

	s.Server = httptest.NewServer(newAuthMiddleware(opts.Username, opts.Password).Middleware(mux))
	return s
}

// SetStatus forces every request to the endpoint to answer with code
func (s *Server) SetStatus(endpoint Endpoint, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[endpoint] = code
}

// Calls returns how many requests the endpoint received
func (s *Server) Calls(endpoint Endpoint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// LastBuild returns the current last build number
func (s *Server) LastBuild() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBuild
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, EndpointRoot) {
		return
	}
	w.Header().Set("X-Jenkins", "2.440.3")
	writeJSON(w, map[string]any{
		"_class":          "hudson.model.Hudson",
		"mode":            "NORMAL",
		"nodeDescription": "the Jenkins controller's built-in node",
		"useCrumbs":       s.opts.Crumb != "",
		"jobs":            []any{},
	})
}

func (s *Server) handleCrumb(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, EndpointCrumb) {
		return
	}
	if s.opts.Crumb == "" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]string{
		"_class":            "hudson.security.csrf.DefaultCrumbIssuer",
		"crumb":             s.opts.Crumb,
		"crumbRequestField": "Jenkins-Crumb",
	})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, s.jobPath), "/")

	switch {
	case rest == "lastBuild/buildNumber" && r.Method == http.MethodGet:
		s.handleLastBuild(w, r)
	case rest == "api/json" && r.Method == http.MethodGet:
		s.handleJobInfo(w, r)
	case rest == "build" && r.Method == http.MethodPost:
		s.handleTrigger(w, r)
	case strings.HasSuffix(rest, "/api/json") && r.Method == http.MethodGet:
		number, err := strconv.ParseInt(strings.TrimSuffix(rest, "/api/json"), 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		s.handleBuild(w, r, number)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleLastBuild(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, EndpointLastBuild) {
		return
	}
	number := s.pollQueue()
	if number == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain;charset=utf-8")
	fmt.Fprintf(w, "%d", number)
}

func (s *Server) handleJobInfo(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, EndpointJob) {
		return
	}
	number := s.pollQueue()

	info := map[string]any{
		"_class":    "hudson.model.FreeStyleProject",
		"name":      s.opts.Job,
		"url":       s.URL + s.jobPath + "/",
		"buildable": true,
		"inQueue":   s.opts.InQueue,
		"property":  []any{},
		"lastBuild": nil,
	}
	if number > 0 {
		info["lastBuild"] = map[string]any{
			"number": number,
			"url":    fmt.Sprintf("%s%s/%d/", s.URL, s.jobPath, number),
		}
	}
	writeJSON(w, info)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request, number int64) {
	if s.begin(w, EndpointBuild) {
		return
	}

	s.mu.Lock()
	b, ok := s.builds[number]
	var building bool
	var result any
	if ok {
		if b.remaining > 0 {
			b.remaining--
			building = true
		} else {
			result = b.result
		}
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]any{
		"_class":   "hudson.model.FreeStyleBuild",
		"number":   number,
		"building": building,
		"result":   result,
		"url":      fmt.Sprintf("%s%s/%d/", s.URL, s.jobPath, number),
	})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, EndpointTrigger) {
		return
	}

	if s.opts.Crumb != "" && r.Header.Get("Jenkins-Crumb") != s.opts.Crumb {
		if err := r.ParseForm(); err != nil || r.PostFormValue("Jenkins-Crumb") != s.opts.Crumb {
			http.Error(w, "No valid crumb was included in the request", http.StatusForbidden)
			return
		}
	}

	s.mu.Lock()
	s.queue = append(s.queue, s.opts.QueuePolls)
	s.queueID++
	id := s.queueID
	s.mu.Unlock()

	w.Header().Set("Location", fmt.Sprintf("%s/queue/item/%d/", s.URL, id))
	w.WriteHeader(http.StatusCreated)
}

// begin counts the call and writes a forced status if one is set.
// It returns true when the request has been answered.
func (s *Server) begin(w http.ResponseWriter, endpoint Endpoint) bool {
	s.mu.Lock()
	s.calls[endpoint]++
	code, forced := s.statuses[endpoint]
	s.mu.Unlock()

	if forced {
		http.Error(w, http.StatusText(code), code)
		return true
	}
	return false
}

// pollQueue advances the head of the build queue by one read and returns
// the last build number visible to this read
func (s *Server) pollQueue() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) > 0 {
		if s.queue[0] > 0 {
			s.queue[0]--
		} else {
			s.queue = s.queue[1:]
			s.lastBuild++
			s.builds[s.lastBuild] = &build{remaining: s.opts.RunPolls, result: s.opts.Result}
		}
	}
	return s.lastBuild
}

func jobPath(job string) string {
	var b strings.Builder
	for _, segment := range strings.Split(job, "/") {
		if segment != "" {
			b.WriteString("/job/")
			b.WriteString(segment)
		}
	}
	return b.String()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
