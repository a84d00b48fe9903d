package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"jenkinsrun/internal/engine"
)

// Accessor bindings
const (
	BindingHTTP      = "http"
	BindingGoJenkins = "gojenkins"
)

// Config represents the application configuration
type Config struct {
	Jenkins JenkinsConfig `yaml:"jenkins"`
	Polling PollingConfig `yaml:"polling"`
	Audit   AuditConfig   `yaml:"audit"`
}

// JenkinsConfig represents the Jenkins configuration
type JenkinsConfig struct {
	URL                string `yaml:"url"`  // Derived from host and port when empty
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	Token              string `yaml:"token"` // API token, used when password is empty
	Job                string `yaml:"job"`
	Timeout            int    `yaml:"timeout"` // Request timeout in seconds (default: 60)
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	Binding            string `yaml:"binding"` // http or gojenkins
}

// PollingConfig holds the timing of the trigger-and-wait cycle
type PollingConfig struct {
	TriggerTimeout    time.Duration `yaml:"trigger_timeout"`
	CompletionTimeout time.Duration `yaml:"completion_timeout"`
	NumberInterval    time.Duration `yaml:"number_interval"`
	StatusInterval    time.Duration `yaml:"status_interval"`
}

// durationFields maps the polling keys shared by the YAML and INI layouts
func (p *PollingConfig) durationFields() map[string]*time.Duration {
	return map[string]*time.Duration{
		"trigger_timeout":    &p.TriggerTimeout,
		"completion_timeout": &p.CompletionTimeout,
		"number_interval":    &p.NumberInterval,
		"status_interval":    &p.StatusInterval,
	}
}

// UnmarshalYAML reads polling values with ParseDuration, so a bare integer
// means seconds in YAML as it does in the INI layout
func (p *PollingConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}

	fields := p.durationFields()
	for key, node := range raw {
		dst, ok := fields[key]
		if !ok {
			return fmt.Errorf("line %d: unknown polling key %q", node.Line, key)
		}
		if node.Tag == "!!null" || node.Value == "" {
			continue
		}
		d, err := ParseDuration(node.Value)
		if err != nil {
			return fmt.Errorf("invalid polling.%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

// AuditConfig represents the run audit configuration
type AuditConfig struct {
	Path string `yaml:"path"` // Empty disables the audit trail
}

// JobRef returns the reference of the configured job
func (c JenkinsConfig) JobRef() engine.JobRef {
	return engine.JobRef{
		BaseURL: c.URL,
		Credentials: engine.Credentials{
			Username: c.Username,
			Password: c.Password,
		},
		Name: c.Job,
	}
}

// Load loads the configuration from the given file path.
// Files ending in .ini use the legacy INI layout; anything else is YAML.
// An empty path reads the environment only.
func Load(filePath string) (*Config, error) {
	config := &Config{}

	switch {
	case filePath == "":
	case isINI(filePath):
		if err := loadINI(filePath, config); err != nil {
			return nil, err
		}
	default:
		data, err := os.ReadFile(filePath) //nolint:gosec // Trusted file path input
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
		}
	}

	// Apply environment variables
	if err := applyEnvVars(config); err != nil {
		return nil, err
	}

	// Set default values if not provided
	setDefaults(config)

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultPath returns the first existing configuration file among
// ./config.yaml and $HOME/ijenkins_config.ini, or "" when there is none.
func DefaultPath() string {
	candidates := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "ijenkins_config.ini"))
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func isINI(filePath string) bool {
	return strings.EqualFold(filepath.Ext(filePath), ".ini")
}

// applyEnvVars applies environment variables to the configuration.
// A set but malformed value is an error rather than silently ignored.
func applyEnvVars(config *Config) error {
	// Jenkins configuration
	values := map[string]*string{
		"JENKINSRUN_JENKINS_URL":      &config.Jenkins.URL,
		"JENKINSRUN_JENKINS_HOST":     &config.Jenkins.Host,
		"JENKINSRUN_JENKINS_USERNAME": &config.Jenkins.Username,
		"JENKINSRUN_JENKINS_PASSWORD": &config.Jenkins.Password,
		"JENKINSRUN_JENKINS_TOKEN":    &config.Jenkins.Token,
		"JENKINSRUN_JENKINS_JOB":      &config.Jenkins.Job,
		"JENKINSRUN_JENKINS_BINDING":  &config.Jenkins.Binding,
		"JENKINSRUN_AUDIT_PATH":       &config.Audit.Path,
	}
	for key, dst := range values {
		if value := os.Getenv(key); value != "" {
			*dst = value
		}
	}

	ints := map[string]*int{
		"JENKINSRUN_JENKINS_PORT":    &config.Jenkins.Port,
		"JENKINSRUN_JENKINS_TIMEOUT": &config.Jenkins.Timeout,
	}
	for key, dst := range ints {
		if value := os.Getenv(key); value != "" {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid %s: %q is not an integer", key, value)
			}
			*dst = n
		}
	}

	if insecure := os.Getenv("JENKINSRUN_JENKINS_INSECURE"); insecure != "" {
		b, err := strconv.ParseBool(insecure)
		if err != nil {
			return fmt.Errorf("invalid JENKINSRUN_JENKINS_INSECURE: %q is not a boolean", insecure)
		}
		config.Jenkins.InsecureSkipVerify = b
	}

	// Polling configuration
	durations := map[string]*time.Duration{
		"JENKINSRUN_TRIGGER_TIMEOUT":    &config.Polling.TriggerTimeout,
		"JENKINSRUN_COMPLETION_TIMEOUT": &config.Polling.CompletionTimeout,
		"JENKINSRUN_NUMBER_INTERVAL":    &config.Polling.NumberInterval,
		"JENKINSRUN_STATUS_INTERVAL":    &config.Polling.StatusInterval,
	}
	for key, dst := range durations {
		if value := os.Getenv(key); value != "" {
			d, err := ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	return nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	// Jenkins defaults
	if config.Jenkins.Host == "" {
		config.Jenkins.Host = "localhost"
	}
	if config.Jenkins.Port == 0 {
		config.Jenkins.Port = 8080
	}
	if config.Jenkins.URL == "" {
		config.Jenkins.URL = fmt.Sprintf("http://%s:%d/", config.Jenkins.Host, config.Jenkins.Port)
	}
	if config.Jenkins.Timeout == 0 {
		config.Jenkins.Timeout = 60 // 60 seconds default timeout
	}
	if config.Jenkins.Password == "" {
		config.Jenkins.Password = config.Jenkins.Token
	}
	if config.Jenkins.Binding == "" {
		config.Jenkins.Binding = BindingHTTP
	}

	// Polling defaults
	if config.Polling.TriggerTimeout == 0 {
		config.Polling.TriggerTimeout = 60 * time.Second
	}
	if config.Polling.CompletionTimeout == 0 {
		config.Polling.CompletionTimeout = 60 * time.Second
	}
	if config.Polling.NumberInterval == 0 {
		config.Polling.NumberInterval = time.Second
	}
	if config.Polling.StatusInterval == 0 {
		config.Polling.StatusInterval = 3 * time.Second
	}
}

// GetLogLevel returns the log level from the environment
func GetLogLevel() string {
	levelStr := os.Getenv("JENKINSRUN_LOG_LEVEL")
	if levelStr == "" {
		return "info"
	}

	// Validate log level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if _, ok := validLevels[levelStr]; ok {
		return levelStr
	}

	return "info"
}

// ParseDuration parses a Go duration string; a bare integer means seconds
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(value)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	// Validate Jenkins configuration
	u, err := url.Parse(cfg.Jenkins.URL)
	if err != nil {
		return fmt.Errorf("invalid jenkins.url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid jenkins.url: %q (scheme must be http or https)", cfg.Jenkins.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid jenkins.url: %q (missing host)", cfg.Jenkins.URL)
	}
	if cfg.Jenkins.Port < 1 || cfg.Jenkins.Port > 65535 {
		return fmt.Errorf("invalid jenkins.port: %d (must be between 1 and 65535)", cfg.Jenkins.Port)
	}
	if cfg.Jenkins.Timeout < 0 {
		return fmt.Errorf("invalid jenkins.timeout: %d (must be non-negative)", cfg.Jenkins.Timeout)
	}
	if cfg.Jenkins.Username == "" {
		return fmt.Errorf("jenkins.username is required")
	}
	if cfg.Jenkins.Password == "" {
		return fmt.Errorf("jenkins.password is required")
	}
	if err := cfg.Jenkins.JobRef().Validate(); err != nil {
		return fmt.Errorf("invalid jenkins.job: %v", err)
	}
	if cfg.Jenkins.Binding != BindingHTTP && cfg.Jenkins.Binding != BindingGoJenkins {
		return fmt.Errorf("invalid jenkins.binding: %q (must be %s or %s)", cfg.Jenkins.Binding, BindingHTTP, BindingGoJenkins)
	}

	// Validate polling configuration
	polling := map[string]time.Duration{
		"polling.trigger_timeout":    cfg.Polling.TriggerTimeout,
		"polling.completion_timeout": cfg.Polling.CompletionTimeout,
		"polling.number_interval":    cfg.Polling.NumberInterval,
		"polling.status_interval":    cfg.Polling.StatusInterval,
	}
	for name, d := range polling {
		if d < 0 {
			return fmt.Errorf("invalid %s: %s (must be positive)", name, d)
		}
	}

	return nil
}
