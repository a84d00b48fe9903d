package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jenkinsrun/internal/config"
)

// writeConfig writes content to a temporary file with the given pattern
func writeConfig(t *testing.T, pattern, content string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, writeErr := tmpFile.WriteString(content); writeErr != nil {
		t.Fatalf("Failed to write config: %v", writeErr)
	}
	tmpFile.Close()

	return tmpFile.Name()
}

func TestLoadConfig(t *testing.T) {
	configContent := `
jenkins:
  url: https://test-jenkins.example.com/
  username: qa
  password: secret
  job: folder/TestEmail
  timeout: 30
  insecure_skip_verify: true
  binding: gojenkins

polling:
  trigger_timeout: 2m
  completion_timeout: 1h
  number_interval: 500ms
  status_interval: 10s

audit:
  path: ./runs.db
`

	cfg, err := config.Load(writeConfig(t, "config-test-*.yaml", configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify Jenkins config
	if cfg.Jenkins.URL != "https://test-jenkins.example.com/" {
		t.Errorf("Expected Jenkins URL https://test-jenkins.example.com/, got %s", cfg.Jenkins.URL)
	}
	if cfg.Jenkins.Username != "qa" || cfg.Jenkins.Password != "secret" {
		t.Errorf("Expected credentials qa/secret, got %s/%s", cfg.Jenkins.Username, cfg.Jenkins.Password)
	}
	if cfg.Jenkins.Job != "folder/TestEmail" {
		t.Errorf("Expected job folder/TestEmail, got %s", cfg.Jenkins.Job)
	}
	if cfg.Jenkins.Timeout != 30 {
		t.Errorf("Expected Jenkins timeout 30, got %d", cfg.Jenkins.Timeout)
	}
	if !cfg.Jenkins.InsecureSkipVerify {
		t.Error("Expected insecure_skip_verify to be true")
	}
	if cfg.Jenkins.Binding != config.BindingGoJenkins {
		t.Errorf("Expected binding gojenkins, got %s", cfg.Jenkins.Binding)
	}

	// Verify polling config
	if cfg.Polling.TriggerTimeout != 2*time.Minute {
		t.Errorf("Expected trigger timeout 2m, got %s", cfg.Polling.TriggerTimeout)
	}
	if cfg.Polling.CompletionTimeout != time.Hour {
		t.Errorf("Expected completion timeout 1h, got %s", cfg.Polling.CompletionTimeout)
	}
	if cfg.Polling.NumberInterval != 500*time.Millisecond {
		t.Errorf("Expected number interval 500ms, got %s", cfg.Polling.NumberInterval)
	}
	if cfg.Polling.StatusInterval != 10*time.Second {
		t.Errorf("Expected status interval 10s, got %s", cfg.Polling.StatusInterval)
	}

	// Verify audit config
	if cfg.Audit.Path != "./runs.db" {
		t.Errorf("Expected audit path ./runs.db, got %s", cfg.Audit.Path)
	}

	ref := cfg.Jenkins.JobRef()
	if ref.BaseURL != cfg.Jenkins.URL || ref.Name != "folder/TestEmail" || ref.Credentials.Username != "qa" {
		t.Errorf("Unexpected job reference %+v", ref)
	}
}

func TestConfigDefaults(t *testing.T) {
	configContent := `
jenkins:
  host: jenkins.internal
  port: 8081
  username: qa
  token: api-token
  job: TestEmail
`

	cfg, err := config.Load(writeConfig(t, "config-test-*.yaml", configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Jenkins.URL != "http://jenkins.internal:8081/" {
		t.Errorf("Expected URL derived from host and port, got %s", cfg.Jenkins.URL)
	}
	if cfg.Jenkins.Password != "api-token" {
		t.Errorf("Expected password to default to token, got %s", cfg.Jenkins.Password)
	}
	if cfg.Jenkins.Timeout != 60 {
		t.Errorf("Expected default Jenkins timeout 60, got %d", cfg.Jenkins.Timeout)
	}
	if cfg.Jenkins.Binding != config.BindingHTTP {
		t.Errorf("Expected default binding http, got %s", cfg.Jenkins.Binding)
	}
	if cfg.Polling.TriggerTimeout != 60*time.Second || cfg.Polling.CompletionTimeout != 60*time.Second {
		t.Errorf("Expected default timeouts of 60s, got %s and %s", cfg.Polling.TriggerTimeout, cfg.Polling.CompletionTimeout)
	}
	if cfg.Polling.NumberInterval != time.Second {
		t.Errorf("Expected default number interval 1s, got %s", cfg.Polling.NumberInterval)
	}
	if cfg.Polling.StatusInterval != 3*time.Second {
		t.Errorf("Expected default status interval 3s, got %s", cfg.Polling.StatusInterval)
	}
	if cfg.Audit.Path != "" {
		t.Errorf("Expected audit to be disabled by default, got %s", cfg.Audit.Path)
	}
}

func TestLoadINI(t *testing.T) {
	configContent := `
[jenkins]
username = qa
password = 123456
host = localhost
port = 8081
job_name = TestEmail

[polling]
trigger_timeout = 90
status_interval = 5s
`

	cfg, err := config.Load(writeConfig(t, "ijenkins_config-*.ini", configContent))
	if err != nil {
		t.Fatalf("Failed to load INI config: %v", err)
	}

	if cfg.Jenkins.URL != "http://localhost:8081/" {
		t.Errorf("Expected URL http://localhost:8081/, got %s", cfg.Jenkins.URL)
	}
	if cfg.Jenkins.Username != "qa" || cfg.Jenkins.Password != "123456" {
		t.Errorf("Expected credentials qa/123456, got %s/%s", cfg.Jenkins.Username, cfg.Jenkins.Password)
	}
	if cfg.Jenkins.Job != "TestEmail" {
		t.Errorf("Expected job TestEmail, got %s", cfg.Jenkins.Job)
	}
	if cfg.Polling.TriggerTimeout != 90*time.Second {
		t.Errorf("Expected bare integer to mean seconds, got %s", cfg.Polling.TriggerTimeout)
	}
	if cfg.Polling.StatusInterval != 5*time.Second {
		t.Errorf("Expected status interval 5s, got %s", cfg.Polling.StatusInterval)
	}
	if cfg.Polling.NumberInterval != time.Second {
		t.Errorf("Expected default number interval 1s, got %s", cfg.Polling.NumberInterval)
	}
}

func TestLoadINI_InvalidDuration(t *testing.T) {
	configContent := `
[jenkins]
username = qa
password = 123456
job_name = TestEmail

[polling]
trigger_timeout = soon
`

	_, err := config.Load(writeConfig(t, "ijenkins_config-*.ini", configContent))
	if err == nil {
		t.Fatal("Expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "polling.trigger_timeout") {
		t.Errorf("Expected error to name the key, got %v", err)
	}
}

func TestLoadYAML_IntegerDurations(t *testing.T) {
	configContent := `
jenkins:
  url: https://test-jenkins.example.com
  username: qa
  password: secret
  job: TestEmail
polling:
  trigger_timeout: 90
  completion_timeout: 2m
  status_interval:
`

	cfg, err := config.Load(writeConfig(t, "config-test-*.yaml", configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Polling.TriggerTimeout != 90*time.Second {
		t.Errorf("Expected bare integer to mean seconds, got %s", cfg.Polling.TriggerTimeout)
	}
	if cfg.Polling.CompletionTimeout != 2*time.Minute {
		t.Errorf("Expected completion timeout 2m, got %s", cfg.Polling.CompletionTimeout)
	}
	if cfg.Polling.StatusInterval != 3*time.Second {
		t.Errorf("Expected empty value to keep the default, got %s", cfg.Polling.StatusInterval)
	}
}

func TestLoadYAML_InvalidPolling(t *testing.T) {
	tests := []struct {
		name          string
		polling       string
		errorContains string
	}{
		{"Invalid Duration", "  number_interval: soon\n", "polling.number_interval"},
		{"Unknown Key", "  poll_every: 1s\n", "poll_every"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configContent := `
jenkins:
  url: https://test-jenkins.example.com
  username: qa
  password: secret
  job: TestEmail
polling:
` + tt.polling

			_, err := config.Load(writeConfig(t, "config-test-*.yaml", configContent))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Expected error containing %q, got %v", tt.errorContains, err)
			}
		})
	}
}

func TestConfigEnvVars(t *testing.T) {
	t.Setenv("JENKINSRUN_JENKINS_URL", "https://env-jenkins.example.com")
	t.Setenv("JENKINSRUN_JENKINS_JOB", "EnvJob")
	t.Setenv("JENKINSRUN_TRIGGER_TIMEOUT", "15s")
	t.Setenv("JENKINSRUN_STATUS_INTERVAL", "7")
	t.Setenv("JENKINSRUN_JENKINS_INSECURE", "true")

	configContent := `
jenkins:
  url: https://test-jenkins.example.com
  username: qa
  password: secret
  job: FileJob
`

	cfg, err := config.Load(writeConfig(t, "config-test-*.yaml", configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Jenkins.URL != "https://env-jenkins.example.com" {
		t.Errorf("Expected Jenkins URL from env var, got %s", cfg.Jenkins.URL)
	}
	if cfg.Jenkins.Job != "EnvJob" {
		t.Errorf("Expected job from env var, got %s", cfg.Jenkins.Job)
	}
	if cfg.Polling.TriggerTimeout != 15*time.Second {
		t.Errorf("Expected trigger timeout 15s from env var, got %s", cfg.Polling.TriggerTimeout)
	}
	if cfg.Polling.StatusInterval != 7*time.Second {
		t.Errorf("Expected status interval 7s from env var, got %s", cfg.Polling.StatusInterval)
	}
	if !cfg.Jenkins.InsecureSkipVerify {
		t.Error("Expected insecure flag from env var")
	}
}

func TestConfigEnvVars_Token(t *testing.T) {
	t.Setenv("JENKINSRUN_JENKINS_USERNAME", "qa")
	t.Setenv("JENKINSRUN_JENKINS_PASSWORD", "")
	t.Setenv("JENKINSRUN_JENKINS_TOKEN", "api-token")
	t.Setenv("JENKINSRUN_JENKINS_JOB", "TestEmail")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Failed to load config from env: %v", err)
	}
	if cfg.Jenkins.Token != "api-token" || cfg.Jenkins.Password != "api-token" {
		t.Errorf("Expected token from env to serve as password, got token=%q password=%q", cfg.Jenkins.Token, cfg.Jenkins.Password)
	}
}

func TestConfigEnvVars_Malformed(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"JENKINSRUN_JENKINS_PORT", "http"},
		{"JENKINSRUN_JENKINS_TIMEOUT", "1m"},
		{"JENKINSRUN_JENKINS_INSECURE", "maybe"},
		{"JENKINSRUN_TRIGGER_TIMEOUT", "soon"},
		{"JENKINSRUN_STATUS_INTERVAL", "3 seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv("JENKINSRUN_JENKINS_USERNAME", "qa")
			t.Setenv("JENKINSRUN_JENKINS_PASSWORD", "secret")
			t.Setenv("JENKINSRUN_JENKINS_JOB", "TestEmail")
			t.Setenv(tt.key, tt.value)

			_, err := config.Load("")
			if err == nil {
				t.Fatalf("Expected error for %s=%q, got nil", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Expected error to name %s, got %v", tt.key, err)
			}
		})
	}
}

func TestLoadFromEnvOnly(t *testing.T) {
	t.Setenv("JENKINSRUN_JENKINS_HOST", "ci.example.com")
	t.Setenv("JENKINSRUN_JENKINS_PORT", "9090")
	t.Setenv("JENKINSRUN_JENKINS_USERNAME", "qa")
	t.Setenv("JENKINSRUN_JENKINS_PASSWORD", "secret")
	t.Setenv("JENKINSRUN_JENKINS_JOB", "TestEmail")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Failed to load config from env: %v", err)
	}
	if cfg.Jenkins.URL != "http://ci.example.com:9090/" {
		t.Errorf("Expected URL http://ci.example.com:9090/, got %s", cfg.Jenkins.URL)
	}
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("JENKINSRUN_LOG_LEVEL", "")
	if level := config.GetLogLevel(); level != "info" {
		t.Errorf("Expected default log level info, got %s", level)
	}

	for _, validLevel := range []string{"debug", "info", "warn", "error"} {
		t.Setenv("JENKINSRUN_LOG_LEVEL", validLevel)
		if lvl := config.GetLogLevel(); lvl != validLevel {
			t.Errorf("Expected log level %s, got %s", validLevel, lvl)
		}
	}

	t.Setenv("JENKINSRUN_LOG_LEVEL", "invalid")
	if level := config.GetLogLevel(); level != "info" {
		t.Errorf("Expected log level info for invalid value, got %s", level)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"60", 60 * time.Second, false},
		{" 3 ", 3 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"250ms", 250 * time.Millisecond, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		got, err := config.ParseDuration(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDuration(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDuration(%q) = %s, %v; want %s", tt.in, got, err, tt.want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	work := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(work); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	defer os.Chdir(wd)

	if path := config.DefaultPath(); path != "" {
		t.Errorf("Expected no default path, got %s", path)
	}

	ini := filepath.Join(home, "ijenkins_config.ini")
	if err := os.WriteFile(ini, []byte("[jenkins]\n"), 0o600); err != nil {
		t.Fatalf("Failed to write INI: %v", err)
	}
	if path := config.DefaultPath(); path != ini {
		t.Errorf("Expected %s, got %s", ini, path)
	}

	if err := os.WriteFile(filepath.Join(work, "config.yaml"), []byte("jenkins: {}\n"), 0o600); err != nil {
		t.Fatalf("Failed to write YAML: %v", err)
	}
	if path := config.DefaultPath(); path != "config.yaml" {
		t.Errorf("Expected config.yaml to take precedence, got %s", path)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		expectError   bool
		errorContains string
	}{
		{
			name: "Valid config",
			configContent: `
jenkins:
  url: https://test-jenkins.example.com
  username: qa
  password: secret
  job: TestEmail
`,
			expectError: false,
		},
		{
			name: "Missing Username",
			configContent: `
jenkins:
  url: https://test-jenkins.example.com
  password: secret
  job: TestEmail
`,
			expectError:   true,
			errorContains: "jenkins.username is required",
		},
		{
			name: "Missing Password",
			configContent: `
jenkins:
  url: https://test-jenkins.example.com
  username: qa
  job: TestEmail
`,
			expectError:   true,
			errorContains: "jenkins.password is required",
		},
		{
			name: "Missing Job",
			configContent: `
jenkins:
  url: https://test-jenkins.example.com
  username: qa
  password: secret
`,
			expectError:   true,
			errorContains: "invalid jenkins.job",
		},
		{
			name: "Invalid Jenkins URL",
			configContent: `
jenkins:
  url: "://invalid-url"
  username: qa
  password: secret
  job: TestEmail
`,
			expectError:   true,
			errorContains: "invalid jenkins.url",
		},
		{
			name: "Unsupported Scheme",
			configContent: `
jenkins:
  url: ftp://jenkins.example.com
  username: qa
  password: secret
  job: TestEmail
`,
			expectError:   true,
			errorContains: "scheme must be http or https",
		},
		{
			name: "Invalid Port",
			configContent: `
jenkins:
  port: 70000
  username: qa
  password: secret
  job: TestEmail
`,
			expectError:   true,
			errorContains: "invalid jenkins.port",
		},
		{
			name: "Unknown Binding",
			configContent: `
jenkins:
  url: https://test-jenkins.example.com
  username: qa
  password: secret
  job: TestEmail
  binding: soap
`,
			expectError:   true,
			errorContains: "invalid jenkins.binding",
		},
		{
			name: "Negative Interval",
			configContent: `
jenkins:
  url: https://test-jenkins.example.com
  username: qa
  password: secret
  job: TestEmail
polling:
  status_interval: -1s
`,
			expectError:   true,
			errorContains: "invalid polling.status_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, "config-validation-test-*.yaml", tt.configContent))
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain %q, got %q", tt.errorContains, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				if cfg == nil {
					t.Error("Config should not be nil")
				}
			}
		})
	}
}
