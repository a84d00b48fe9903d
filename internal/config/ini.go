package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// loadINI reads the legacy ijenkins_config.ini layout:
//
//	[jenkins]
//	username = qa
//	password = 123456
//	host = localhost
//	port = 8081
//	job_name = TestEmail
//
// plus optional [polling] and [audit] sections mirroring the YAML keys.
func loadINI(filePath string, config *Config) error {
	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("ini")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	config.Jenkins.URL = v.GetString("jenkins.url")
	config.Jenkins.Host = v.GetString("jenkins.host")
	config.Jenkins.Port = v.GetInt("jenkins.port")
	config.Jenkins.Username = v.GetString("jenkins.username")
	config.Jenkins.Password = v.GetString("jenkins.password")
	config.Jenkins.Token = v.GetString("jenkins.token")
	config.Jenkins.Job = v.GetString("jenkins.job_name")
	if config.Jenkins.Job == "" {
		config.Jenkins.Job = v.GetString("jenkins.job")
	}
	config.Jenkins.Timeout = v.GetInt("jenkins.timeout")
	config.Jenkins.InsecureSkipVerify = v.GetBool("jenkins.insecure_skip_verify")
	config.Jenkins.Binding = v.GetString("jenkins.binding")

	for name, dst := range config.Polling.durationFields() {
		key := "polling." + name
		value := v.GetString(key)
		if value == "" {
			continue
		}
		d, err := ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	config.Audit.Path = v.GetString("audit.path")

	return nil
}
