package models

import (
	"time"
)

// Run outcomes
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunRecord represents one audited trigger-and-wait run
type RunRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	Job        string    `json:"job"`
	ServerURL  string    `json:"server_url"`
	Baseline   int64     `json:"baseline"`
	Number     int64     `json:"number"`
	Result     string    `json:"result"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}
