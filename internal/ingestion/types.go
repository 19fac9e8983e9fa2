// Package ingestion loads a movie dataset into a fresh index generation and
// the SQL document store, replacing the previous document set as a unit.
// Runs are gated by a fingerprint of the dataset file so that repeated
// triggers on an unchanged file do nothing.
package ingestion

import "time"

// Outcome of an ingestion run.
const (
	OutcomeSuccess = "success"
	OutcomeNoop    = "noop"
	OutcomeFailure = "failure"
)

// Request is the JSON body of the admin ingestion trigger. Empty fields
// fall back to the configured defaults.
type Request struct {
	Source string `json:"source"`
	Index  string `json:"index"`
	Format string `json:"format"`
	Force  bool   `json:"force"`
}

// Report summarizes one run.
type Report struct {
	Outcome     string        `json:"outcome"`
	Index       string        `json:"index"`
	Source      string        `json:"source"`
	Format      string        `json:"format,omitempty"`
	Fingerprint string        `json:"fingerprint"`
	Generation  string        `json:"generation,omitempty"`
	Parsed      int           `json:"parsed"`
	Skipped     int           `json:"skipped"`
	Merged      int           `json:"merged"`
	Indexed     int           `json:"indexed"`
	Failed      int           `json:"failed"`
	Rejects     []string      `json:"rejects,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"`
}
