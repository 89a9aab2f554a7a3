package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the current state of an import run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one pass of a source (or a raw payload file) through the pipeline.
type Run struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Status     RunStatus  `json:"status"`
	Stats      RunStats   `json:"stats"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunStats counts what happened to the rows of a run.
type RunStats struct {
	Rows             int `json:"rows"`
	Built            int `json:"built"`
	Written          int `json:"written"`
	Warnings         int `json:"warnings"`
	SchemaErrors     int `json:"schema_errors"`
	ValidationErrors int `json:"validation_errors"`
}

// Rejected returns the number of rows that did not produce a record.
func (s RunStats) Rejected() int {
	return s.SchemaErrors + s.ValidationErrors
}

// RejectKind classifies why a row did not produce a record.
type RejectKind string

const (
	RejectSchema     RejectKind = "schema"
	RejectValidation RejectKind = "validation"
)

// Reject is a row the pipeline refused, kept with its raw payload so the
// adapter bug behind it can be diagnosed and the row replayed.
type Reject struct {
	ID          string          `json:"id"`
	RunID       string          `json:"run_id"`
	SourceState string          `json:"source_state"`
	ProviderURL string          `json:"provider_url"`
	Kind        RejectKind      `json:"kind"`
	Reason      string          `json:"reason"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
