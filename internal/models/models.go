// Package models defines the core domain types for Helios.
package models

import "time"

// TaskState represents the lifecycle state of a background task.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateCancelled TaskState = "cancelled"
	TaskStateFailed    TaskState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCancelled, TaskStateFailed:
		return true
	}
	return false
}

// TaskSnapshot is a point-in-time view of a background task.
type TaskSnapshot struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	State      TaskState `json:"state"`
	Cancelable bool      `json:"cancelable"`
	Submitted  time.Time `json:"submitted"`
	Started    time.Time `json:"started,omitempty"`
}

// ArchiveSummary describes an opened archive.
type ArchiveSummary struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Entries int    `json:"entries"`
	Classes int    `json:"classes"`
	Size    int64  `json:"size"`
	IsZip   bool   `json:"is_zip"`
}

// RunOutcome classifies a finished transformation.
type RunOutcome string

const (
	RunOutcomeSuccess  RunOutcome = "success"
	RunOutcomeFailed   RunOutcome = "failed"
	RunOutcomeRejected RunOutcome = "rejected"
)

// TransformRun is a recorded transformation of one archive entry.
type TransformRun struct {
	ID           string            `json:"id"`
	Archive      string            `json:"archive"`
	Entry        string            `json:"entry"`
	Transformer  string            `json:"transformer"`
	InputHash    string            `json:"input_hash"`
	SettingsHash string            `json:"settings_hash"`
	Outcome      RunOutcome        `json:"outcome"`
	Message      string            `json:"message,omitempty"`
	Stdout       string            `json:"stdout,omitempty"`
	Stderr       string            `json:"stderr,omitempty"`
	Outputs      map[string][]byte `json:"outputs,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	EndedAt      time.Time         `json:"ended_at"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	Subject    string    `json:"subject,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
