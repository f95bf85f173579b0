// Package state keeps a ledger of pipeline runs in SQLite: one row per
// command invocation and one row per file the run touched.
package state

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded command invocation.
type Run struct {
	ID          string
	Command     string
	Args        string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// File outcomes recorded by the commands.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeWritten  = "written"
)

// FileRecord is one file a run accepted, rejected, fetched or wrote.
type FileRecord struct {
	Path    string
	Kind    string
	Outcome string
	Detail  string
}
