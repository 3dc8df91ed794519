package queue

import (
	"time"

	"hostbackup/internal/engine"
)

// Kind is the type of work a job represents.
type Kind string

const (
	KindBackup  Kind = "backup"
	KindRestore Kind = "restore"
)

// Job is one queued unit of work. It is written immutably to durable storage
// on creation and consumed exactly once by the dispatch loop.
type Job struct {
	ID          string                 `json:"id"`
	Kind        Kind                   `json:"type"`
	Accounts    []string               `json:"accounts,omitempty"`
	BackupFile  string                 `json:"backup_file,omitempty"`
	Destination string                 `json:"destination"`
	User        string                 `json:"user"`
	Requestor   string                 `json:"requestor"`
	ScheduleID  string                 `json:"schedule_id,omitempty"`
	BackupID    string                 `json:"backup_id,omitempty"`
	RestoreID   string                 `json:"restore_id,omitempty"`
	Options     *engine.RestoreOptions `json:"options,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// OperationID returns the id under which this job's progress is tracked.
func (j *Job) OperationID() string {
	switch j.Kind {
	case KindBackup:
		return j.BackupID
	case KindRestore:
		return j.RestoreID
	}
	return j.ID
}

// Validate checks the job record for dispatchability.
func (j *Job) Validate() error {
	if j.ID == "" {
		return engine.NewValidationError("job id cannot be empty", nil)
	}
	if j.Destination == "" {
		return engine.NewValidationError("job destination cannot be empty", nil)
	}
	switch j.Kind {
	case KindBackup:
		if len(j.Accounts) == 0 {
			return engine.NewValidationError("backup job has no accounts", nil)
		}
	case KindRestore:
		if j.BackupFile == "" {
			return engine.NewValidationError("restore job has no backup file", nil)
		}
	default:
		return engine.NewValidationError("unknown job kind: "+string(j.Kind), nil)
	}
	return nil
}
