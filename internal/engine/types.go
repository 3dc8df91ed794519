package engine

import (
	"context"
	"time"
)

// ManualScheduleID is the reserved manifest id for on-demand backups.
// Entries recorded under it are never pruned.
const ManualScheduleID = "_manual"

// AccountResult is the per-account outcome of a backup run. Orchestration
// continues across sibling accounts, so failures are carried as data rather
// than returned errors.
type AccountResult struct {
	Account     string    `json:"account"`
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	Warnings    []string  `json:"warnings,omitempty"`
	ArchivePath string    `json:"archive_path,omitempty"`
	DBPath      string    `json:"db_path,omitempty"`
	ArchiveSize int64     `json:"archive_size,omitempty"`
	DBSize      int64     `json:"db_size,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// JobResult aggregates per-account results for one bulk job.
type JobResult struct {
	JobID    string          `json:"job_id"`
	Kind     string          `json:"kind"`
	Accounts []AccountResult `json:"accounts"`
}

// Succeeded reports whether any account in the job succeeded. A bulk job is
// failed only when every account failed.
func (r *JobResult) Succeeded() bool {
	if len(r.Accounts) == 0 {
		return false
	}
	for _, a := range r.Accounts {
		if a.Success {
			return true
		}
	}
	return false
}

// Failures returns the results of accounts that did not succeed.
func (r *JobResult) Failures() []AccountResult {
	var failed []AccountResult
	for _, a := range r.Accounts {
		if !a.Success {
			failed = append(failed, a)
		}
	}
	return failed
}

// RestoreResult is the outcome of one restore operation.
type RestoreResult struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	Account    string    `json:"account,omitempty"`
	BackupFile string    `json:"backup_file"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// PackageOptions controls what the external packager includes in an
// account archive.
type PackageOptions struct {
	SkipHomeDir   bool
	SkipDatabases bool
	Incremental   bool
}

// Packager produces a raw account archive in the given work directory and
// returns the path of the archive it wrote. Implemented by the platform's
// account-packaging tool; faked in tests.
type Packager interface {
	Package(ctx context.Context, account string, workDir string, opts PackageOptions) (string, error)
}

// DBBackupTool produces a hot database archive for an account, independent
// of the packager's own database handling.
type DBBackupTool interface {
	DumpDatabases(ctx context.Context, account string, workDir string) (string, error)
}

// DatabaseMethod selects how account databases are captured during backup.
type DatabaseMethod string

const (
	// DatabaseMethodPackager leaves database handling to the packager archive.
	DatabaseMethodPackager DatabaseMethod = "packager"
	// DatabaseMethodHotBackup runs the dedicated DBBackupTool alongside the packager.
	DatabaseMethodHotBackup DatabaseMethod = "hot-backup"
	// DatabaseMethodSkip captures no databases at all.
	DatabaseMethodSkip DatabaseMethod = "skip"
)

// RestoreOptions selects which parts of an account the platform restore
// mechanism applies.
type RestoreOptions struct {
	HomeDir    bool   `json:"homedir"`
	Mail       bool   `json:"mail"`
	DNS        bool   `json:"dns"`
	SSL        bool   `json:"ssl"`
	Cron       bool   `json:"cron"`
	Subdomains bool   `json:"subdomains"`
	DBFile     string `json:"db_file,omitempty"`
}

// AccountRestorer is the platform's account-restore mechanism.
type AccountRestorer interface {
	Restore(ctx context.Context, account string, archivePath string, opts RestoreOptions) error
}

// AccountLister resolves the "all accounts" flag to a concrete snapshot of
// account names at evaluation time.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]string, error)
}

// AccessControl filters destinations administratively unavailable to an
// identity. The rule itself is owned by the platform.
type AccessControl interface {
	CanUseDestination(user string, destinationID string) bool
}

// Notifier receives structured job results for rendering and delivery.
type Notifier interface {
	NotifyBackup(result *JobResult, scheduleID string)
	NotifyRestore(result *RestoreResult)
}
