package orchestrator

import (
	"context"

	"hostbackup/internal/engine"
	"hostbackup/internal/logging"
	"hostbackup/internal/queue"
	"hostbackup/internal/schedule"
	"hostbackup/internal/status"
)

// JobRunner executes one dequeued job as an isolated unit of work. Progress
// and the final outcome go to the job's status file; the structured result
// goes to the notifier. The dispatcher never sees either.
type JobRunner struct {
	backups   *BackupOrchestrator
	restores  *RestoreOrchestrator
	schedules *schedule.Store
	notifier  engine.Notifier
	statusDir string
	logger    *logging.Logger
}

// NewJobRunner creates a job runner. notifier may be nil.
func NewJobRunner(backups *BackupOrchestrator, restores *RestoreOrchestrator, schedules *schedule.Store, notifier engine.Notifier, statusDir string, logger *logging.Logger) *JobRunner {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &JobRunner{
		backups:   backups,
		restores:  restores,
		schedules: schedules,
		notifier:  notifier,
		statusDir: statusDir,
		logger:    logger,
	}
}

// Run executes the job to completion. It never returns an error: every
// outcome, including total failure, is reported through the status file and
// notifier.
func (r *JobRunner) Run(ctx context.Context, job *queue.Job) {
	st, err := status.NewWriter(r.statusDir, job.OperationID())
	if err != nil {
		r.logger.WithField("job_id", job.ID).Errorf("Cannot open status file, running without progress reporting: %v", err)
		st = nil
	}
	if st != nil {
		defer st.Close()
		st.Logf("%s job %s started (requested by %s)", job.Kind, job.ID, job.Requestor)
	}

	switch job.Kind {
	case queue.KindBackup:
		r.runBackup(ctx, job, st)
	case queue.KindRestore:
		r.runRestore(ctx, job, st)
	default:
		r.logger.WithField("job_id", job.ID).Errorf("Unknown job kind %q", job.Kind)
		if st != nil {
			st.Result(status.MarkerFailure)
		}
	}
}

func (r *JobRunner) runBackup(ctx context.Context, job *queue.Job, st *status.Writer) {
	result := r.backups.RunBackup(ctx, job.ID, job.Accounts, job.Destination, job.User, job.Requestor, job.ScheduleID, st)

	succeeded := 0
	for _, a := range result.Accounts {
		if a.Success {
			succeeded++
		}
	}

	if st != nil {
		st.Logf("backup finished: %d/%d accounts succeeded", succeeded, len(result.Accounts))
		switch {
		case succeeded == len(result.Accounts) && succeeded > 0:
			st.Result(status.MarkerSuccess)
		case succeeded > 0:
			st.Result(status.MarkerPartial)
		default:
			st.Result(status.MarkerFailure)
		}
	}

	if r.notifier != nil && r.shouldNotifyBackup(job.ScheduleID, result) {
		r.notifier.NotifyBackup(result, job.ScheduleID)
	}
}

func (r *JobRunner) runRestore(ctx context.Context, job *queue.Job, st *status.Writer) {
	opts := engine.RestoreOptions{}
	if job.Options != nil {
		opts = *job.Options
	}

	result := r.restores.RunRestore(ctx, job.Destination, job.BackupFile, opts, job.User, job.Requestor, st)

	if st != nil {
		if result.Success {
			st.Result(status.MarkerSuccess)
		} else {
			st.Result(status.MarkerFailure)
		}
	}

	if r.notifier != nil {
		r.notifier.NotifyRestore(result)
	}
}

// shouldNotifyBackup honors the schedule's notify flags. Manual backups and
// backups for schedules that no longer exist always notify.
func (r *JobRunner) shouldNotifyBackup(scheduleID string, result *engine.JobResult) bool {
	if scheduleID == "" || scheduleID == engine.ManualScheduleID || r.schedules == nil {
		return true
	}
	s, err := r.schedules.Get(scheduleID)
	if err != nil {
		return true
	}
	if result.Succeeded() && len(result.Failures()) == 0 {
		return s.NotifySuccess
	}
	return s.NotifyFailure
}
