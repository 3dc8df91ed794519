package schedule

import (
	"context"
	"time"

	"hostbackup/internal/engine"
	"hostbackup/internal/logging"
)

// BackupEnqueuer accepts a backup job for a due schedule.
type BackupEnqueuer interface {
	EnqueueBackup(accounts []string, destinationID, user, requestor, scheduleID string) (string, error)
}

// DestinationChecker reports whether a destination is currently enabled.
type DestinationChecker interface {
	IsEnabled(destinationID string) bool
}

// Evaluator computes due schedules and enqueues backup jobs for them.
type Evaluator struct {
	store    *Store
	queue    BackupEnqueuer
	dests    DestinationChecker
	accounts engine.AccountLister
	logger   *logging.Logger
}

// NewEvaluator creates a schedule evaluator.
func NewEvaluator(store *Store, queue BackupEnqueuer, dests DestinationChecker, accounts engine.AccountLister, logger *logging.Logger) *Evaluator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Evaluator{
		store:    store,
		queue:    queue,
		dests:    dests,
		accounts: accounts,
		logger:   logger,
	}
}

// Evaluate walks every enabled schedule and enqueues one backup job per due
// schedule. Last-run/next-run bookkeeping is updated for every due schedule
// whether or not a job was enqueued: the trigger is at-least-once, not a
// completion confirmation. Returns the number of jobs enqueued.
func (e *Evaluator) Evaluate(ctx context.Context, now time.Time) (int, error) {
	schedules, err := e.store.List()
	if err != nil {
		return 0, err
	}

	enqueued := 0
	dirty := false

	for _, s := range schedules {
		if !s.Enabled {
			continue
		}

		// Seed next-run for schedules that have never been evaluated.
		if s.NextRun.IsZero() {
			next, err := s.ComputeNextRun(now)
			if err != nil {
				e.logger.WithField("schedule", s.ID).Errorf("Skipping schedule with invalid timing: %v", err)
				continue
			}
			s.NextRun = next
			dirty = true
			continue
		}

		if !s.Due(now) {
			continue
		}

		s.LastRun = now
		next, err := s.ComputeNextRun(now)
		if err != nil {
			e.logger.WithField("schedule", s.ID).Errorf("Cannot compute next run: %v", err)
			s.LastStatus = "error"
			dirty = true
			continue
		}
		s.NextRun = next
		dirty = true

		// A temporarily unreachable destination must not cascade into queue
		// failures, so the schedule is skipped but its bookkeeping advances.
		if !e.dests.IsEnabled(s.DestinationID) {
			e.logger.WithFields(map[string]interface{}{
				"schedule":    s.ID,
				"destination": s.DestinationID,
			}).Info("Destination disabled, skipping due schedule")
			s.LastStatus = "skipped:destination-disabled"
			continue
		}

		accounts, err := e.resolveAccounts(ctx, s)
		if err != nil {
			e.logger.WithField("schedule", s.ID).Errorf("Cannot resolve account list: %v", err)
			s.LastStatus = "error"
			continue
		}
		if len(accounts) == 0 {
			e.logger.WithField("schedule", s.ID).Debug("Schedule resolved no accounts, nothing to enqueue")
			s.LastStatus = "skipped:no-accounts"
			continue
		}

		jobID, err := e.queue.EnqueueBackup(accounts, s.DestinationID, "system", "schedule:"+s.ID, s.ID)
		if err != nil {
			e.logger.WithField("schedule", s.ID).Errorf("Failed to enqueue backup job: %v", err)
			s.LastStatus = "error"
			continue
		}

		e.logger.WithFields(map[string]interface{}{
			"schedule": s.ID,
			"job_id":   jobID,
			"accounts": len(accounts),
		}).Info("Enqueued scheduled backup")
		s.LastStatus = "queued"
		enqueued++
	}

	if dirty {
		if err := e.store.SaveAll(schedules); err != nil {
			return enqueued, err
		}
	}

	return enqueued, nil
}

// resolveAccounts snapshots the schedule's target accounts at evaluation time.
func (e *Evaluator) resolveAccounts(ctx context.Context, s *Schedule) ([]string, error) {
	if !s.AllAccounts {
		return s.Accounts, nil
	}
	if e.accounts == nil {
		return nil, engine.NewConfigurationError("schedule targets all accounts but no account lister is configured", nil)
	}
	return e.accounts.ListAccounts(ctx)
}
