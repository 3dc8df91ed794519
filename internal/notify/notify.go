// Package notify provides the default Notifier used when no platform
// notification renderer is wired in: job results are summarized to the
// engine log.
package notify

import (
	"hostbackup/internal/engine"
	"hostbackup/internal/logging"
)

// LogNotifier reports job outcomes through the structured log.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &LogNotifier{logger: logger}
}

// NotifyBackup logs a backup job outcome.
func (n *LogNotifier) NotifyBackup(result *engine.JobResult, scheduleID string) {
	failures := result.Failures()
	entry := n.logger.WithFields(map[string]interface{}{
		"job_id":   result.JobID,
		"schedule": scheduleID,
		"accounts": len(result.Accounts),
		"failed":   len(failures),
	})

	if result.Succeeded() && len(failures) == 0 {
		entry.Info("Backup job succeeded")
		return
	}
	if result.Succeeded() {
		entry.Warn("Backup job partially succeeded")
		for _, f := range failures {
			n.logger.WithFields(map[string]interface{}{
				"job_id":  result.JobID,
				"account": f.Account,
			}).Warnf("Account backup failed: %s", f.Message)
		}
		return
	}
	entry.Error("Backup job failed")
}

// NotifyRestore logs a restore outcome.
func (n *LogNotifier) NotifyRestore(result *engine.RestoreResult) {
	entry := n.logger.WithFields(map[string]interface{}{
		"account":     result.Account,
		"backup_file": result.BackupFile,
	})
	if result.Success {
		entry.Info("Restore succeeded")
	} else {
		entry.Errorf("Restore failed: %s", result.Message)
	}
}
