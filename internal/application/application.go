package application

import (
	"context"
	"time"

	"hostbackup/internal/config"
	"hostbackup/internal/crypt"
	"hostbackup/internal/dbrestore"
	"hostbackup/internal/engine"
	"hostbackup/internal/logging"
	"hostbackup/internal/manifest"
	"hostbackup/internal/notify"
	"hostbackup/internal/orchestrator"
	"hostbackup/internal/platform"
	"hostbackup/internal/queue"
	"hostbackup/internal/schedule"
	"hostbackup/internal/status"
	"hostbackup/internal/transport"
)

// Application wires the engine's components together with explicit
// dependency construction; nothing reaches for global state.
type Application struct {
	cfg        *config.Config
	logger     *logging.Logger
	schedules  *schedule.Store
	manifests  *manifest.Store
	registry   *transport.Registry
	jobs       *queue.Queue
	dispatcher *queue.Dispatcher
	evaluator  *schedule.Evaluator
}

// New builds an application from configuration, using the exec-based
// platform adapters for the external collaborators.
func New(cfg *config.Config) (*Application, error) {
	logger, err := logging.NewLogger(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Format:  cfg.LogFormat,
		LogFile: cfg.LogFile,
	})
	if err != nil {
		return nil, err
	}

	schedules := schedule.NewStore(cfg.SchedulesFile)

	manifests, err := manifest.NewStore(cfg.ManifestDir)
	if err != nil {
		return nil, err
	}

	registry := transport.NewRegistry(cfg.DestinationsFile, platform.AllowAllACL{}, logger)

	jobs, err := queue.NewQueue(cfg.QueueDir)
	if err != nil {
		return nil, err
	}

	var encryptor *crypt.Encryptor
	if cfg.EncryptionKey != "" {
		if encryptor, err = crypt.NewEncryptor(cfg.EncryptionKey); err != nil {
			return nil, err
		}
	}

	var dbRestorer orchestrator.DatabaseRestorer
	if cfg.MySQLDSN != "" {
		restorer, err := dbrestore.Open(cfg.MySQLDSN, logger)
		if err != nil {
			return nil, err
		}
		dbRestorer = restorer
	}

	pruner := orchestrator.NewPruner(manifests, registry, logger)

	backups := orchestrator.NewBackupOrchestrator(
		&platform.ExecPackager{Command: cfg.PackagerCmd, Args: cfg.PackagerArgs},
		&platform.ExecDBBackupTool{Command: cfg.DBBackupCmd, Args: cfg.DBBackupArgs},
		engine.DatabaseMethod(cfg.DatabaseMethod),
		registry,
		manifests,
		schedules,
		pruner,
		encryptor,
		cfg.ScratchDir,
		logger,
	)

	restores := orchestrator.NewRestoreOrchestrator(
		registry,
		&platform.ExecAccountRestorer{Command: cfg.RestoreCmd, Args: cfg.RestoreArgs},
		dbRestorer,
		encryptor,
		cfg.ScratchDir,
		logger,
	)

	runner := orchestrator.NewJobRunner(backups, restores, schedules,
		notify.NewLogNotifier(logger), cfg.StatusDir, logger)

	dispatcher := queue.NewDispatcher(jobs, runner, cfg.LockFile, logger)

	evaluator := schedule.NewEvaluator(schedules, jobs, registry,
		&platform.DirAccountLister{HomeRoot: cfg.HomeRoot}, logger)

	return &Application{
		cfg:        cfg,
		logger:     logger,
		schedules:  schedules,
		manifests:  manifests,
		registry:   registry,
		jobs:       jobs,
		dispatcher: dispatcher,
		evaluator:  evaluator,
	}, nil
}

// Logger exposes the application logger for the CLI layer.
func (a *Application) Logger() *logging.Logger {
	return a.logger
}

// RunCycle performs one cron-triggered cycle: evaluate due schedules, then
// drain the queue under the dispatch lock and wait for the spawned runners.
// When another cycle holds the lock this invocation exits cleanly after
// evaluation; the held lock is the admission control, not an error.
func (a *Application) RunCycle(ctx context.Context) error {
	enqueued, err := a.evaluator.Evaluate(ctx, time.Now())
	if err != nil {
		return err
	}
	if enqueued > 0 {
		a.logger.Infof("Evaluation enqueued %d job(s)", enqueued)
	}

	dispatched, err := a.dispatcher.Dispatch(ctx)
	if err != nil {
		if engine.IsErrorType(err, engine.ErrorTypeConcurrency) {
			a.logger.Info("Another dispatch cycle is running, exiting")
			return nil
		}
		return err
	}

	if dispatched > 0 {
		a.logger.Infof("Dispatched %d job(s)", dispatched)
		a.dispatcher.Wait()
	}
	return nil
}

// EnqueueBackup queues an on-demand backup; its entries land in the manual
// manifest and are exempt from retention.
func (a *Application) EnqueueBackup(accounts []string, destinationID, user string) (string, error) {
	return a.jobs.EnqueueBackup(accounts, destinationID, user, "manual", "")
}

// EnqueueRestore queues an on-demand restore.
func (a *Application) EnqueueRestore(destinationID, backupFile string, opts engine.RestoreOptions, user string) (string, error) {
	return a.jobs.EnqueueRestore(destinationID, backupFile, opts, user, "manual")
}

// Summary tallies the outcomes recorded in status files over the last day.
func (a *Application) Summary() (*status.Summary, error) {
	return status.Summarize(a.cfg.StatusDir, time.Now().Add(-24*time.Hour))
}

// ScheduleUsage is the storage footprint of one schedule's tracked artifacts.
type ScheduleUsage struct {
	ScheduleID  string
	Destination string
	Entries     int
	Bytes       int64
}

// StorageUsage totals the tracked artifacts per schedule manifest.
func (a *Application) StorageUsage() ([]ScheduleUsage, error) {
	ids, err := a.manifests.List()
	if err != nil {
		return nil, err
	}

	var usage []ScheduleUsage
	for _, id := range ids {
		m, err := a.manifests.Load(id)
		if err != nil {
			continue
		}
		usage = append(usage, ScheduleUsage{
			ScheduleID:  m.ScheduleID,
			Destination: m.Destination,
			Entries:     len(m.Entries),
			Bytes:       m.TotalSize(),
		})
	}
	return usage, nil
}

// Cleanup removes status files past the retention window.
func (a *Application) Cleanup() (int, error) {
	return status.Cleanup(a.cfg.StatusDir, a.cfg.StatusRetention)
}

// ListSchedules returns the configured schedules.
func (a *Application) ListSchedules() ([]*schedule.Schedule, error) {
	return a.schedules.List()
}

// ListDestinations returns the configured destinations.
func (a *Application) ListDestinations() ([]*transport.Destination, error) {
	return a.registry.List()
}

// DeleteSchedule removes a schedule definition together with its manifest;
// already-uploaded artifacts stay on the destination.
func (a *Application) DeleteSchedule(id string) error {
	if err := a.schedules.Delete(id); err != nil {
		return err
	}
	return a.manifests.Delete(id)
}

// TestDestination runs the transport connection check for one destination.
func (a *Application) TestDestination(ctx context.Context, id string) error {
	return a.registry.Test(ctx, id)
}
