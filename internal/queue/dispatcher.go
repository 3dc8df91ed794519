package queue

import (
	"context"
	"os"
	"sync"
	"syscall"

	"hostbackup/internal/engine"
	"hostbackup/internal/logging"
)

// Runner executes one dequeued job to completion, reporting progress through
// its own channels (status files); the dispatcher never inspects the outcome.
type Runner interface {
	Run(ctx context.Context, job *Job)
}

// Dispatcher drains the queue under a process-wide exclusive lock. A second
// concurrent invocation fails lock acquisition and exits without touching
// the queue; that is the sole admission control.
type Dispatcher struct {
	queue    *Queue
	runner   Runner
	lockPath string
	logger   *logging.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the given queue and runner.
func NewDispatcher(q *Queue, runner Runner, lockPath string, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Dispatcher{
		queue:    q,
		runner:   runner,
		lockPath: lockPath,
		logger:   logger,
	}
}

// Dispatch acquires the lock and processes every pending job in creation
// order. Each durable record is deleted before its runner starts: a crash
// mid-run loses that job rather than re-executing it. Runners execute as
// background units of work; call Wait before process exit.
//
// Returns the number of jobs handed to runners. When another dispatcher
// holds the lock, a CONCURRENCY_DENIED error is returned; callers treat it
// as a clean no-op exit.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	unlock, err := d.acquireLock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	paths, err := d.queue.Pending()
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, path := range paths {
		job, err := d.queue.Read(path)
		if err != nil {
			// Never re-enqueue a corrupt record; set it aside and move on.
			d.logger.WithField("record", path).Errorf("Skipping unreadable job record: %v", err)
			if qerr := d.queue.Quarantine(path); qerr != nil {
				d.logger.WithField("record", path).Errorf("Failed to quarantine job record: %v", qerr)
			}
			continue
		}

		// Delete-before-execute: at-most-once dispatch.
		if err := d.queue.Remove(path); err != nil {
			d.logger.WithField("record", path).Errorf("Failed to remove job record, not dispatching: %v", err)
			continue
		}

		d.logger.LogJobDispatch(job.ID, string(job.Kind), len(job.Accounts))

		d.wg.Add(1)
		go func(job *Job) {
			defer d.wg.Done()
			d.runner.Run(ctx, job)
		}(job)
		dispatched++
	}

	return dispatched, nil
}

// Wait blocks until all dispatched runners have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// acquireLock takes a non-blocking exclusive flock on the lock file and
// returns its release function.
func (d *Dispatcher) acquireLock() (func(), error) {
	f, err := os.OpenFile(d.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to open dispatch lock file", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, engine.NewConcurrencyError("dispatch lock is held by another process", err)
		}
		return nil, engine.NewConfigurationError("failed to acquire dispatch lock", err)
	}

	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}
