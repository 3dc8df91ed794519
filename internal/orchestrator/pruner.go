package orchestrator

import (
	"context"
	"fmt"

	"hostbackup/internal/engine"
	"hostbackup/internal/logging"
	"hostbackup/internal/manifest"
	"hostbackup/internal/transport"
)

// DestinationResolver yields a destination's configuration and transport.
// Satisfied by transport.Registry.
type DestinationResolver interface {
	Resolve(ctx context.Context, id string) (*transport.Destination, transport.Transport, error)
}

// Pruner enforces per-schedule retention after successful scheduled backups.
// It only ever reads and writes the one manifest belonging to the schedule
// being pruned, which is what guarantees schedule isolation.
type Pruner struct {
	manifests *manifest.Store
	registry  DestinationResolver
	logger    *logging.Logger
}

// NewPruner creates a retention pruner.
func NewPruner(manifests *manifest.Store, registry DestinationResolver, logger *logging.Logger) *Pruner {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Pruner{
		manifests: manifests,
		registry:  registry,
		logger:    logger,
	}
}

// Prune removes the oldest excess entries for one (schedule, account) pair.
// Manual backups and unlimited-retention schedules are never pruned. An
// entry leaves the manifest only after every artifact it tracks has been
// deleted from the destination or confirmed absent; anything less keeps the
// entry so the next pass retries it.
func (p *Pruner) Prune(ctx context.Context, scheduleID, account string) error {
	if scheduleID == "" || scheduleID == engine.ManualScheduleID {
		return nil
	}

	m, err := p.manifests.Load(scheduleID)
	if err != nil {
		if engine.IsErrorType(err, engine.ErrorTypeNotFound) {
			return nil
		}
		return err
	}
	if m.Retention <= 0 {
		return nil
	}

	entries := m.EntriesFor(account)
	if len(entries) <= m.Retention {
		// Failed runs add no entries, so they can never trigger pruning.
		p.logger.LogRetentionPass(scheduleID, account, 0, len(entries), nil)
		return nil
	}

	_, tr, err := p.registry.Resolve(ctx, m.Destination)
	if err != nil {
		return err
	}

	excess := entries[:len(entries)-m.Retention]
	removed := 0
	var failures []string

	err = p.manifests.Update(scheduleID, func(m *manifest.Manifest) error {
		// The excess set is keyed by (account, file); concurrent appends only
		// add newer entries and cannot invalidate it.
		for _, entry := range excess {
			if err := p.deleteArtifacts(ctx, tr, entry); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", entry.File, err))
				continue
			}
			if m.Remove(entry.Account, entry.File) {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	kept := len(entries) - removed
	if len(failures) > 0 {
		pruneErr := engine.NewTransportError(
			fmt.Sprintf("retention pruning left %d entries pending retry", len(failures)), nil).
			WithContext("failures", failures)
		p.logger.LogRetentionPass(scheduleID, account, removed, kept, pruneErr)
		return pruneErr
	}

	p.logger.LogRetentionPass(scheduleID, account, removed, kept, nil)
	return nil
}

// deleteArtifacts removes an entry's primary and database artifacts.
// Transports report success for already-absent files.
func (p *Pruner) deleteArtifacts(ctx context.Context, tr transport.Transport, entry manifest.Entry) error {
	if err := tr.Delete(ctx, remotePath(entry.Account, entry.File)); err != nil {
		return err
	}
	if entry.DBFile != "" {
		if err := tr.Delete(ctx, remotePath(entry.Account, entry.DBFile)); err != nil {
			return err
		}
	}
	return nil
}

// remotePath builds the destination path for an account's artifact:
// {account}/{artifact-name} under the destination base.
func remotePath(account, file string) string {
	return account + "/" + file
}
