package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hostbackup/internal/engine"
	"hostbackup/internal/queue"
	"hostbackup/internal/schedule"
	"hostbackup/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFixture struct {
	runner    *JobRunner
	notifier  *fakeNotifier
	packager  *fakePackager
	restorer  *fakeAccountRestorer
	resolver  *fakeResolver
	statusDir string
}

func newRunnerFixture(t *testing.T, schedules *schedule.Store) *runnerFixture {
	t.Helper()
	resolver := &fakeResolver{dest: localDest("dest"), tr: newMemTransport()}
	packager := &fakePackager{}
	backups, _ := newBackupOrchestratorForTest(t, packager, nil, engine.DatabaseMethodSkip, resolver, nil, schedules)

	restorer := &fakeAccountRestorer{}
	restores := NewRestoreOrchestrator(resolver, restorer, nil, nil, t.TempDir(), nil)

	notifier := &fakeNotifier{}
	statusDir := filepath.Join(t.TempDir(), "status")
	return &runnerFixture{
		runner:    NewJobRunner(backups, restores, schedules, notifier, statusDir, nil),
		notifier:  notifier,
		packager:  packager,
		restorer:  restorer,
		resolver:  resolver,
		statusDir: statusDir,
	}
}

func statusFile(t *testing.T, dir, operationID string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, operationID+".log"))
	require.NoError(t, err)
	return string(data)
}

func backupJob(id string, accounts ...string) *queue.Job {
	return &queue.Job{
		ID:          id,
		Kind:        queue.KindBackup,
		Accounts:    accounts,
		Destination: "dest",
		User:        "admin",
		Requestor:   "manual",
		BackupID:    id,
	}
}

func TestJobRunner_BackupSuccessMarker(t *testing.T) {
	f := newRunnerFixture(t, newScheduleStore(t))

	f.runner.Run(context.Background(), backupJob("b1", "alice", "bob"))

	content := statusFile(t, f.statusDir, "b1")
	assert.Contains(t, content, "backup job b1 started (requested by manual)")
	assert.Contains(t, content, "2/2 accounts succeeded")
	assert.Contains(t, content, status.MarkerSuccess)
	require.Len(t, f.notifier.backups, 1)
	assert.True(t, f.notifier.backups[0].Succeeded())
}

func TestJobRunner_BackupPartialMarker(t *testing.T) {
	f := newRunnerFixture(t, newScheduleStore(t))
	f.packager.failFor = map[string]bool{"bob": true}

	f.runner.Run(context.Background(), backupJob("b2", "alice", "bob"))

	content := statusFile(t, f.statusDir, "b2")
	assert.Contains(t, content, status.MarkerPartial)
	assert.NotContains(t, content, status.MarkerSuccess)
	require.Len(t, f.notifier.backups, 1)
}

func TestJobRunner_BackupFailureMarker(t *testing.T) {
	f := newRunnerFixture(t, newScheduleStore(t))
	f.packager.failFor = map[string]bool{"alice": true}

	f.runner.Run(context.Background(), backupJob("b3", "alice"))

	content := statusFile(t, f.statusDir, "b3")
	assert.Contains(t, content, status.MarkerFailure)
	// Manual jobs always notify, success or not.
	require.Len(t, f.notifier.backups, 1)
}

func TestJobRunner_ScheduledBackupHonorsNotifyFlags(t *testing.T) {
	s := nightlySchedule(0)
	s.NotifySuccess = false
	s.NotifyFailure = true
	f := newRunnerFixture(t, newScheduleStore(t, s))

	// Successful scheduled run with NotifySuccess off stays quiet.
	job := backupJob("b4", "alice")
	job.ScheduleID = "nightly"
	job.Requestor = "schedule:nightly"
	f.runner.Run(context.Background(), job)
	assert.Empty(t, f.notifier.backups)

	// A failing run notifies because NotifyFailure is on.
	f.packager.failFor = map[string]bool{"alice": true}
	job2 := backupJob("b5", "alice")
	job2.ScheduleID = "nightly"
	job2.Requestor = "schedule:nightly"
	f.runner.Run(context.Background(), job2)
	require.Len(t, f.notifier.backups, 1)
}

func TestJobRunner_VanishedScheduleStillNotifies(t *testing.T) {
	f := newRunnerFixture(t, newScheduleStore(t))

	job := backupJob("b6", "alice")
	job.ScheduleID = "deleted-long-ago"
	f.runner.Run(context.Background(), job)

	require.Len(t, f.notifier.backups, 1)
}

func TestJobRunner_RestoreJob(t *testing.T) {
	f := newRunnerFixture(t, newScheduleStore(t))

	src := filepath.Join(t.TempDir(), "backup-alice.tar.gz")
	require.NoError(t, writeAccountArchive(src, "alice"))
	require.NoError(t, f.resolver.tr.Upload(context.Background(), src, "alice/backup-alice.tar.gz"))

	job := &queue.Job{
		ID:          "j1",
		Kind:        queue.KindRestore,
		BackupFile:  "alice/backup-alice.tar.gz",
		Destination: "dest",
		User:        "admin",
		Requestor:   "manual",
		RestoreID:   "r1",
		Options:     &engine.RestoreOptions{HomeDir: true},
	}
	f.runner.Run(context.Background(), job)

	// Progress is tracked under the restore id, not the job id.
	content := statusFile(t, f.statusDir, "r1")
	assert.Contains(t, content, status.MarkerSuccess)
	assert.True(t, f.restorer.called)
	assert.True(t, f.restorer.opts.HomeDir)
	require.Len(t, f.notifier.restores, 1)
	assert.Equal(t, "alice", f.notifier.restores[0].Account)
}

func TestJobRunner_FailedRestoreMarksFailure(t *testing.T) {
	f := newRunnerFixture(t, newScheduleStore(t))

	job := &queue.Job{
		ID:          "j2",
		Kind:        queue.KindRestore,
		BackupFile:  "alice/missing.tar.gz",
		Destination: "dest",
		User:        "admin",
		Requestor:   "manual",
		RestoreID:   "r2",
	}
	f.runner.Run(context.Background(), job)

	content := statusFile(t, f.statusDir, "r2")
	assert.Contains(t, content, status.MarkerFailure)
	require.Len(t, f.notifier.restores, 1)
	assert.False(t, f.notifier.restores[0].Success)
}

func TestJobRunner_UnknownKind(t *testing.T) {
	f := newRunnerFixture(t, newScheduleStore(t))

	job := &queue.Job{
		ID:          "j3",
		Kind:        queue.Kind("compact"),
		Destination: "dest",
		User:        "admin",
		Requestor:   "manual",
	}
	f.runner.Run(context.Background(), job)

	content := statusFile(t, f.statusDir, "j3")
	assert.True(t, strings.Contains(content, status.MarkerFailure))
	assert.Empty(t, f.notifier.backups)
	assert.Empty(t, f.notifier.restores)
}
