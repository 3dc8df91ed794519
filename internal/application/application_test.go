package application

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hostbackup/internal/config"
	"hostbackup/internal/engine"
	"hostbackup/internal/manifest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:          dir,
		QueueDir:         filepath.Join(dir, "queue"),
		ManifestDir:      filepath.Join(dir, "manifests"),
		ScratchDir:       filepath.Join(dir, "work"),
		StatusDir:        filepath.Join(dir, "status"),
		LockFile:         filepath.Join(dir, "dispatch.lock"),
		SchedulesFile:    filepath.Join(dir, "schedules.json"),
		DestinationsFile: filepath.Join(dir, "destinations.yaml"),
		DatabaseMethod:   "packager",
		StatusRetention:  24 * time.Hour,
		LogLevel:         "quiet",
		LogFormat:        "text",
		HomeRoot:         filepath.Join(dir, "home"),
		PackagerCmd:      "/usr/local/bin/pkgacct",
		DBBackupCmd:      "/usr/local/bin/dbdump",
		RestoreCmd:       "/usr/local/bin/restoreacct",
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func writeDestinations(t *testing.T, cfg *config.Config) {
	t.Helper()
	content := `
- id: local-disk
  name: Local disk
  type: local
  enabled: true
  local:
    base_path: ` + filepath.Join(cfg.DataDir, "backups") + `
`
	require.NoError(t, os.WriteFile(cfg.DestinationsFile, []byte(content), 0600))
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)

	app, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.NotNil(t, app.Logger())
}

func TestNew_WithEncryptionAndDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncryptionKey = "vault passphrase"
	cfg.MySQLDSN = "root:secret@tcp(127.0.0.1:3306)/"

	// Opening the DSN is lazy; wiring must succeed without a live server.
	app, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, app)
}

func TestEnqueueBackup(t *testing.T) {
	cfg := testConfig(t)
	writeDestinations(t, cfg)

	app, err := New(cfg)
	require.NoError(t, err)

	id, err := app.EnqueueBackup([]string{"alice", "bob"}, "local-disk", "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	pending, err := app.jobs.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	job, err := app.jobs.Read(pending[0])
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, []string{"alice", "bob"}, job.Accounts)
	assert.Equal(t, "local-disk", job.Destination)
	assert.Equal(t, "admin", job.User)
	assert.Equal(t, "manual", job.Requestor)
	assert.Empty(t, job.ScheduleID)
}

func TestEnqueueRestore(t *testing.T) {
	cfg := testConfig(t)
	writeDestinations(t, cfg)

	app, err := New(cfg)
	require.NoError(t, err)

	opts := engine.RestoreOptions{HomeDir: true, DBFile: "alice/db.sql"}
	id, err := app.EnqueueRestore("local-disk", "alice/backup.tar.gz", opts, "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	pending, err := app.jobs.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	job, err := app.jobs.Read(pending[0])
	require.NoError(t, err)
	assert.Equal(t, "alice/backup.tar.gz", job.BackupFile)
	require.NotNil(t, job.Options)
	assert.True(t, job.Options.HomeDir)
	assert.Equal(t, "alice/db.sql", job.Options.DBFile)
}

func TestRunCycle_EmptyQueue(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.HomeRoot, 0755))

	app, err := New(cfg)
	require.NoError(t, err)

	// No schedules, nothing queued: a cycle is a no-op.
	require.NoError(t, app.RunCycle(context.Background()))
}

func TestListSchedulesAndDestinations(t *testing.T) {
	cfg := testConfig(t)
	writeDestinations(t, cfg)

	app, err := New(cfg)
	require.NoError(t, err)

	schedules, err := app.ListSchedules()
	require.NoError(t, err)
	assert.Empty(t, schedules)

	dests, err := app.ListDestinations()
	require.NoError(t, err)
	require.Len(t, dests, 1)
	assert.Equal(t, "local-disk", dests[0].ID)
}

func TestTestDestination(t *testing.T) {
	cfg := testConfig(t)
	writeDestinations(t, cfg)

	app, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, app.TestDestination(context.Background(), "local-disk"))

	err = app.TestDestination(context.Background(), "missing")
	assert.True(t, engine.IsErrorType(err, engine.ErrorTypeNotFound))
}

func TestStorageUsage(t *testing.T) {
	cfg := testConfig(t)

	app, err := New(cfg)
	require.NoError(t, err)

	usage, err := app.StorageUsage()
	require.NoError(t, err)
	assert.Empty(t, usage)

	require.NoError(t, app.manifests.Append("nightly", "local-disk", 3, manifest.Entry{
		Account: "alice", File: "a1.tar.gz", Timestamp: time.Now(), Size: 100,
	}))
	require.NoError(t, app.manifests.Append("nightly", "local-disk", 3, manifest.Entry{
		Account: "bob", File: "b1.tar.gz", Timestamp: time.Now(), Size: 50,
	}))

	usage, err = app.StorageUsage()
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, "nightly", usage[0].ScheduleID)
	assert.Equal(t, "local-disk", usage[0].Destination)
	assert.Equal(t, 2, usage[0].Entries)
	assert.Equal(t, int64(150), usage[0].Bytes)
}

func TestSummaryAndCleanup(t *testing.T) {
	cfg := testConfig(t)

	app, err := New(cfg)
	require.NoError(t, err)

	summary, err := app.Summary()
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Operations)

	removed, err := app.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
