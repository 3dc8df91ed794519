package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hostbackup/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name        string
		job         Job
		expectError bool
	}{
		{
			name:        "valid backup job",
			job:         Job{ID: "j1", Kind: KindBackup, Accounts: []string{"alice"}, Destination: "d1"},
			expectError: false,
		},
		{
			name:        "valid restore job",
			job:         Job{ID: "j1", Kind: KindRestore, BackupFile: "alice/a.tar.gz", Destination: "d1"},
			expectError: false,
		},
		{
			name:        "missing id",
			job:         Job{Kind: KindBackup, Accounts: []string{"alice"}, Destination: "d1"},
			expectError: true,
		},
		{
			name:        "missing destination",
			job:         Job{ID: "j1", Kind: KindBackup, Accounts: []string{"alice"}},
			expectError: true,
		},
		{
			name:        "backup without accounts",
			job:         Job{ID: "j1", Kind: KindBackup, Destination: "d1"},
			expectError: true,
		},
		{
			name:        "restore without file",
			job:         Job{ID: "j1", Kind: KindRestore, Destination: "d1"},
			expectError: true,
		},
		{
			name:        "unknown kind",
			job:         Job{ID: "j1", Kind: "verify", Destination: "d1"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQueue_EnqueueAndRead(t *testing.T) {
	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)

	id, err := q.EnqueueBackup([]string{"alice", "bob"}, "offsite", "admin", "manual", "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	paths, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, paths, 1)

	job, err := q.Read(paths[0])
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, id, job.BackupID)
	assert.Equal(t, KindBackup, job.Kind)
	assert.Equal(t, []string{"alice", "bob"}, job.Accounts)
	assert.Equal(t, "offsite", job.Destination)
	assert.Equal(t, "admin", job.User)
	assert.Equal(t, id, job.OperationID())
}

func TestQueue_EnqueueRestoreCarriesOptions(t *testing.T) {
	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)

	opts := engine.RestoreOptions{HomeDir: true, Mail: true, DBFile: "alice/db.sql.gz"}
	id, err := q.EnqueueRestore("offsite", "alice/a.tar.gz", opts, "admin", "manual")
	require.NoError(t, err)

	paths, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, paths, 1)

	job, err := q.Read(paths[0])
	require.NoError(t, err)
	assert.Equal(t, KindRestore, job.Kind)
	assert.Equal(t, id, job.RestoreID)
	require.NotNil(t, job.Options)
	assert.True(t, job.Options.HomeDir)
	assert.True(t, job.Options.Mail)
	assert.False(t, job.Options.DNS)
	assert.Equal(t, "alice/db.sql.gz", job.Options.DBFile)
}

func TestQueue_PendingIsCreationOrder(t *testing.T) {
	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)

	first, err := q.EnqueueBackup([]string{"alice"}, "d1", "u", "r", "")
	require.NoError(t, err)
	second, err := q.EnqueueBackup([]string{"bob"}, "d1", "u", "r", "")
	require.NoError(t, err)

	paths, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, paths, 2)

	j1, err := q.Read(paths[0])
	require.NoError(t, err)
	j2, err := q.Read(paths[1])
	require.NoError(t, err)
	assert.Equal(t, first, j1.ID)
	assert.Equal(t, second, j2.ID)
}

func TestQueue_RemoveIsIdempotent(t *testing.T) {
	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)

	_, err = q.EnqueueBackup([]string{"alice"}, "d1", "u", "r", "")
	require.NoError(t, err)

	paths, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, paths, 1)

	require.NoError(t, q.Remove(paths[0]))
	require.NoError(t, q.Remove(paths[0]))

	paths, err = q.Pending()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestQueue_ReadCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	q, err := NewQueue(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "20260829T000000.000000000_bad.job")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0600))

	_, err = q.Read(path)
	assert.True(t, engine.IsErrorType(err, engine.ErrorTypeCorruption))
}

func TestQueue_QuarantineHidesRecord(t *testing.T) {
	dir := t.TempDir()
	q, err := NewQueue(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "20260829T000000.000000000_bad.job")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0600))

	require.NoError(t, q.Quarantine(path))

	paths, err := q.Pending()
	require.NoError(t, err)
	assert.Empty(t, paths)

	dirents, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, dirents, 1)
	assert.True(t, strings.HasSuffix(dirents[0].Name(), ".corrupt"))
}
