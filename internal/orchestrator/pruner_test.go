package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"hostbackup/internal/engine"
	"hostbackup/internal/manifest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedManifest appends n entries for an account, oldest first.
func seedManifest(t *testing.T, st *manifest.Store, scheduleID, account string, retention, n int, withDB bool) {
	t.Helper()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := manifest.Entry{
			Account:   account,
			File:      fmt.Sprintf("backup-%s-%d.tar.gz", account, i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Size:      100,
		}
		if withDB {
			e.DBFile = fmt.Sprintf("db-%s-%d.sql.gz", account, i)
		}
		require.NoError(t, st.Append(scheduleID, "dest", retention, e))
	}
}

func TestPruner_RemovesOldestExcess(t *testing.T) {
	ms := newManifestStore(t)
	tr := newMemTransport()
	seedManifest(t, ms, "nightly", "alice", 3, 5, false)
	p := NewPruner(ms, &fakeResolver{dest: localDest("dest"), tr: tr}, nil)

	require.NoError(t, p.Prune(context.Background(), "nightly", "alice"))

	m, err := ms.Load("nightly")
	require.NoError(t, err)
	entries := m.EntriesFor("alice")
	require.Len(t, entries, 3)
	// The three newest survive.
	assert.Equal(t, "backup-alice-2.tar.gz", entries[0].File)
	assert.Equal(t, "backup-alice-4.tar.gz", entries[2].File)

	// The two oldest were deleted at the destination under account paths.
	assert.ElementsMatch(t, []string{
		"alice/backup-alice-0.tar.gz",
		"alice/backup-alice-1.tar.gz",
	}, tr.deleteCalls)
}

func TestPruner_DeletesCompanionDBArtifacts(t *testing.T) {
	ms := newManifestStore(t)
	tr := newMemTransport()
	seedManifest(t, ms, "nightly", "alice", 1, 2, true)
	p := NewPruner(ms, &fakeResolver{dest: localDest("dest"), tr: tr}, nil)

	require.NoError(t, p.Prune(context.Background(), "nightly", "alice"))

	assert.ElementsMatch(t, []string{
		"alice/backup-alice-0.tar.gz",
		"alice/db-alice-0.sql.gz",
	}, tr.deleteCalls)
}

func TestPruner_AtOrUnderRetentionIsNoop(t *testing.T) {
	ms := newManifestStore(t)
	tr := newMemTransport()
	seedManifest(t, ms, "nightly", "alice", 3, 3, false)
	p := NewPruner(ms, &fakeResolver{dest: localDest("dest"), tr: tr}, nil)

	require.NoError(t, p.Prune(context.Background(), "nightly", "alice"))
	assert.Empty(t, tr.deleteCalls)

	m, err := ms.Load("nightly")
	require.NoError(t, err)
	assert.Len(t, m.EntriesFor("alice"), 3)
}

func TestPruner_ManualManifestExempt(t *testing.T) {
	ms := newManifestStore(t)
	tr := newMemTransport()
	seedManifest(t, ms, engine.ManualScheduleID, "alice", 1, 10, false)
	p := NewPruner(ms, &fakeResolver{dest: localDest("dest"), tr: tr}, nil)

	require.NoError(t, p.Prune(context.Background(), engine.ManualScheduleID, "alice"))
	require.NoError(t, p.Prune(context.Background(), "", "alice"))
	assert.Empty(t, tr.deleteCalls)

	m, err := ms.Load(engine.ManualScheduleID)
	require.NoError(t, err)
	assert.Len(t, m.EntriesFor("alice"), 10)
}

func TestPruner_ZeroRetentionIsUnlimited(t *testing.T) {
	ms := newManifestStore(t)
	tr := newMemTransport()
	seedManifest(t, ms, "nightly", "alice", 0, 20, false)
	p := NewPruner(ms, &fakeResolver{dest: localDest("dest"), tr: tr}, nil)

	require.NoError(t, p.Prune(context.Background(), "nightly", "alice"))
	assert.Empty(t, tr.deleteCalls)
}

func TestPruner_MissingManifestIsNoop(t *testing.T) {
	ms := newManifestStore(t)
	p := NewPruner(ms, &fakeResolver{dest: localDest("dest"), tr: newMemTransport()}, nil)
	assert.NoError(t, p.Prune(context.Background(), "never-ran", "alice"))
}

func TestPruner_AccountsPrunedIndependently(t *testing.T) {
	ms := newManifestStore(t)
	tr := newMemTransport()
	seedManifest(t, ms, "nightly", "alice", 3, 5, false)
	seedManifest(t, ms, "nightly", "bob", 3, 2, false)
	p := NewPruner(ms, &fakeResolver{dest: localDest("dest"), tr: tr}, nil)

	require.NoError(t, p.Prune(context.Background(), "nightly", "alice"))

	m, err := ms.Load("nightly")
	require.NoError(t, err)
	assert.Len(t, m.EntriesFor("alice"), 3)
	// Bob is below his bound and a prune pass for alice never touches him.
	assert.Len(t, m.EntriesFor("bob"), 2)
	for _, call := range tr.deleteCalls {
		assert.Contains(t, call, "alice/")
	}
}

func TestPruner_FailedDeleteKeepsEntryForRetry(t *testing.T) {
	ms := newManifestStore(t)
	tr := newMemTransport()
	seedManifest(t, ms, "nightly", "alice", 2, 4, false)
	tr.failDelete["alice/backup-alice-0.tar.gz"] = true
	p := NewPruner(ms, &fakeResolver{dest: localDest("dest"), tr: tr}, nil)

	err := p.Prune(context.Background(), "nightly", "alice")
	require.Error(t, err)
	assert.True(t, engine.IsErrorType(err, engine.ErrorTypeTransport))

	m, merr := ms.Load("nightly")
	require.NoError(t, merr)
	entries := m.EntriesFor("alice")
	// Entry 1 was removed; entry 0 stays pending retry.
	require.Len(t, entries, 3)
	assert.Equal(t, "backup-alice-0.tar.gz", entries[0].File)

	// Next pass with the destination healthy clears the leftover.
	tr.failDelete = map[string]bool{}
	require.NoError(t, p.Prune(context.Background(), "nightly", "alice"))
	m, merr = ms.Load("nightly")
	require.NoError(t, merr)
	assert.Len(t, m.EntriesFor("alice"), 2)
}

func TestPruner_AbsentArtifactCountsAsDeleted(t *testing.T) {
	ms := newManifestStore(t)
	tr := newMemTransport() // holds no files at all
	seedManifest(t, ms, "nightly", "alice", 1, 3, false)
	p := NewPruner(ms, &fakeResolver{dest: localDest("dest"), tr: tr}, nil)

	require.NoError(t, p.Prune(context.Background(), "nightly", "alice"))

	m, err := ms.Load("nightly")
	require.NoError(t, err)
	assert.Len(t, m.EntriesFor("alice"), 1)
}
