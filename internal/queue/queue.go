package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"hostbackup/internal/engine"
)

// Queue is a durable, file-backed queue of pending jobs: one JSON file per
// job, written atomically so a dispatcher never observes a partial record.
// File names start with the creation timestamp, so lexical order is creation
// order.
type Queue struct {
	dir string
}

// NewQueue creates a queue rooted at dir.
func NewQueue(dir string) (*Queue, error) {
	if dir == "" {
		return nil, engine.NewValidationError("queue directory cannot be empty", nil)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, engine.NewConfigurationError("failed to create queue directory", err)
	}
	return &Queue{dir: dir}, nil
}

// EnqueueBackup queues a backup job and returns its id.
func (q *Queue) EnqueueBackup(accounts []string, destinationID, user, requestor, scheduleID string) (string, error) {
	id := uuid.NewString()
	job := &Job{
		ID:          id,
		Kind:        KindBackup,
		Accounts:    accounts,
		Destination: destinationID,
		User:        user,
		Requestor:   requestor,
		ScheduleID:  scheduleID,
		BackupID:    id,
		CreatedAt:   time.Now(),
	}
	return id, q.write(job)
}

// EnqueueRestore queues a restore job and returns its id.
func (q *Queue) EnqueueRestore(destinationID, backupFile string, opts engine.RestoreOptions, user, requestor string) (string, error) {
	id := uuid.NewString()
	job := &Job{
		ID:          id,
		Kind:        KindRestore,
		BackupFile:  backupFile,
		Destination: destinationID,
		User:        user,
		Requestor:   requestor,
		RestoreID:   id,
		Options:     &opts,
		CreatedAt:   time.Now(),
	}
	return id, q.write(job)
}

// Pending returns the durable record paths of queued jobs in creation order.
func (q *Queue) Pending() ([]string, error) {
	dirents, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to list queue directory", err)
	}

	var paths []string
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ".job") {
			continue
		}
		paths = append(paths, filepath.Join(q.dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Read parses one durable job record.
func (q *Queue) Read(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to read job record", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, engine.NewCorruptionError("job record is corrupt", err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Remove deletes a durable job record. The dispatch loop calls this before
// the job executes: a crash after removal loses the job instead of running
// it twice.
func (q *Queue) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return engine.NewConfigurationError("failed to remove job record", err)
	}
	return nil
}

// Quarantine renames a corrupt record aside so the dispatcher stops
// re-reading it while keeping it for inspection.
func (q *Queue) Quarantine(path string) error {
	return os.Rename(path, path+".corrupt")
}

func (q *Queue) write(job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return engine.NewConfigurationError("failed to serialize job", err)
	}

	name := fmt.Sprintf("%s_%s.job", job.CreatedAt.UTC().Format("20060102T150405.000000000"), job.ID)
	path := filepath.Join(q.dir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return engine.NewConfigurationError("failed to write job record", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return engine.NewConfigurationError("failed to finalize job record", err)
	}
	return nil
}
