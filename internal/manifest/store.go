package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"hostbackup/internal/engine"
)

// Store keeps one JSON manifest file per schedule id under a directory.
// Mutations take an exclusive advisory flock on a per-manifest lock file and
// replace the manifest via write-then-rename, so a concurrent manual backup
// and a scheduled run can never interleave a read-modify-write or leave a
// half-written ledger.
type Store struct {
	dir string
}

// NewStore creates a manifest store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, engine.NewValidationError("manifest directory cannot be empty", nil)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, engine.NewConfigurationError("failed to create manifest directory", err)
	}
	return &Store{dir: dir}, nil
}

// Load reads the manifest for a schedule id. A schedule that has never
// completed a backup has no manifest; that is reported as a typed not-found
// error so callers can treat it as an empty ledger.
func (st *Store) Load(scheduleID string) (*Manifest, error) {
	data, err := os.ReadFile(st.path(scheduleID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engine.NewNotFoundError(fmt.Sprintf("no manifest for schedule %s", scheduleID), err)
		}
		return nil, engine.NewConfigurationError("failed to read manifest", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, engine.NewCorruptionError(fmt.Sprintf("manifest for schedule %s is corrupt", scheduleID), err)
	}
	return &m, nil
}

// Append records a new entry under the schedule's manifest, creating the
// manifest lazily on first use. Destination and retention are refreshed on
// every append so manifest metadata tracks the schedule definition.
func (st *Store) Append(scheduleID, destination string, retention int, entry Entry) error {
	return st.Update(scheduleID, func(m *Manifest) error {
		m.Destination = destination
		m.Retention = retention
		m.Entries = append(m.Entries, entry)
		return nil
	})
}

// Update applies fn to the manifest under an exclusive lock and persists the
// result atomically. A missing manifest is presented to fn as an empty one.
func (st *Store) Update(scheduleID string, fn func(*Manifest) error) error {
	unlock, err := st.lock(scheduleID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := st.Load(scheduleID)
	if err != nil {
		if !engine.IsErrorType(err, engine.ErrorTypeNotFound) {
			return err
		}
		m = &Manifest{ScheduleID: scheduleID}
	}

	if err := fn(m); err != nil {
		return err
	}

	return st.write(m)
}

// Delete destroys a schedule's manifest file, as happens when the schedule
// itself is deleted. Deleting an absent manifest is not an error.
func (st *Store) Delete(scheduleID string) error {
	if err := os.Remove(st.path(scheduleID)); err != nil && !os.IsNotExist(err) {
		return engine.NewConfigurationError("failed to delete manifest", err)
	}
	os.Remove(st.lockPath(scheduleID))
	return nil
}

// List returns the schedule ids that currently have a manifest.
func (st *Store) List() ([]string, error) {
	dirents, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to list manifest directory", err)
	}

	var ids []string
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (st *Store) path(scheduleID string) string {
	return filepath.Join(st.dir, sanitize(scheduleID)+".json")
}

func (st *Store) lockPath(scheduleID string) string {
	return filepath.Join(st.dir, sanitize(scheduleID)+".lock")
}

// lock takes a blocking exclusive flock on the manifest's lock file and
// returns the release function.
func (st *Store) lock(scheduleID string) (func(), error) {
	f, err := os.OpenFile(st.lockPath(scheduleID), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to open manifest lock file", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, engine.NewConcurrencyError("failed to lock manifest", err)
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

func (st *Store) write(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return engine.NewConfigurationError("failed to serialize manifest", err)
	}

	path := st.path(m.ScheduleID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return engine.NewConfigurationError("failed to write manifest", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return engine.NewConfigurationError("failed to replace manifest", err)
	}
	return nil
}

// sanitize keeps manifest filenames flat even if a schedule id contains
// path separators.
func sanitize(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
}
