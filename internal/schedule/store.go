package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"hostbackup/internal/engine"
)

// Store persists schedule definitions to a single JSON file. Writes are
// atomic (write to a temp file, then rename) so a crashed writer never
// leaves a truncated schedules file behind.
type Store struct {
	path string
}

// NewStore creates a schedule store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// List returns all schedules sorted by id. A missing file is an empty store.
func (st *Store) List() ([]*Schedule, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, engine.NewConfigurationError("failed to read schedules file", err)
	}

	var schedules []*Schedule
	if err := json.Unmarshal(data, &schedules); err != nil {
		return nil, engine.NewCorruptionError("failed to parse schedules file", err)
	}

	sort.Slice(schedules, func(i, j int) bool { return schedules[i].ID < schedules[j].ID })
	return schedules, nil
}

// Get returns the schedule with the given id.
func (st *Store) Get(id string) (*Schedule, error) {
	schedules, err := st.List()
	if err != nil {
		return nil, err
	}
	for _, s := range schedules {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, engine.NewNotFoundError(fmt.Sprintf("schedule %s not found", id), nil)
}

// Put inserts or replaces a schedule.
func (st *Store) Put(s *Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}

	schedules, err := st.List()
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range schedules {
		if existing.ID == s.ID {
			schedules[i] = s
			replaced = true
			break
		}
	}
	if !replaced {
		schedules = append(schedules, s)
	}

	return st.save(schedules)
}

// Delete removes a schedule definition. The caller is responsible for also
// destroying the schedule's manifest.
func (st *Store) Delete(id string) error {
	schedules, err := st.List()
	if err != nil {
		return err
	}

	kept := schedules[:0]
	found := false
	for _, s := range schedules {
		if s.ID == id {
			found = true
			continue
		}
		kept = append(kept, s)
	}
	if !found {
		return engine.NewNotFoundError(fmt.Sprintf("schedule %s not found", id), nil)
	}

	return st.save(kept)
}

// SaveAll replaces the entire schedule set, used by the evaluator to flush
// last-run/next-run bookkeeping in one write.
func (st *Store) SaveAll(schedules []*Schedule) error {
	return st.save(schedules)
}

func (st *Store) save(schedules []*Schedule) error {
	if schedules == nil {
		schedules = []*Schedule{}
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].ID < schedules[j].ID })

	data, err := json.MarshalIndent(schedules, "", "  ")
	if err != nil {
		return engine.NewConfigurationError("failed to serialize schedules", err)
	}

	if err := os.MkdirAll(filepath.Dir(st.path), 0755); err != nil {
		return engine.NewConfigurationError("failed to create schedules directory", err)
	}

	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return engine.NewConfigurationError("failed to write schedules file", err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		os.Remove(tmp)
		return engine.NewConfigurationError("failed to replace schedules file", err)
	}
	return nil
}
