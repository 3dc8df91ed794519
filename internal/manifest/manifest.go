package manifest

import (
	"sort"
	"time"
)

// Entry is one tracked artifact produced by a schedule's backup, with its
// optional companion database artifact.
type Entry struct {
	Account   string    `json:"account"`
	File      string    `json:"file"`
	DBFile    string    `json:"db_file,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Manifest is the ledger of artifacts created by one schedule. Retention
// arithmetic only ever looks inside a single manifest, which is what keeps
// schedules fully isolated from each other.
type Manifest struct {
	ScheduleID  string  `json:"schedule_id"`
	Retention   int     `json:"retention"`
	Destination string  `json:"destination"`
	Entries     []Entry `json:"entries"`
}

// EntriesFor returns this manifest's entries for one account, oldest first.
func (m *Manifest) EntriesFor(account string) []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if e.Account == account {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// TotalSize returns the sum of entry sizes in bytes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, e := range m.Entries {
		total += e.Size
	}
	return total
}

// Remove deletes the entry matching the given account and primary filename.
// It reports whether an entry was removed.
func (m *Manifest) Remove(account, file string) bool {
	for i, e := range m.Entries {
		if e.Account == account && e.File == file {
			m.Entries = append(m.Entries[:i], m.Entries[i+1:]...)
			return true
		}
	}
	return false
}
