// Package status maintains the per-operation progress files polled by the
// platform UI: one append-only text file per backup or restore id, each line
// prefixed with a timestamp.
package status

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hostbackup/internal/engine"
)

const timeLayout = "2006-01-02 15:04:05"

// Markers written as the final line of a status file; the summary path keys
// off them.
const (
	MarkerSuccess = "RESULT: success"
	MarkerPartial = "RESULT: partial"
	MarkerFailure = "RESULT: failure"
)

// Writer appends progress lines to one operation's status file.
type Writer struct {
	file *os.File
	id   string
}

// NewWriter opens (creating if needed) the status file for an operation id.
func NewWriter(dir, id string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, engine.NewConfigurationError("failed to create status directory", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, id+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to open status file", err)
	}
	return &Writer{file: f, id: id}, nil
}

// Logf appends one timestamp-prefixed line.
func (w *Writer) Logf(format string, args ...interface{}) {
	fmt.Fprintf(w.file, "%s | %s\n", time.Now().Format(timeLayout), fmt.Sprintf(format, args...))
}

// Result appends the terminal marker line for the operation.
func (w *Writer) Result(marker string) {
	w.Logf("%s", marker)
}

// Close releases the underlying file.
func (w *Writer) Close() error {
	return w.file.Close()
}

// Cleanup removes status files older than the retention window and returns
// how many were deleted.
func Cleanup(dir string, olderThan time.Duration) (int, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, engine.NewConfigurationError("failed to list status directory", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".log") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, d.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Summary aggregates the outcomes recorded in status files.
type Summary struct {
	Operations int
	Succeeded  int
	Partial    int
	Failed     int
	Unfinished int
}

// Summarize scans status files modified since the given time and tallies
// their terminal markers. Files without a marker count as unfinished (the
// operation is still running or its runner crashed).
func Summarize(dir string, since time.Time) (*Summary, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Summary{}, nil
		}
		return nil, engine.NewConfigurationError("failed to list status directory", err)
	}

	s := &Summary{}
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".log") {
			continue
		}
		info, err := d.Info()
		if err != nil || info.ModTime().Before(since) {
			continue
		}

		s.Operations++
		switch lastMarker(filepath.Join(dir, d.Name())) {
		case MarkerSuccess:
			s.Succeeded++
		case MarkerPartial:
			s.Partial++
		case MarkerFailure:
			s.Failed++
		default:
			s.Unfinished++
		}
	}
	return s, nil
}

// lastMarker returns the RESULT marker of the file's final marker line, if any.
func lastMarker(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	marker := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "RESULT: "); idx >= 0 {
			marker = strings.TrimSpace(line[idx:])
		}
	}
	return marker
}
