// Package journal owns the raw line-based text of the journal files. It is
// the only component that writes journal text, and it detects out-of-band
// edits through file modification timestamps: optimistic concurrency, not
// locking. A human editing the journal in an external editor always wins;
// callers must discard and rebuild all in-memory state when that happens.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger sets a custom logger for this package
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// LineKind says how a line in a ReplaceRange edit relates to the original
// text of the replaced range.
type LineKind int

const (
	// LineKeep preserves an original line; it maps identically in the
	// returned line map.
	LineKeep LineKind = iota
	// LineInsert adds a line with no old counterpart.
	LineInsert
	// LineDelete drops an original line; it is omitted from the map domain.
	LineDelete
)

// LineChange is one element of a ReplaceRange edit.
type LineChange struct {
	Kind LineKind
	Text string
}

// LineMap maps every surviving old 1-based line number to its new 1-based
// line number after an edit.
type LineMap map[int]int

// Store caches journal file contents as lines and tracks, per file, the
// modification time observed at the last successful read or write.
type Store struct {
	lines    map[string][]string
	loadTime map[string]time.Time
	// baseline for files read before any write happened through the store
	defaultLoadTime time.Time
}

// NewStore creates an empty store. Files loaded later are checked against the
// store's creation time until a write refreshes their baseline.
func NewStore() *Store {
	return &Store{
		lines:           make(map[string][]string),
		loadTime:        make(map[string]time.Time),
		defaultLoadTime: time.Now(),
	}
}

// Normalize resolves a path the way the store keys its caches.
func Normalize(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Lines returns the cached lines of path, loading them on first use. The
// content is split on newlines, so a file ending in a newline yields a final
// empty element.
func (s *Store) Lines(path string) ([]string, error) {
	path = Normalize(path)
	if lines, ok := s.lines[path]; ok {
		return lines, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal file: %w", err)
	}
	lines := strings.Split(string(data), "\n")
	s.lines[path] = lines
	return lines, nil
}

// CheckModified reports whether path changed on disk after this store last
// loaded or wrote it.
func (s *Store) CheckModified(path string) (bool, error) {
	path = Normalize(path)
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("failed to stat journal file: %w", err)
	}
	baseline, ok := s.loadTime[path]
	if !ok {
		baseline = s.defaultLoadTime
	}
	return info.ModTime().After(baseline), nil
}

// ReplaceRange rewrites the 1-based half-open line range [start, end) of path
// according to changes, atomically (temp file in the same directory, then
// rename). It fails with a ConcurrentModificationError when the file changed
// out of band, leaving the file untouched. On success it returns the line
// remapping that every tracked file location must be pushed through.
func (s *Store) ReplaceRange(path string, start, end int, changes []LineChange) (LineMap, error) {
	path = Normalize(path)
	orig, err := s.Lines(path)
	if err != nil {
		return nil, err
	}
	if start < 1 || end < start || end > len(orig)+1 {
		return nil, fmt.Errorf("invalid line range [%d, %d) for %s", start, end, path)
	}

	newLines := slices.Clone(orig[:start-1])
	lineMap := make(LineMap, len(orig))
	for i := 1; i < start; i++ {
		lineMap[i] = i
	}
	nextOld, nextNew := start, start
	for _, ch := range changes {
		switch ch.Kind {
		case LineKeep:
			newLines = append(newLines, ch.Text)
			lineMap[nextOld] = nextNew
			nextOld++
			nextNew++
		case LineInsert:
			newLines = append(newLines, ch.Text)
			nextNew++
		case LineDelete:
			nextOld++
		}
	}
	if nextOld != end {
		return nil, fmt.Errorf("line changes cover %d original lines, range [%d, %d) has %d",
			nextOld-start, start, end, end-start)
	}
	newLines = append(newLines, orig[end-1:]...)
	for nextNew <= len(newLines) {
		lineMap[nextOld] = nextNew
		nextOld++
		nextNew++
	}

	modTime, err := s.writeAtomic(path, strings.Join(newLines, "\n"))
	if err != nil {
		return nil, err
	}
	s.lines[path] = newLines
	s.loadTime[path] = modTime

	log.WithFields(logrus.Fields{"file": path, "start": start, "end": end}).
		Debug("Rewrote journal line range")
	return lineMap, nil
}

// AppendLines appends lines to the end of path and returns the 1-based line
// number at which the first appended line landed. A newline is added first
// when the existing content does not end with one, and separateWithBlank
// requests a full blank line between the prior entry and the new one. After
// writing, the on-disk bytes are read back and compared against the cache.
func (s *Store) AppendLines(path string, lines []string, separateWithBlank bool) (int, error) {
	path = Normalize(path)
	orig, err := s.Lines(path)
	if err != nil {
		return 0, err
	}
	modified, err := s.CheckModified(path)
	if err != nil {
		return 0, err
	}
	if modified {
		return 0, &recerror.ConcurrentModificationError{Path: path}
	}

	out := slices.Clone(lines)
	base := len(orig)
	empty := len(orig) == 1 && orig[0] == ""
	if !empty && orig[len(orig)-1] != "" {
		// file does not end with a newline
		out = slices.Insert(out, 0, "")
		base++
	}
	if separateWithBlank && !empty && (len(orig) == 1 || orig[len(orig)-2] != "") {
		out = slices.Insert(out, 0, "")
		base++
	}
	out = append(out, "")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open journal file for append: %w", err)
	}
	if _, err := f.WriteString(strings.Join(out, "\n")); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to append to journal file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close journal file: %w", err)
	}

	// The first appended element joins the trailing cached line.
	merged := slices.Clone(orig)
	merged[len(merged)-1] += out[0]
	merged = append(merged, out[1:]...)
	s.lines[path] = merged

	if err := s.verify(path); err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat journal file: %w", err)
	}
	s.loadTime[path] = info.ModTime()

	log.WithFields(logrus.Fields{"file": path, "line": base}).
		Debug("Appended journal entry")
	return base, nil
}

// verify re-reads path and confirms the cache matches the on-disk bytes
// exactly, guarding against the store's own bookkeeping drifting from reality.
func (s *Store) verify(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to re-read journal file: %w", err)
	}
	if string(data) != strings.Join(s.lines[path], "\n") {
		return fmt.Errorf("journal cache out of sync with %s after write", path)
	}
	return nil
}

// writeAtomic writes content to a temp file next to path and renames it over
// path, refusing to touch a concurrently modified file. It returns the new
// modification time.
func (s *Store) writeAtomic(path, content string) (time.Time, error) {
	modified, err := s.CheckModified(path)
	if err != nil {
		return time.Time{}, err
	}
	if modified {
		return time.Time{}, &recerror.ConcurrentModificationError{Path: path}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("failed to close temp file: %w", err)
	}
	info, err := os.Stat(tmpName)
	if err != nil {
		os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("failed to stat temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("failed to replace journal file: %w", err)
	}
	return info.ModTime(), nil
}
