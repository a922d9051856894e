// Package recerror defines the error taxonomy for the reconciliation core.
package recerror

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConfigurationError represents an unrecoverable setup problem, such as a
// duplicate account mapping or an unreadable feed file. It is never retried.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ConcurrentModificationError indicates a journal file changed on disk since
// it was last read or written by this process. The in-memory state for every
// journal file must be discarded and reloaded before retrying.
type ConcurrentModificationError struct {
	Path string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("journal file modified concurrently: %s", e.Path)
}

// IsConcurrentModification reports whether err stems from an out-of-band
// journal edit.
func IsConcurrentModification(err error) bool {
	var cm *ConcurrentModificationError
	return errors.As(err, &cm)
}

// StaleEntry identifies one matched posting whose external record is missing
// or under-counted in the current feed snapshot.
type StaleEntry struct {
	File       string
	Line       int
	Date       time.Time
	SourceData string
}

func (s StaleEntry) String() string {
	return fmt.Sprintf("%s:%d: stale entry: %s %s",
		s.File, s.Line, s.Date.Format("2006-01-02"), s.SourceData)
}

// StaleEntryError aborts processing when the journal references downloaded
// records that no longer exist upstream at the expected count.
type StaleEntryError struct {
	Entries []StaleEntry
}

func (e *StaleEntryError) Error() string {
	lines := make([]string, 0, len(e.Entries)+1)
	lines = append(lines, "stale entries found")
	for _, s := range e.Entries {
		lines = append(lines, s.String())
	}
	return strings.Join(lines, "\n")
}

// ParseError represents a malformed amount, record or transaction text. It is
// fatal to the current operation only; other records may still be processed.
type ParseError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to parse %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
