package check

import (
	"github.com/sirupsen/logrus"
)

// StatusPassed is the status of a check that logged nothing.
const StatusPassed = "Check passed"

// Entry is a single status message logged by a check.
type Entry struct {
	Level logrus.Level `json:"level"`

	// Summary is a short one-line description used in progress lines.
	Summary string `json:"summary"`

	// Details is the full diagnostic message.
	Details string `json:"details,omitempty"`
}

// StatusLog collects the entries of a single check evaluation.
type StatusLog struct {
	entries []Entry
}

// Add appends an entry.
func (l *StatusLog) Add(level logrus.Level, summary, details string) {
	if details == "" {
		details = summary
	}
	l.entries = append(l.entries, Entry{Level: level, Summary: summary, Details: details})
}

// Entries returns a copy of the logged entries.
func (l *StatusLog) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Success reports whether no ERROR (or more severe) entry was logged.
func (l *StatusLog) Success() bool {
	for _, e := range l.entries {
		if e.Level <= logrus.ErrorLevel {
			return false
		}
	}
	return true
}

// Status returns the summary of the first entry, or StatusPassed.
func (l *StatusLog) Status() string {
	if len(l.entries) == 0 {
		return StatusPassed
	}
	return l.entries[0].Summary
}

// Log forwards entries to the logger at their recorded levels.
func Log(logger *logrus.Logger, entries []Entry) {
	for _, e := range entries {
		logger.Log(e.Level, e.Details)
	}
}
