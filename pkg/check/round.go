package check

import (
	"time"

	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/sirupsen/logrus"
)

// Round is the context handed to a single check evaluation. It exposes the
// instance under test, the progress recorded so far, and collects the
// check's status entries and fingerprint contributions.
type Round struct {
	group *Group
	log   StatusLog
}

// Instance returns the instance being checked.
func (r *Round) Instance() *instance.Instance {
	return r.group.inst
}

// Progress returns the progress of the instance as of the previous round.
func (r *Round) Progress() *Progress {
	return r.group.progress
}

// RunningTime returns how long the whole run has been going.
func (r *Round) RunningTime() time.Duration {
	return r.group.running()
}

// Logger returns the logger for diagnostics that are not status entries.
func (r *Round) Logger() *logrus.Logger {
	return r.group.logger
}

// Client creates a remote-state client for the instance.
func (r *Round) Client(opts ...instance.Option) (instance.Client, error) {
	return r.group.clients(r.group.inst, opts...)
}

// State contributes value to the round's fingerprint and returns it.
// Rounds with equal contributions are considered unchanged.
func (r *Round) State(value any) any {
	r.group.contribute(value)
	return value
}

// Error logs a failure; the round will not be done.
func (r *Round) Error(summary, details string) {
	r.log.Add(logrus.ErrorLevel, summary, details)
}

// Warn logs a warning that does not fail the check.
func (r *Round) Warn(summary, details string) {
	r.log.Add(logrus.WarnLevel, summary, details)
}

// Info logs an informational entry.
func (r *Round) Info(summary, details string) {
	r.log.Add(logrus.InfoLevel, summary, details)
}

// Debug logs a debug entry.
func (r *Round) Debug(summary, details string) {
	r.log.Add(logrus.DebugLevel, summary, details)
}

// Success reports whether the check has logged no error so far.
func (r *Round) Success() bool {
	return r.log.Success()
}

// Status returns the first logged summary, or StatusPassed.
func (r *Round) Status() string {
	return r.log.Status()
}
