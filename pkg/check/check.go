// Package check implements the instance stabilization engine.
//
// A Check is a single probe evaluated against one instance. Checks are
// composed into an ordered list and evaluated by a Group, which represents
// one round for one instance: checks run in declaration order and the round
// stops at the first failing check.
//
// The Runner polls every instance concurrently, building a fresh Group per
// round, until each instance reports a quorum of consecutive done rounds.
// Progress tracks per-instance state between rounds, including the
// fingerprint used to detect whether an instance is still changing.
//
// Ordinary probe failures are reported as ERROR entries on the Round and
// simply cause another round. A non-nil error returned from Check.Run is
// fatal and aborts the whole run for all instances.
package check

import (
	"context"
	"errors"

	"github.com/kylerisse/aemawait/pkg/instance"
)

// ErrNoChecks is returned when a run has no checks to evaluate.
var ErrNoChecks = errors.New("no instance checks defined")

// ErrDuplicateInstance is returned when two instances share a name.
var ErrDuplicateInstance = errors.New("duplicate instance name")

// Check is the interface that all stability checks must implement.
type Check interface {
	// Type returns the registered name of this check type (e.g. "bundles").
	Type() string

	// Run performs the probe once. Failures are reported on the round;
	// a returned error aborts the whole run.
	Run(ctx context.Context, r *Round) error
}

// Definitions builds the ordered check list for one round of one instance.
// It is called once per round so that checks never carry state across rounds.
type Definitions func(inst *instance.Instance) []Check

// List returns Definitions producing the given checks for every instance.
// The checks are shared between rounds, so only stateless checks should be
// passed here.
func List(checks ...Check) Definitions {
	return func(*instance.Instance) []Check {
		return checks
	}
}
