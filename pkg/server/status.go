package server

import (
	"github.com/kylerisse/aemawait/pkg/check"
)

// RunStatus is the aggregate status of an await across all instances.
type RunStatus string

const (
	// RunStatusUnknown means no instance is being awaited yet.
	RunStatusUnknown RunStatus = "unknown"
	// RunStatusStable means every instance reached the done quorum.
	RunStatusStable RunStatus = "stable"
	// RunStatusPartial means some instances are finished and some are not.
	RunStatusPartial RunStatus = "partial"
	// RunStatusUnstable means no instance is finished yet.
	RunStatusUnstable RunStatus = "unstable"
	// RunStatusAborted means a fatal check error stopped the run.
	RunStatusAborted RunStatus = "aborted"
)

// computeRunStatus determines the aggregate status from instance snapshots.
// An abort takes precedence over everything else.
func computeRunStatus(snapshots []check.ProgressSnapshot, aborted bool) RunStatus {
	if aborted {
		return RunStatusAborted
	}
	if len(snapshots) == 0 {
		return RunStatusUnknown
	}

	finished := 0
	for _, snap := range snapshots {
		if snap.Finished {
			finished++
		}
	}

	switch finished {
	case len(snapshots):
		return RunStatusStable
	case 0:
		return RunStatusUnstable
	default:
		return RunStatusPartial
	}
}
