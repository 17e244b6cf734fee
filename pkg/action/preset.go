package action

import (
	"fmt"
	"maps"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
)

// Preset is a named, ordered list of check configurations together with
// the runner settings they are meant to be polled with.
type Preset struct {
	// Name identifies the preset in configuration and on the command line.
	Name string

	// Purpose completes "No instances to ..." log lines.
	Purpose string

	// Title prefixes the instance names when a run starts.
	Title string

	Delay     time.Duration
	DoneTimes int
	Verbose   bool

	// Checks are registry configurations keyed by check.KeyType.
	Checks []map[string]any
}

// AwaitUp returns the preset awaiting stable, fully started instances.
func AwaitUp() *Preset {
	return &Preset{
		Name:      "up",
		Purpose:   "await up",
		Title:     "Awaiting instance(s) up",
		Delay:     3 * time.Second,
		DoneTimes: 5,
		Verbose:   true,
		Checks: []map[string]any{
			{check.KeyType: "timeout", "stateTime": "10m", "constantTime": "30m"},
			{check.KeyType: "help"},
			{check.KeyType: "bundles"},
			{check.KeyType: "events"},
			{check.KeyType: "installer"},
			{check.KeyType: "components"},
			{check.KeyType: "unchanged", "awaitTime": "3s"},
		},
	}
}

// AwaitDown returns the preset awaiting stopped local instances.
func AwaitDown() *Preset {
	return &Preset{
		Name:      "down",
		Purpose:   "await down",
		Title:     "Awaiting instance(s) down",
		Delay:     2 * time.Second,
		DoneTimes: 1,
		Verbose:   true,
		Checks: []map[string]any{
			{check.KeyType: "timeout", "stateTime": "2m", "constantTime": "10m"},
			{check.KeyType: "unavailable", "utilisationTime": "10s"},
			{check.KeyType: "unchanged", "awaitTime": "3s"},
		},
	}
}

// Checks returns a preset running an arbitrary check list with the runner
// defaults.
func Checks(configs []map[string]any) *Preset {
	return &Preset{
		Name:      "check",
		Purpose:   "check",
		Title:     "Checking instance(s)",
		DoneTimes: 1,
		Verbose:   true,
		Checks:    configs,
	}
}

// NoPackageDeploy tunes the preset for instances that just started without
// any package deployment: a single done round suffices and the unchanged
// check is skipped.
func (p *Preset) NoPackageDeploy() *Preset {
	p.DoneTimes = 1
	for _, c := range p.Checks {
		if c[check.KeyType] == "unchanged" {
			c[check.KeyEnabled] = false
		}
	}
	return p
}

// Configure merges per-type overrides into the check configurations.
// Overrides for types the preset does not run are rejected.
func (p *Preset) Configure(overrides map[string]map[string]any) error {
	for typ, override := range overrides {
		found := false
		for _, c := range p.Checks {
			if c[check.KeyType] == typ {
				maps.Copy(c, override)
				found = true
			}
		}
		if !found {
			return fmt.Errorf("preset %s has no %s check", p.Name, typ)
		}
	}
	return nil
}

// Definitions builds the preset checks with reg.
func (p *Preset) Definitions(reg *check.Registry) (check.Definitions, error) {
	defs, err := reg.Definitions(p.Checks)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", p.Name, err)
	}
	return defs, nil
}

// RunnerOptions returns the runner settings of the preset.
func (p *Preset) RunnerOptions() []check.RunnerOption {
	return []check.RunnerOption{
		check.WithDelay(p.Delay),
		check.WithDoneTimes(p.DoneTimes),
		check.WithVerbose(p.Verbose),
	}
}
