// Package bundles implements a check that fails while any OSGi bundle of the
// instance has not reached its final lifecycle state: active for ordinary
// bundles, resolved for fragments.
package bundles

import (
	"context"
	"fmt"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/kylerisse/aemawait/pkg/instance"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "bundles"
)

// Check implements check.Check by listing bundles of the instance.
type Check struct {
	check.Base
	ignored []string
}

// Option is a functional option for configuring a bundles Check.
type Option func(*Check) error

// WithSymbolicNamesIgnored excludes bundles whose symbolic names match any
// of the glob patterns.
func WithSymbolicNamesIgnored(patterns ...string) Option {
	return func(c *Check) error {
		c.ignored = append(c.ignored, patterns...)
		return nil
	}
}

// WithTimeout sets the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		return c.SetTimeout(d)
	}
}

// New creates a bundles Check.
func New(opts ...Option) (*Check, error) {
	c := &Check{Base: check.NewBase(0)}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("bundles: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run lists bundles and logs an error when some are not stable.
// The bundle stats and the unstable bundles contribute to the fingerprint.
func (c *Check) Run(ctx context.Context, r *check.Round) error {
	client, err := c.Client(r)
	if err != nil {
		return err
	}

	state, err := client.BundleState(ctx)
	if err != nil {
		return check.Unknown(r, err, "Bundles unknown", fmt.Sprintf("Unknown bundle state on %s", r.Instance()))
	}
	if state.Unknown() {
		r.Error("Bundles unknown", fmt.Sprintf("Unknown bundle state on %s", r.Instance()))
		return nil
	}

	r.State(state.StatsWithLabels())

	var unstable []instance.Bundle
	for _, b := range state.BundlesExcept(c.ignored) {
		if !b.Stable() {
			unstable = append(unstable, b)
		}
	}
	if len(unstable) == 0 {
		return nil
	}
	r.State(unstable)

	total := len(state.Bundles)
	summary := fmt.Sprintf("Bundles stable (%s)", check.PercentExplained(total-len(unstable), total))
	if len(unstable) == 1 {
		summary = fmt.Sprintf("Bundle unstable '%s'", unstable[0].SymbolicName)
	}
	r.Error(summary, fmt.Sprintf("Unstable bundles detected (%d) on %s:\n%s", len(unstable), r.Instance(), check.LogValues(unstable)))
	return nil
}

type config struct {
	SymbolicNamesIgnored []string      `mapstructure:"symbolicNamesIgnored"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// Factory creates a bundles Check from a config map.
//
// Optional keys:
//   - "symbolicNamesIgnored" (list of strings) glob patterns of bundles to skip
//   - "timeout" (string) duration string (e.g. "1s")
func Factory(cfg map[string]any) (check.Check, error) {
	var conf config
	if err := check.Decode(cfg, &conf); err != nil {
		return nil, fmt.Errorf("bundles: %w", err)
	}

	opts := []Option{WithSymbolicNamesIgnored(conf.SymbolicNamesIgnored...)}
	if conf.Timeout != 0 {
		opts = append(opts, WithTimeout(conf.Timeout))
	}
	return New(opts...)
}
