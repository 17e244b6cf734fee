// Package unchanged implements a debounce check: it fails until the instance
// state changed at least twice and then stayed the same for a while, so that
// a round happening to run in a short quiet window is not taken for stability.
package unchanged

import (
	"context"
	"fmt"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "unchanged"

	// DefaultAwaitTime is how long the state must stay unchanged.
	DefaultAwaitTime = 3 * time.Second

	// MinStateChanges is the number of observed state changes required.
	MinStateChanges = 2
)

// Check implements check.Check using the progress of the instance.
type Check struct {
	awaitTime time.Duration
}

// Option is a functional option for configuring an unchanged Check.
type Option func(*Check) error

// WithAwaitTime sets how long the state must stay unchanged. Zero only
// requires the state changes.
func WithAwaitTime(d time.Duration) Option {
	return func(c *Check) error {
		if d < 0 {
			return fmt.Errorf("await time must not be negative, got %v", d)
		}
		c.awaitTime = d
		return nil
	}
}

// New creates an unchanged Check.
func New(opts ...Option) (*Check, error) {
	c := &Check{awaitTime: DefaultAwaitTime}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("unchanged: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run logs an error while too few state changes were seen or the latest
// one is too recent.
func (c *Check) Run(_ context.Context, r *check.Round) error {
	p := r.Progress()

	if changes := p.StateChanges(); changes < MinStateChanges {
		r.Error("Awaiting state changes",
			fmt.Sprintf("Awaiting state changes on %s: %d of %d observed", r.Instance(), changes, MinStateChanges))
		return nil
	}

	if stateTime := p.StateTime(); stateTime < c.awaitTime {
		remaining := c.awaitTime - stateTime
		r.Error(fmt.Sprintf("Awaiting unchanged state (%s)", check.Duration(remaining)),
			fmt.Sprintf("Awaiting unchanged state on %s for %s, %s left",
				r.Instance(), check.Duration(c.awaitTime), check.Duration(remaining)))
	}
	return nil
}

type config struct {
	AwaitTime *time.Duration `mapstructure:"awaitTime"`
}

// Factory creates an unchanged Check from a config map.
//
// Optional keys:
//   - "awaitTime" (string) duration string, default "3s"
func Factory(cfg map[string]any) (check.Check, error) {
	var conf config
	if err := check.Decode(cfg, &conf); err != nil {
		return nil, fmt.Errorf("unchanged: %w", err)
	}

	var opts []Option
	if conf.AwaitTime != nil {
		opts = append(opts, WithAwaitTime(*conf.AwaitTime))
	}
	return New(opts...)
}
