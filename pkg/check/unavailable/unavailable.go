// Package unavailable implements a check that passes only once an instance
// went down: it no longer answers bundle queries and, for local instances,
// its control port marker was released.
package unavailable

import (
	"context"
	"fmt"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "unavailable"

	// DefaultUtilisationTime is how recently the control port marker must
	// have been touched to consider a local instance still running.
	DefaultUtilisationTime = 10 * time.Second
)

// Check implements check.Check by probing the instance for signs of life.
type Check struct {
	check.Base
	utilisationTime time.Duration
	now             func() time.Time
}

// Option is a functional option for configuring an unavailable Check.
type Option func(*Check) error

// WithUtilisationTime sets the control port marker age cutoff.
func WithUtilisationTime(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("utilisation time must be positive, got %v", d)
		}
		c.utilisationTime = d
		return nil
	}
}

// WithTimeout sets the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		return c.SetTimeout(d)
	}
}

// WithClock sets the time source the marker is aged against.
func WithClock(now func() time.Time) Option {
	return func(c *Check) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		c.now = now
		return nil
	}
}

// New creates an unavailable Check.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		Base:            check.NewBase(0),
		utilisationTime: DefaultUtilisationTime,
		now:             time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("unavailable: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run logs an error while the instance still answers bundle queries or its
// control port marker is in use.
func (c *Check) Run(ctx context.Context, r *check.Round) error {
	client, err := c.Client(r)
	if err != nil {
		return err
	}

	state, err := client.BundleState(ctx)
	if err == nil && !state.Unknown() {
		r.State(state.StatsWithLabels())
		r.Error(fmt.Sprintf("Bundles known (%s)", check.PercentExplained(state.StableCount(), state.Total())),
			fmt.Sprintf("Instance %s still answers bundle state: %s", r.Instance(), state.StatsWithLabels()))
		return nil
	}

	if !r.Instance().Local {
		return nil
	}

	port, err := client.ControlPort()
	if err != nil {
		r.Warn("Control port unknown", fmt.Sprintf("Cannot inspect control port of %s: %v", r.Instance(), err))
		return nil
	}
	if !port.Exists {
		return nil
	}

	age := c.now().Sub(port.ModTime)
	if age < c.utilisationTime {
		r.State(port.ModTime.UnixNano())
		r.Error("Awaiting control port release",
			fmt.Sprintf("Control port of %s was in use %s ago", r.Instance(), check.Duration(age)))
	}
	return nil
}

type config struct {
	UtilisationTime time.Duration `mapstructure:"utilisationTime"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Factory creates an unavailable Check from a config map.
//
// Optional keys:
//   - "utilisationTime" (string) duration string, default "10s"
//   - "timeout" (string) client timeout
func Factory(cfg map[string]any) (check.Check, error) {
	var conf config
	if err := check.Decode(cfg, &conf); err != nil {
		return nil, fmt.Errorf("unavailable: %w", err)
	}

	var opts []Option
	if conf.UtilisationTime != 0 {
		opts = append(opts, WithUtilisationTime(conf.UtilisationTime))
	}
	if conf.Timeout != 0 {
		opts = append(opts, WithTimeout(conf.Timeout))
	}
	return New(opts...)
}
