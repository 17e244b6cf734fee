// Package components implements a check of declarative services components.
//
// Platform components must all be active. Specific components, typically
// those of the deployed application, must neither fail activation nor stay
// unsatisfied.
package components

import (
	"context"
	"fmt"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/kylerisse/aemawait/pkg/instance"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "components"

	// DefaultTimeout is longer than for other checks; the listing is large.
	DefaultTimeout = 10 * time.Second
)

// DefaultPlatform lists components that must be active on any instance.
var DefaultPlatform = []string{
	"com.day.crx.packaging.*",
	"org.apache.sling.installer.*",
}

// Check implements check.Check by listing components of the instance.
type Check struct {
	check.Base
	platform []string
	specific []string
}

// Option is a functional option for configuring a components Check.
type Option func(*Check) error

// WithPlatform replaces the glob patterns of components that must be active.
func WithPlatform(patterns ...string) Option {
	return func(c *Check) error {
		c.platform = patterns
		return nil
	}
}

// WithSpecific sets the glob patterns of components that must not fail
// activation nor be unsatisfied.
func WithSpecific(patterns ...string) Option {
	return func(c *Check) error {
		c.specific = patterns
		return nil
	}
}

// WithTimeout sets the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		return c.SetTimeout(d)
	}
}

// New creates a components Check.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		Base:     check.NewBase(DefaultTimeout),
		platform: DefaultPlatform,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("components: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run lists components and logs an error for every violated rule.
func (c *Check) Run(ctx context.Context, r *check.Round) error {
	client, err := c.Client(r)
	if err != nil {
		return err
	}

	state, err := client.ComponentState(ctx)
	if err != nil {
		return check.Unknown(r, err, "Components unknown", fmt.Sprintf("Unknown component state on %s", r.Instance()))
	}
	if state.Unknown() {
		r.Error("Components unknown", fmt.Sprintf("Unknown component state on %s", r.Instance()))
		return nil
	}

	total := state.Size()

	inactive := filter(state.Find(c.platform, nil), func(comp instance.Component) bool { return !comp.Active() })
	failed := filter(state.Find(c.specific, nil), instance.Component.FailedActivation)
	unsatisfied := filter(state.Find(c.specific, nil), instance.Component.Unsatisfied)

	r.State([]int{total, len(inactive), len(failed), len(unsatisfied)})

	report(r, inactive, total, "Component inactive", "Components inactive", "Inactive components detected")
	report(r, failed, total, "Component failed", "Components failed", "Components with failed activation detected")
	report(r, unsatisfied, total, "Component unsatisfied", "Components unsatisfied", "Unsatisfied components detected")
	return nil
}

func report(r *check.Round, found []instance.Component, total int, one, many, details string) {
	switch len(found) {
	case 0:
		return
	case 1:
		r.Error(fmt.Sprintf("%s '%s'", one, found[0].UID()),
			fmt.Sprintf("%s on %s:\n%s", details, r.Instance(), check.LogValues(found)))
	default:
		r.Error(fmt.Sprintf("%s (%s)", many, check.PercentExplained(len(found), total)),
			fmt.Sprintf("%s on %s:\n%s", details, r.Instance(), check.LogValues(found)))
	}
}

func filter(components []instance.Component, keep func(instance.Component) bool) []instance.Component {
	var result []instance.Component
	for _, comp := range components {
		if keep(comp) {
			result = append(result, comp)
		}
	}
	return result
}

type config struct {
	Platform []string      `mapstructure:"platform"`
	Specific []string      `mapstructure:"specific"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Factory creates a components Check from a config map.
//
// Optional keys:
//   - "platform" (list of strings) components that must be active
//   - "specific" (list of strings) components that must not fail
//   - "timeout" (string) duration string, default "10s"
func Factory(cfg map[string]any) (check.Check, error) {
	var conf config
	if err := check.Decode(cfg, &conf); err != nil {
		return nil, fmt.Errorf("components: %w", err)
	}

	var opts []Option
	if conf.Platform != nil {
		opts = append(opts, WithPlatform(conf.Platform...))
	}
	if conf.Specific != nil {
		opts = append(opts, WithSpecific(conf.Specific...))
	}
	if conf.Timeout != 0 {
		opts = append(opts, WithTimeout(conf.Timeout))
	}
	return New(opts...)
}
