// Package installer implements a check that fails while the Sling OSGi
// installer is processing resources or has been paused.
package installer

import (
	"context"
	"fmt"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "installer"
)

// Check implements check.Check by reading the installer MBean.
type Check struct {
	check.Base
	busy  bool
	pause bool
}

// Option is a functional option for configuring an installer Check.
type Option func(*Check) error

// WithBusy sets whether a busy installer fails the check.
func WithBusy(enabled bool) Option {
	return func(c *Check) error {
		c.busy = enabled
		return nil
	}
}

// WithPause sets whether a paused installer fails the check.
func WithPause(enabled bool) Option {
	return func(c *Check) error {
		c.pause = enabled
		return nil
	}
}

// WithTimeout sets the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		return c.SetTimeout(d)
	}
}

// New creates an installer Check.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		Base:  check.NewBase(0),
		busy:  true,
		pause: true,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("installer: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run reads the installer state and logs an error while it is busy or paused.
func (c *Check) Run(ctx context.Context, r *check.Round) error {
	client, err := c.Client(r)
	if err != nil {
		return err
	}

	state, err := client.InstallerState(ctx)
	if err != nil {
		return check.Unknown(r, err, "Installer state unknown", fmt.Sprintf("Unknown installer state on %s", r.Instance()))
	}
	if state.Unknown() {
		r.Error("Installer state unknown", fmt.Sprintf("Unknown installer state on %s", r.Instance()))
		return nil
	}

	r.State([]int64{state.ActiveResourceCount, state.InstalledResourceCount})

	if c.busy && state.Busy() {
		r.Error(fmt.Sprintf("Installer busy (%d resources)", state.ActiveResourceCount),
			fmt.Sprintf("Installer is busy on %s: %d active and %d installed resources",
				r.Instance(), state.ActiveResourceCount, state.InstalledResourceCount))
	}
	if c.pause && state.Paused {
		r.Error("Installer paused", fmt.Sprintf("Installation is paused on %s", r.Instance()))
	}
	return nil
}

type config struct {
	Busy    *bool         `mapstructure:"busy"`
	Pause   *bool         `mapstructure:"pause"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Factory creates an installer Check from a config map.
//
// Optional keys:
//   - "busy" (bool) fail while resources are processed, default true
//   - "pause" (bool) fail while installation is paused, default true
//   - "timeout" (string) client timeout
func Factory(cfg map[string]any) (check.Check, error) {
	var conf config
	if err := check.Decode(cfg, &conf); err != nil {
		return nil, fmt.Errorf("installer: %w", err)
	}

	var opts []Option
	if conf.Busy != nil {
		opts = append(opts, WithBusy(*conf.Busy))
	}
	if conf.Pause != nil {
		opts = append(opts, WithPause(*conf.Pause))
	}
	if conf.Timeout != 0 {
		opts = append(opts, WithTimeout(conf.Timeout))
	}
	return New(opts...)
}
