// Package help implements a remediation step rather than a gate: once an
// instance has been stuck in the same state for a while, it starts bundles
// left installed or resolved. It runs at most once per instance and run,
// and never fails the round.
package help

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/kylerisse/aemawait/pkg/instance"
	"golang.org/x/sync/errgroup"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "help"

	// DefaultStateTime is how long the state must be unchanged before helping.
	DefaultStateTime = 3 * time.Minute

	// DefaultBundleStartRetry is how many times a failed start is repeated.
	DefaultBundleStartRetry = 3

	// DefaultBundleStartDelay is the pause between start attempts.
	DefaultBundleStartDelay = time.Second

	// DefaultParallel bounds concurrent bundle starts.
	DefaultParallel = 4

	// DataKey marks instances that were already helped.
	DataKey = "help.bundlesStarted"
)

// DefaultBundleStartStates are the bundle states worth starting.
var DefaultBundleStartStates = []string{"installed", "resolved"}

// Check implements check.Check by starting stuck bundles.
type Check struct {
	check.Base
	stateTime   time.Duration
	startStates []string
	retry       int
	delay       time.Duration
	parallel    int
}

// Option is a functional option for configuring a help Check.
type Option func(*Check) error

// WithStateTime sets how long the state must be unchanged before helping.
func WithStateTime(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("state time must be positive, got %v", d)
		}
		c.stateTime = d
		return nil
	}
}

// WithBundleStartStates sets which bundle states are started.
func WithBundleStartStates(states ...string) Option {
	return func(c *Check) error {
		c.startStates = states
		return nil
	}
}

// WithBundleStartRetry sets how many times a failed start is repeated.
func WithBundleStartRetry(n int) Option {
	return func(c *Check) error {
		if n < 0 {
			return fmt.Errorf("bundle start retry must not be negative, got %d", n)
		}
		c.retry = n
		return nil
	}
}

// WithBundleStartDelay sets the pause between start attempts.
func WithBundleStartDelay(d time.Duration) Option {
	return func(c *Check) error {
		if d < 0 {
			return fmt.Errorf("bundle start delay must not be negative, got %v", d)
		}
		c.delay = d
		return nil
	}
}

// WithParallel bounds concurrent bundle starts.
func WithParallel(n int) Option {
	return func(c *Check) error {
		if n < 1 {
			return fmt.Errorf("parallel must be at least 1, got %d", n)
		}
		c.parallel = n
		return nil
	}
}

// WithTimeout sets the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		return c.SetTimeout(d)
	}
}

// New creates a help Check.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		Base:        check.NewBase(0),
		stateTime:   DefaultStateTime,
		startStates: DefaultBundleStartStates,
		retry:       DefaultBundleStartRetry,
		delay:       DefaultBundleStartDelay,
		parallel:    DefaultParallel,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("help: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run starts stuck bundles once the state has been unchanged long enough.
// Problems are reported as warnings.
func (c *Check) Run(ctx context.Context, r *check.Round) error {
	p := r.Progress()
	if p.StateTime() < c.stateTime {
		return nil
	}
	if _, helped := p.Data(DataKey); helped {
		return nil
	}
	p.SetData(DataKey, true)

	client, err := c.Client(r)
	if err != nil {
		return err
	}

	state, err := client.BundleState(ctx)
	if err != nil {
		r.Warn("Help skipped", fmt.Sprintf("Cannot list bundles to start on %s: %v", r.Instance(), err))
		return nil
	}

	var stuck []instance.Bundle
	for _, b := range state.Bundles {
		if !b.Fragment && slices.Contains(c.startStates, b.State()) {
			stuck = append(stuck, b)
		}
	}
	if len(stuck) == 0 {
		r.Debug("Nothing to help", fmt.Sprintf("No bundles to start on %s", r.Instance()))
		return nil
	}

	r.Logger().Infof("Starting bundles (%d) on %s after state unchanged for %s",
		len(stuck), r.Instance(), check.Duration(c.stateTime))

	var (
		mu     sync.Mutex
		failed []string
		eg     errgroup.Group
	)
	eg.SetLimit(c.parallel)
	for _, b := range stuck {
		eg.Go(func() error {
			if err := c.start(ctx, client, b.SymbolicName); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Sprintf("%s: %v", b.SymbolicName, err))
				mu.Unlock()
			}
			return nil
		})
	}
	eg.Wait() //nolint:errcheck

	started := len(stuck) - len(failed)
	r.Info(fmt.Sprintf("Bundles started (%d)", started),
		fmt.Sprintf("Started bundles (%d) on %s:\n%s", started, r.Instance(), check.LogValues(stuck)))
	if len(failed) > 0 {
		slices.Sort(failed)
		r.Warn(fmt.Sprintf("Bundles not started (%d)", len(failed)),
			fmt.Sprintf("Cannot start bundles (%d) on %s:\n%s", len(failed), r.Instance(), check.LogValues(failed)))
	}
	return nil
}

func (c *Check) start(ctx context.Context, client instance.Client, symbolicName string) error {
	var err error
	for attempt := 0; attempt <= c.retry; attempt++ {
		if attempt > 0 && !sleep(ctx, c.delay) {
			return ctx.Err()
		}
		if err = client.StartBundle(ctx, symbolicName); err == nil {
			return nil
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type config struct {
	StateTime         time.Duration  `mapstructure:"stateTime"`
	BundleStartStates []string       `mapstructure:"bundleStartStates"`
	BundleStartRetry  *int           `mapstructure:"bundleStartRetry"`
	BundleStartDelay  *time.Duration `mapstructure:"bundleStartDelay"`
	Parallel          int            `mapstructure:"parallel"`
	Timeout           time.Duration  `mapstructure:"timeout"`
}

// Factory creates a help Check from a config map.
//
// Optional keys:
//   - "stateTime" (string) duration string, default "3m"
//   - "bundleStartStates" (list of strings) default installed, resolved
//   - "bundleStartRetry" (int) default 3
//   - "bundleStartDelay" (string) duration string, default "1s"
//   - "parallel" (int) concurrent starts, default 4
//   - "timeout" (string) client timeout
func Factory(cfg map[string]any) (check.Check, error) {
	var conf config
	if err := check.Decode(cfg, &conf); err != nil {
		return nil, fmt.Errorf("help: %w", err)
	}

	var opts []Option
	if conf.StateTime != 0 {
		opts = append(opts, WithStateTime(conf.StateTime))
	}
	if conf.BundleStartStates != nil {
		opts = append(opts, WithBundleStartStates(conf.BundleStartStates...))
	}
	if conf.BundleStartRetry != nil {
		opts = append(opts, WithBundleStartRetry(*conf.BundleStartRetry))
	}
	if conf.BundleStartDelay != nil {
		opts = append(opts, WithBundleStartDelay(*conf.BundleStartDelay))
	}
	if conf.Parallel != 0 {
		opts = append(opts, WithParallel(conf.Parallel))
	}
	if conf.Timeout != 0 {
		opts = append(opts, WithTimeout(conf.Timeout))
	}
	return New(opts...)
}
