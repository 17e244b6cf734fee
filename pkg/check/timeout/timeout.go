// Package timeout implements a guard that aborts the whole run once an
// instance stopped changing for too long, or the run itself took too long.
//
// It is the only check type expected to fail fatally.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "timeout"

	// DefaultStateTime is how long an unchanged state is tolerated.
	DefaultStateTime = 10 * time.Minute

	// DefaultConstantTime is how long the whole run may take.
	DefaultConstantTime = 30 * time.Minute
)

// ErrTimeout is wrapped by every error the check returns.
var ErrTimeout = errors.New("instance timeout")

// Check implements check.Check without querying the instance.
type Check struct {
	stateTime    time.Duration
	constantTime time.Duration
}

// Option is a functional option for configuring a timeout Check.
type Option func(*Check) error

// WithStateTime sets how long the instance state may stay unchanged.
func WithStateTime(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("state time must be positive, got %v", d)
		}
		c.stateTime = d
		return nil
	}
}

// WithConstantTime sets how long the whole run may take.
func WithConstantTime(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("constant time must be positive, got %v", d)
		}
		c.constantTime = d
		return nil
	}
}

// New creates a timeout Check.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		stateTime:    DefaultStateTime,
		constantTime: DefaultConstantTime,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run returns an error wrapping ErrTimeout once a time limit is exceeded.
func (c *Check) Run(_ context.Context, r *check.Round) error {
	if stateTime := r.Progress().StateTime(); stateTime >= c.stateTime {
		return fmt.Errorf("%w: state of %s unchanged for %s", ErrTimeout, r.Instance(), check.Duration(c.stateTime))
	}
	if running := r.RunningTime(); running >= c.constantTime {
		return fmt.Errorf("%w: awaiting %s exceeded %s", ErrTimeout, r.Instance(), check.Duration(c.constantTime))
	}
	return nil
}

type config struct {
	StateTime    time.Duration `mapstructure:"stateTime"`
	ConstantTime time.Duration `mapstructure:"constantTime"`
}

// Factory creates a timeout Check from a config map.
//
// Optional keys:
//   - "stateTime" (string) duration string, default "10m"
//   - "constantTime" (string) duration string, default "30m"
func Factory(cfg map[string]any) (check.Check, error) {
	var conf config
	if err := check.Decode(cfg, &conf); err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}

	var opts []Option
	if conf.StateTime != 0 {
		opts = append(opts, WithStateTime(conf.StateTime))
	}
	if conf.ConstantTime != 0 {
		opts = append(opts, WithConstantTime(conf.ConstantTime))
	}
	return New(opts...)
}
