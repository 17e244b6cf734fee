// Package events implements a check that fails while the instance keeps
// emitting recent OSGi framework, bundle or service events.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "events"

	// DefaultUnstableAge is how recent an event must be to count as unstable.
	DefaultUnstableAge = 5 * time.Second
)

// DefaultUnstableTopics match events emitted while the framework is still settling.
var DefaultUnstableTopics = []string{
	"org/osgi/framework/ServiceEvent/*",
	"org/osgi/framework/FrameworkEvent/*",
	"org/osgi/framework/BundleEvent/*",
}

// DefaultIgnoredDetails match services that are re-registered all the time
// on a healthy instance.
var DefaultIgnoredDetails = []string{
	"org.osgi.service.component.runtime.ServiceComponentRuntime",
	"java.util.ResourceBundle",
	"org.apache.sling.api.resource.ResourceProviderFactory",
	"org.apache.sling.spi.resource.provider.ResourceProvider",
	"org.apache.sling.event.impl.jobs.queues.QueueManager",
	"org.apache.sling.api.adapter.AdapterFactory",
}

// Check implements check.Check by reading the recent event log.
type Check struct {
	check.Base
	topics  []string
	age     time.Duration
	ignored []string
	now     func() time.Time
}

// Option is a functional option for configuring an events Check.
type Option func(*Check) error

// WithUnstableTopics replaces the topic glob patterns of unstable events.
func WithUnstableTopics(patterns ...string) Option {
	return func(c *Check) error {
		c.topics = patterns
		return nil
	}
}

// WithUnstableAge sets how recent an event must be to count as unstable.
func WithUnstableAge(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("unstable age must be positive, got %v", d)
		}
		c.age = d
		return nil
	}
}

// WithIgnoredDetails replaces the glob patterns of event details to skip.
func WithIgnoredDetails(patterns ...string) Option {
	return func(c *Check) error {
		c.ignored = patterns
		return nil
	}
}

// WithTimeout sets the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		return c.SetTimeout(d)
	}
}

// WithClock sets the time source events are aged against.
func WithClock(now func() time.Time) Option {
	return func(c *Check) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		c.now = now
		return nil
	}
}

// New creates an events Check.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		Base:    check.NewBase(0),
		topics:  DefaultUnstableTopics,
		age:     DefaultUnstableAge,
		ignored: DefaultIgnoredDetails,
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run reads recent events and logs an error while unstable ones are found.
// The ids of unstable events contribute to the fingerprint.
func (c *Check) Run(ctx context.Context, r *check.Round) error {
	client, err := c.Client(r)
	if err != nil {
		return err
	}

	state, err := client.EventState(ctx)
	if err != nil {
		return check.Unknown(r, err, "Events unknown", fmt.Sprintf("Unknown event state on %s", r.Instance()))
	}
	if state.Unknown() {
		r.Error("Events unknown", fmt.Sprintf("Unknown event state on %s", r.Instance()))
		return nil
	}

	unstable := state.Matching(c.topics, c.age, c.ignored, c.now())
	if len(unstable) == 0 {
		return nil
	}

	ids := make([]string, 0, len(unstable))
	for _, e := range unstable {
		ids = append(ids, e.ID)
	}
	r.State(ids)

	summary := fmt.Sprintf("Events unstable (%d)", len(unstable))
	if len(unstable) == 1 {
		summary = fmt.Sprintf("Event unstable '%s'", unstable[0].Details())
	}
	r.Error(summary, fmt.Sprintf("Events causing instability (%d) detected on %s:\n%s",
		len(unstable), r.Instance(), check.LogValues(unstable)))
	return nil
}

type config struct {
	UnstableTopics []string      `mapstructure:"unstableTopics"`
	UnstableAge    time.Duration `mapstructure:"unstableAge"`
	IgnoredDetails []string      `mapstructure:"ignoredDetails"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Factory creates an events Check from a config map.
//
// Optional keys:
//   - "unstableTopics" (list of strings) event topic patterns
//   - "unstableAge" (string) duration string, default "5s"
//   - "ignoredDetails" (list of strings) event detail patterns to skip
//   - "timeout" (string) client timeout
func Factory(cfg map[string]any) (check.Check, error) {
	var conf config
	if err := check.Decode(cfg, &conf); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}

	var opts []Option
	if conf.UnstableTopics != nil {
		opts = append(opts, WithUnstableTopics(conf.UnstableTopics...))
	}
	if conf.UnstableAge != 0 {
		opts = append(opts, WithUnstableAge(conf.UnstableAge))
	}
	if conf.IgnoredDetails != nil {
		opts = append(opts, WithIgnoredDetails(conf.IgnoredDetails...))
	}
	if conf.Timeout != 0 {
		opts = append(opts, WithTimeout(conf.Timeout))
	}
	return New(opts...)
}
