// Package checktest runs single checks against canned instance state.
package checktest

import (
	"context"
	"sync"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/kylerisse/aemawait/pkg/instance/instancetest"
)

// Clock is a manually advanced time source for progress stopwatches.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env bundles what a check observes during a round.
type Env struct {
	Instance *instance.Instance
	Client   *instancetest.Client
	Clock    *Clock
	Progress *check.Progress
	Running  time.Duration
}

// NewEnv creates an environment for a remote instance named "test".
func NewEnv() *Env {
	inst := instancetest.Instance("test")
	clock := NewClock()
	return &Env{
		Instance: inst,
		Client:   &instancetest.Client{},
		Clock:    clock,
		Progress: check.NewProgress(inst, check.WithClock(clock.Now)),
	}
}

// Record finishes rounds on the progress, one per fingerprint value.
func (e *Env) Record(fingerprints ...any) {
	for _, fp := range fingerprints {
		g := check.NewGroup(e.Instance, []check.Check{stateCheck{value: fp}}, check.WithProgress(e.Progress))
		_ = g.Run(context.Background())
		e.Progress.Update(g)
	}
}

// Run evaluates c once and returns its result along with the fatal error, if any.
func (e *Env) Run(c check.Check) (check.Result, error) {
	return e.RunContext(context.Background(), c)
}

// RunContext is Run with an explicit context.
func (e *Env) RunContext(ctx context.Context, c check.Check) (check.Result, error) {
	g := e.Group(c)
	err := g.Run(ctx)
	results := g.Results()
	if len(results) == 0 {
		return check.Result{}, err
	}
	return results[0], err
}

// Group creates a round for c wired to the environment.
func (e *Env) Group(checks ...check.Check) *check.Group {
	running := e.Running
	return check.NewGroup(e.Instance, checks,
		check.WithProgress(e.Progress),
		check.WithClientFactory(e.Client.Factory()),
		check.WithRunningTime(func() time.Duration { return running }),
		check.WithGroupLogger(instancetest.Logger()),
	)
}

type stateCheck struct {
	value any
}

func (stateCheck) Type() string { return "state" }

func (s stateCheck) Run(_ context.Context, r *check.Round) error {
	r.State(s.value)
	return nil
}
