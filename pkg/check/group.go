package check

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/sirupsen/logrus"
)

const (
	// SummaryPassed is the summary of a round in which every check passed.
	SummaryPassed = "Passed"

	// StatusCancelled is the status of a round stopped before all checks ran.
	StatusCancelled = "Round cancelled"
)

// Group evaluates one round of checks for one instance.
type Group struct {
	inst     *instance.Instance
	checks   []Check
	progress *Progress
	clients  instance.ClientFactory
	running  func() time.Duration
	logger   *logrus.Logger

	digest  *xxhash.Digest
	results []Result
	ran     bool
	done    bool
}

// GroupOption is a functional option for configuring a Group.
type GroupOption func(*Group)

// WithProgress sets the progress the round's checks observe.
func WithProgress(p *Progress) GroupOption {
	return func(g *Group) { g.progress = p }
}

// WithClientFactory sets how checks obtain remote-state clients.
func WithClientFactory(f instance.ClientFactory) GroupOption {
	return func(g *Group) { g.clients = f }
}

// WithRunningTime sets the source of the overall running time.
func WithRunningTime(f func() time.Duration) GroupOption {
	return func(g *Group) { g.running = f }
}

// WithGroupLogger sets the logger checks may use for diagnostics.
func WithGroupLogger(logger *logrus.Logger) GroupOption {
	return func(g *Group) { g.logger = logger }
}

// NewGroup creates a round for the instance evaluating checks in order.
func NewGroup(inst *instance.Instance, checks []Check, opts ...GroupOption) *Group {
	g := &Group{
		inst:    inst,
		checks:  checks,
		clients: instance.NewClient,
		logger:  logrus.StandardLogger(),
		digest:  xxhash.New(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.progress == nil {
		g.progress = NewProgress(inst)
	}
	if g.running == nil {
		started := time.Now()
		g.running = func() time.Duration { return time.Since(started) }
	}
	return g
}

// Run evaluates the checks in declaration order. It stops at the first check
// that logs an error, and returns the first fatal error a check reports.
func (g *Group) Run(ctx context.Context) error {
	g.ran = true
	if len(g.checks) == 0 {
		return ErrNoChecks
	}

	for _, c := range g.checks {
		if err := ctx.Err(); err != nil {
			g.results = append(g.results, Result{
				Type:   c.Type(),
				Status: StatusCancelled,
				Entries: []Entry{{
					Level:   logrus.ErrorLevel,
					Summary: StatusCancelled,
					Details: fmt.Sprintf("Round on %s cancelled before %s check: %v", g.inst, c.Type(), err),
				}},
			})
			return nil
		}

		r := &Round{group: g}
		err := c.Run(ctx, r)

		res := Result{
			Type:    c.Type(),
			Success: err == nil && r.log.Success(),
			Status:  r.log.Status(),
			Entries: r.log.Entries(),
			Err:     err,
		}
		if err != nil {
			res.Status = err.Error()
			res.Entries = append(res.Entries, Entry{Level: logrus.ErrorLevel, Summary: err.Error(), Details: err.Error()})
		}
		g.results = append(g.results, res)

		if err != nil {
			return fmt.Errorf("%s check failed on %s: %w", c.Type(), g.inst, err)
		}
		if !res.Success {
			return nil
		}
	}

	g.done = true
	return nil
}

// Done reports whether every check ran and succeeded.
func (g *Group) Done() bool {
	return g.done
}

// Failed returns the result of the check that stopped the round, if any.
func (g *Group) Failed() (Result, bool) {
	for _, res := range g.results {
		if !res.Success {
			return res, true
		}
	}
	return Result{}, false
}

// Summary returns the status of the first failing check, or SummaryPassed.
func (g *Group) Summary() string {
	if res, ok := g.Failed(); ok {
		return res.Status
	}
	if !g.ran {
		return "In progress"
	}
	return SummaryPassed
}

// State returns the fingerprint accumulated from check contributions.
func (g *Group) State() uint64 {
	return g.digest.Sum64()
}

// Results returns the results of the checks that ran.
func (g *Group) Results() []Result {
	return append([]Result(nil), g.results...)
}

// Entries returns every entry logged during the round.
func (g *Group) Entries() []Entry {
	var entries []Entry
	for _, res := range g.results {
		entries = append(entries, res.Entries...)
	}
	return entries
}

// Log forwards the round's entries to the logger at their recorded levels.
func (g *Group) Log(logger *logrus.Logger) {
	Log(logger, g.Entries())
}

// Instance returns the instance being checked.
func (g *Group) Instance() *instance.Instance {
	return g.inst
}

func (g *Group) contribute(value any) {
	data, err := json.Marshal(value)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", value))
	}
	g.digest.Write(data)      //nolint:errcheck
	g.digest.Write([]byte{0}) //nolint:errcheck
}
