package check

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultRoundTimeout bounds a single round regardless of client timeouts.
	DefaultRoundTimeout = 30 * time.Second
)

// Reporter receives a one-line summary of all instances whenever a round finishes.
type Reporter interface {
	Update(line string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(line string)

func (f ReporterFunc) Update(line string) { f(line) }

// Runner polls instances with rounds of checks until each of them is done.
type Runner struct {
	defs         Definitions
	delay        time.Duration
	roundTimeout time.Duration
	doneTimes    int
	verbose      bool
	logInstantly bool
	workers      int
	logger       *logrus.Logger
	reporter     Reporter
	metrics      *Metrics
	clients      instance.ClientFactory

	mu         sync.RWMutex
	progresses map[string]*Progress
	started    time.Time
	stopped    time.Time
	reportMu   sync.Mutex

	abortCause atomic.Pointer[abortCause]
	cancel     context.CancelFunc
}

type abortCause struct {
	err error
}

// RunnerOption is a functional option for configuring a Runner.
type RunnerOption func(*Runner) error

// WithDelay sets the pause between rounds of one instance.
func WithDelay(d time.Duration) RunnerOption {
	return func(r *Runner) error {
		if d < 0 {
			return fmt.Errorf("delay must not be negative, got %v", d)
		}
		r.delay = d
		return nil
	}
}

// WithRoundTimeout sets how long a single round may take.
func WithRoundTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) error {
		if d <= 0 {
			return fmt.Errorf("round timeout must be positive, got %v", d)
		}
		r.roundTimeout = d
		return nil
	}
}

// WithDoneTimes sets how many consecutive done rounds finish an instance.
func WithDoneTimes(n int) RunnerOption {
	return func(r *Runner) error {
		if n < 1 {
			return fmt.Errorf("done times must be at least 1, got %d", n)
		}
		r.doneTimes = n
		return nil
	}
}

// WithVerbose controls whether an abort is returned as an error (true)
// or only logged (false).
func WithVerbose(verbose bool) RunnerOption {
	return func(r *Runner) error {
		r.verbose = verbose
		return nil
	}
}

// WithLogInstantly logs status entries after every round instead of
// dumping them once on abort.
func WithLogInstantly(instantly bool) RunnerOption {
	return func(r *Runner) error {
		r.logInstantly = instantly
		return nil
	}
}

// WithWorkers bounds how many rounds are evaluated at once.
// Zero means one worker per instance.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) error {
		if n < 0 {
			return fmt.Errorf("workers must not be negative, got %d", n)
		}
		r.workers = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) RunnerOption {
	return func(r *Runner) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithReporter sets the progress sink.
func WithReporter(rep Reporter) RunnerOption {
	return func(r *Runner) error {
		r.reporter = rep
		return nil
	}
}

// WithMetrics sets the Prometheus collectors to update.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) error {
		r.metrics = m
		return nil
	}
}

// WithClients sets how checks obtain remote-state clients.
func WithClients(f instance.ClientFactory) RunnerOption {
	return func(r *Runner) error {
		if f == nil {
			return fmt.Errorf("client factory must not be nil")
		}
		r.clients = f
		return nil
	}
}

// NewRunner creates a Runner evaluating the checks produced by defs.
func NewRunner(defs Definitions, opts ...RunnerOption) (*Runner, error) {
	if defs == nil {
		return nil, fmt.Errorf("check: %w", ErrNoChecks)
	}

	r := &Runner{
		defs:         defs,
		roundTimeout: DefaultRoundTimeout,
		doneTimes:    1,
		verbose:      true,
		logger:       logrus.StandardLogger(),
		clients:      instance.NewClient,
		progresses:   make(map[string]*Progress),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("check: %w", err)
		}
	}
	return r, nil
}

// Check polls all instances concurrently until each reached the done quorum
// or the run aborted. On abort the cause is returned in verbose mode and
// logged otherwise. Cancelling ctx stops polling and returns its error.
func (r *Runner) Check(ctx context.Context, instances []*instance.Instance) error {
	if len(instances) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(instances))
	for _, inst := range instances {
		if seen[inst.Name] {
			return fmt.Errorf("check: %w: %s", ErrDuplicateInstance, inst.Name)
		}
		seen[inst.Name] = true
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.start(instances, cancel)

	workers := r.workers
	if workers == 0 {
		workers = len(instances)
	}
	pool := semaphore.NewWeighted(int64(workers))

	var eg errgroup.Group
	for _, p := range r.sortedProgresses() {
		eg.Go(func() error {
			r.poll(ctx, pool, p)
			return nil
		})
	}
	eg.Wait() //nolint:errcheck
	r.stop()

	if cause := r.AbortCause(); cause != nil {
		if !r.logInstantly {
			for _, p := range r.sortedProgresses() {
				if g := p.Current(); g != nil {
					g.Log(r.logger)
				}
			}
		}
		if r.verbose {
			return cause
		}
		r.logger.Errorf("Instance checking aborted: %v", cause)
		return nil
	}

	if err := ctx.Err(); err != nil && !r.allFinished() {
		return fmt.Errorf("instance checking interrupted after %s: %w", Duration(r.RunningTime()), context.Cause(ctx))
	}

	r.logger.Infof("Instance(s) checked in %s: %s", Duration(r.RunningTime()), instance.Names(instances))
	return nil
}

// poll runs rounds for one instance until it is finished or the run stops.
func (r *Runner) poll(ctx context.Context, pool *semaphore.Weighted, p *Progress) {
	name := p.Instance().Name
	for {
		if r.Aborted() || ctx.Err() != nil {
			return
		}

		g, err := r.round(ctx, pool, p)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warnf("Round on %s not completed: %v", p.Instance(), err)
			}
			p.resetDone()
		} else {
			p.Update(g)
			if r.logInstantly {
				g.Log(r.logger)
			}
			if g.Done() {
				if p.markDone(r.doneTimes) {
					r.metrics.setFinished(name, true)
					r.report()
					return
				}
			} else {
				p.resetDone()
			}
		}
		r.report()

		if r.Aborted() || !sleep(ctx, r.delay) {
			return
		}
	}
}

// round evaluates one Group on the worker pool, bounded by the round timeout.
// Waiting for a worker counts against the round timeout, and a timed-out
// round gives its worker back even if its checks never return.
// Timeouts and panics are returned as errors; fatal check errors latch the
// abort and still return the group so its status can be inspected.
func (r *Runner) round(ctx context.Context, pool *semaphore.Weighted, p *Progress) (*Group, error) {
	inst := p.Instance()
	roundCtx, cancel := context.WithTimeout(ctx, r.roundTimeout)
	defer cancel()

	start := time.Now()
	if err := pool.Acquire(roundCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.metrics.observeRound(inst.Name, ResultTimeout, time.Since(start))
		return nil, fmt.Errorf("round timed out after %s awaiting a worker", Duration(r.roundTimeout))
	}
	var release sync.Once
	releaseWorker := func() { release.Do(func() { pool.Release(1) }) }

	g := NewGroup(inst, r.defs(inst),
		WithProgress(p),
		WithClientFactory(r.clients),
		WithRunningTime(r.RunningTime),
		WithGroupLogger(r.logger),
	)

	done := make(chan error, 1)
	go func() {
		defer releaseWorker()
		defer func() {
			if rec := recover(); rec != nil {
				done <- &panicError{err: fmt.Errorf("check panicked on %s: %v", inst, rec)}
			}
		}()
		done <- g.Run(roundCtx)
	}()

	select {
	case err := <-done:
		return r.complete(g, err, time.Since(start))
	case <-roundCtx.Done():
		if ctx.Err() != nil {
			select {
			case err := <-done:
				return r.complete(g, err, time.Since(start))
			default:
			}
			return nil, ctx.Err()
		}
		releaseWorker()
		r.metrics.observeRound(inst.Name, ResultTimeout, time.Since(start))
		return nil, fmt.Errorf("round timed out after %s", Duration(r.roundTimeout))
	}
}

// complete classifies a finished round. Fatal errors latch the abort.
func (r *Runner) complete(g *Group, err error, took time.Duration) (*Group, error) {
	name := g.Instance().Name

	var pe *panicError
	if errors.As(err, &pe) {
		r.metrics.observeRound(name, ResultFatal, took)
		r.Abort(pe.err)
		return nil, pe.err
	}
	switch {
	case err != nil:
		r.Abort(err)
		r.metrics.observeRound(name, ResultFatal, took)
	case g.Done():
		r.metrics.observeRound(name, ResultDone, took)
	default:
		r.metrics.observeRound(name, ResultFailed, took)
	}
	return g, nil
}

type panicError struct {
	err error
}

func (e *panicError) Error() string { return e.err.Error() }

// Abort latches the run as aborted with err. Only the first cause is kept.
func (r *Runner) Abort(err error) {
	if err == nil {
		return
	}
	if !r.abortCause.CompareAndSwap(nil, &abortCause{err: err}) {
		return
	}
	r.logger.Debugf("Aborting instance checking: %v", err)
	r.metrics.observeAbort()
	r.mu.RLock()
	cancel := r.cancel
	r.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// AbortCause returns the error that aborted the run, or nil.
func (r *Runner) AbortCause() error {
	if c := r.abortCause.Load(); c != nil {
		return c.err
	}
	return nil
}

// Aborted reports whether the run was aborted.
func (r *Runner) Aborted() bool {
	return r.abortCause.Load() != nil
}

// RunningTime returns the time since the run started, frozen once it ends.
func (r *Runner) RunningTime() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case r.started.IsZero():
		return 0
	case !r.stopped.IsZero():
		return r.stopped.Sub(r.started)
	default:
		return time.Since(r.started)
	}
}

// Progress returns the progress of the named instance.
func (r *Runner) Progress(name string) (*Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.progresses[name]
	return p, ok
}

// Snapshots returns point-in-time copies of every instance's progress, by name.
func (r *Runner) Snapshots() []ProgressSnapshot {
	progresses := r.sortedProgresses()
	snaps := make([]ProgressSnapshot, 0, len(progresses))
	for _, p := range progresses {
		snaps = append(snaps, p.Snapshot())
	}
	return snaps
}

// Summary joins the instance summaries into a single progress line.
func (r *Runner) Summary() string {
	progresses := r.sortedProgresses()
	parts := make([]string, 0, len(progresses))
	for _, p := range progresses {
		parts = append(parts, p.Summary())
	}
	return strings.Join(parts, " | ")
}

func (r *Runner) start(instances []*instance.Instance, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = cancel
	r.abortCause.Store(nil)
	r.progresses = make(map[string]*Progress, len(instances))
	for _, inst := range instances {
		r.progresses[inst.Name] = NewProgress(inst)
		r.metrics.setFinished(inst.Name, false)
	}
	r.started = time.Now()
	r.stopped = time.Time{}
}

func (r *Runner) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = time.Now()
}

func (r *Runner) sortedProgresses() []*Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Progress, 0, len(r.progresses))
	for _, p := range r.progresses {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Instance().Name < result[j].Instance().Name
	})
	return result
}

func (r *Runner) allFinished() bool {
	for _, p := range r.sortedProgresses() {
		if !p.Finished() {
			return false
		}
	}
	return true
}

func (r *Runner) report() {
	if r.reporter == nil {
		return
	}
	r.reportMu.Lock()
	defer r.reportMu.Unlock()
	r.reporter.Update(r.Summary())
}

// sleep waits d or until ctx is done. It reports whether polling may continue.
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
