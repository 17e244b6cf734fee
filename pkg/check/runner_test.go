package check

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func newTestRunner(t *testing.T, defs Definitions, opts ...RunnerOption) *Runner {
	t.Helper()
	opts = append([]RunnerOption{WithLogger(quietLogger()), WithRoundTimeout(time.Second)}, opts...)
	r, err := NewRunner(defs, opts...)
	require.NoError(t, err)
	return r
}

func instances(names ...string) []*instance.Instance {
	result := make([]*instance.Instance, 0, len(names))
	for _, n := range names {
		result = append(result, testInstance(n))
	}
	return result
}

// counting returns a check that fails on the rounds for which fail returns
// true, counting evaluations per instance.
func counting(counts *sync.Map, fail func(round int64) bool) *funcCheck {
	return &funcCheck{name: "counting", fn: func(_ context.Context, r *Round) error {
		v, _ := counts.LoadOrStore(r.Instance().Name, new(atomic.Int64))
		round := v.(*atomic.Int64).Add(1)
		if fail != nil && fail(round) {
			r.Error("Not yet", "")
		}
		return nil
	}}
}

func count(counts *sync.Map, name string) int64 {
	v, ok := counts.Load(name)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(nil)
	assert.ErrorIs(t, err, ErrNoChecks)

	defs := List(passing("a"))
	for name, opt := range map[string]RunnerOption{
		"delay":        WithDelay(-time.Second),
		"roundTimeout": WithRoundTimeout(0),
		"doneTimes":    WithDoneTimes(0),
		"workers":      WithWorkers(-1),
		"logger":       WithLogger(nil),
		"clients":      WithClients(nil),
	} {
		_, err := NewRunner(defs, opt)
		assert.Error(t, err, name)
	}
}

func TestRunner_NoInstances(t *testing.T) {
	r := newTestRunner(t, List(passing("a")))
	assert.NoError(t, r.Check(context.Background(), nil))
}

func TestRunner_SingleRoundWhenAllPass(t *testing.T) {
	r := newTestRunner(t, List(passing("a"), passing("b")))

	require.NoError(t, r.Check(context.Background(), instances("a")))

	p, ok := r.Progress("a")
	require.True(t, ok)
	assert.Equal(t, 1, p.Rounds())
	assert.True(t, p.Finished())
	assert.False(t, r.Aborted())
}

func TestRunner_ShortCircuit(t *testing.T) {
	spy := &spyCheck{}
	var counts sync.Map
	failTwice := counting(&counts, func(round int64) bool { return round <= 2 })
	r := newTestRunner(t, List(failTwice, spy))

	require.NoError(t, r.Check(context.Background(), instances("a")))

	assert.Equal(t, int64(3), count(&counts, "a"))
	assert.Equal(t, int64(1), spy.calls.Load(), "spy only runs in the round that passed")
}

func TestRunner_DoneTimesResetByFailedRound(t *testing.T) {
	var counts sync.Map
	// done, done, failed, done, done, done
	c := counting(&counts, func(round int64) bool { return round == 3 })
	r := newTestRunner(t, List(c), WithDoneTimes(3))

	require.NoError(t, r.Check(context.Background(), instances("a")))

	p, _ := r.Progress("a")
	assert.Equal(t, 6, p.Rounds())
	assert.Equal(t, 3, p.DoneRounds())
}

func TestRunner_DoneTimesConsecutive(t *testing.T) {
	var counts sync.Map
	r := newTestRunner(t, List(counting(&counts, nil)), WithDoneTimes(4))

	require.NoError(t, r.Check(context.Background(), instances("a", "b")))

	assert.Equal(t, int64(4), count(&counts, "a"))
	assert.Equal(t, int64(4), count(&counts, "b"))
}

func TestRunner_RoundTimeout(t *testing.T) {
	var calls atomic.Int64
	slowOnce := &funcCheck{name: "slow", fn: func(ctx context.Context, r *Round) error {
		if calls.Add(1) == 1 {
			<-ctx.Done()
		}
		return nil
	}}
	r := newTestRunner(t, List(slowOnce), WithRoundTimeout(50*time.Millisecond), WithDoneTimes(2))

	require.NoError(t, r.Check(context.Background(), instances("a")))

	p, _ := r.Progress("a")
	assert.Equal(t, int64(3), calls.Load(), "timed out round is not counted as done")
	assert.Equal(t, 2, p.Rounds())
	assert.False(t, r.Aborted())
}

func TestRunner_TimeoutResetsDoneCounter(t *testing.T) {
	var calls atomic.Int64
	// done, timeout, done, done
	c := &funcCheck{name: "flaky", fn: func(ctx context.Context, r *Round) error {
		if calls.Add(1) == 2 {
			<-ctx.Done()
		}
		return nil
	}}
	r := newTestRunner(t, List(c), WithRoundTimeout(50*time.Millisecond), WithDoneTimes(2))

	require.NoError(t, r.Check(context.Background(), instances("a")))
	assert.Equal(t, int64(4), calls.Load())
}

func TestRunner_FatalErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	var counts sync.Map
	c := &funcCheck{name: "fatal", fn: func(_ context.Context, r *Round) error {
		v, _ := counts.LoadOrStore(r.Instance().Name, new(atomic.Int64))
		round := v.(*atomic.Int64).Add(1)
		if r.Instance().Name == "a" && round == 3 {
			return boom
		}
		r.Error("Not yet", "")
		return nil
	}}
	r := newTestRunner(t, List(c), WithDelay(5*time.Millisecond))

	err := r.Check(context.Background(), instances("a", "b"))
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, r.AbortCause(), boom)
	assert.True(t, r.Aborted())
	assert.Equal(t, int64(3), count(&counts, "a"))

	p, _ := r.Progress("a")
	assert.Equal(t, 3, p.Rounds(), "the aborting round is recorded")
	assert.Equal(t, "boom", p.Current().Summary())

	// a round of b cancelled by the abort may still be finishing
	stopped := count(&counts, "b")
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, count(&counts, "b"), stopped+1, "no rounds after abort")
}

func TestRunner_FirstAbortCauseWins(t *testing.T) {
	r := newTestRunner(t, List(passing("a")))
	first, second := errors.New("first"), errors.New("second")
	r.Abort(first)
	r.Abort(second)
	r.Abort(nil)
	assert.Equal(t, first, r.AbortCause())
}

func TestRunner_PanicAborts(t *testing.T) {
	c := &funcCheck{name: "panicky", fn: func(context.Context, *Round) error {
		panic("unexpected")
	}}
	r := newTestRunner(t, List(c))

	err := r.Check(context.Background(), instances("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check panicked")
}

func TestRunner_EmptyDefinitionsAbort(t *testing.T) {
	r := newTestRunner(t, func(*instance.Instance) []Check { return nil })

	err := r.Check(context.Background(), instances("a"))
	assert.ErrorIs(t, err, ErrNoChecks)
}

func TestRunner_ContextCancelled(t *testing.T) {
	r := newTestRunner(t, List(failing("never", "Never done")), WithDelay(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Check(ctx, instances("a"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, r.Aborted())
}

// abortScenario runs instance a throwing on its first round while b passes
// and logs an info entry. a waits until b's round was recorded.
func abortScenario(t *testing.T, verbose bool) (error, *test.Hook) {
	t.Helper()
	boom := errors.New("illegal state")
	bRecorded := make(chan struct{})
	var once sync.Once

	c := &funcCheck{name: "custom", fn: func(ctx context.Context, r *Round) error {
		if r.Instance().Name == "b" {
			r.Info("Instance b is fine", "")
			return nil
		}
		select {
		case <-bRecorded:
		case <-ctx.Done():
		}
		return boom
	}}
	reporter := ReporterFunc(func(line string) {
		if strings.Contains(line, "b: passed") {
			once.Do(func() { close(bRecorded) })
		}
	})

	logger, hook := test.NewNullLogger()
	r, err := NewRunner(List(c), WithLogger(logger), WithVerbose(verbose), WithReporter(reporter))
	require.NoError(t, err)

	runErr := r.Check(context.Background(), instances("a", "b"))
	if verbose {
		require.ErrorIs(t, runErr, boom)
	}
	return runErr, hook
}

func messages(hook *test.Hook, level logrus.Level) []string {
	var result []string
	for _, e := range hook.AllEntries() {
		if e.Level == level {
			result = append(result, e.Message)
		}
	}
	return result
}

func TestRunner_AbortVerbose(t *testing.T) {
	err, hook := abortScenario(t, true)

	assert.Contains(t, err.Error(), "custom check failed on instance 'a'")
	assert.Contains(t, messages(hook, logrus.InfoLevel), "Instance b is fine", "logs are dumped on abort")
}

func TestRunner_AbortQuiet(t *testing.T) {
	err, hook := abortScenario(t, false)

	require.NoError(t, err)
	errs := messages(hook, logrus.ErrorLevel)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[len(errs)-1], "Instance checking aborted")
	assert.Contains(t, errs[len(errs)-1], "illegal state")
	assert.Contains(t, messages(hook, logrus.InfoLevel), "Instance b is fine")
}

func TestRunner_LogInstantly(t *testing.T) {
	logger, hook := test.NewNullLogger()
	c := &funcCheck{name: "info", fn: func(_ context.Context, r *Round) error {
		r.Info("Round logged", "")
		return nil
	}}
	r, err := NewRunner(List(c), WithLogger(logger), WithLogInstantly(true), WithDoneTimes(2))
	require.NoError(t, err)

	require.NoError(t, r.Check(context.Background(), instances("a")))

	logged := 0
	for _, m := range messages(hook, logrus.InfoLevel) {
		if m == "Round logged" {
			logged++
		}
	}
	assert.Equal(t, 2, logged)
}

func TestRunner_Reporter(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	reporter := ReporterFunc(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	})
	r := newTestRunner(t, List(passing("a")), WithReporter(reporter))

	require.NoError(t, r.Check(context.Background(), instances("b", "a")))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, lines)
	assert.Equal(t, "a: passed | b: passed", lines[len(lines)-1])
}

func TestRunner_WorkersBound(t *testing.T) {
	var running, peak atomic.Int64
	c := &funcCheck{name: "slow", fn: func(context.Context, *Round) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil
	}}
	r := newTestRunner(t, List(c), WithWorkers(1))

	require.NoError(t, r.Check(context.Background(), instances("a", "b", "c")))
	assert.Equal(t, int64(1), peak.Load())
}

func TestRunner_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	var counts sync.Map
	c := counting(&counts, func(round int64) bool { return round == 1 })
	r := newTestRunner(t, List(c), WithMetrics(m))

	require.NoError(t, r.Check(context.Background(), instances("a")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.rounds.WithLabelValues("a", ResultFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rounds.WithLabelValues("a", ResultDone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finished.WithLabelValues("a")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.aborts))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestRunner_SnapshotsAndRunningTime(t *testing.T) {
	r := newTestRunner(t, List(passing("a")))
	assert.Zero(t, r.RunningTime())

	require.NoError(t, r.Check(context.Background(), instances("b", "a")))

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "a", snaps[0].Instance)
	assert.Equal(t, "b", snaps[1].Instance)
	assert.True(t, snaps[0].Done)
	assert.True(t, snaps[0].Finished)

	took := r.RunningTime()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, took, r.RunningTime(), "running time freezes after the run")
}

func TestRunner_StuckCheckGivesWorkerBack(t *testing.T) {
	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })

	var calls atomic.Int64
	guarded := &funcCheck{name: "guarded", fn: func(context.Context, *Round) error {
		if calls.Add(1) == 1 {
			<-stuck
			return nil
		}
		return errors.New("guard reached")
	}}
	r := newTestRunner(t, List(guarded), WithRoundTimeout(50*time.Millisecond), WithWorkers(1))

	done := make(chan error, 1)
	go func() { done <- r.Check(context.Background(), instances("a")) }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "guard reached")
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return while a check ignored its context")
	}
	assert.Equal(t, int64(2), calls.Load())
}

func TestRunner_WaitingForWorkerTimesOut(t *testing.T) {
	pool := semaphore.NewWeighted(1)
	require.NoError(t, pool.Acquire(context.Background(), 1))
	r := newTestRunner(t, List(passing("a")), WithRoundTimeout(20*time.Millisecond))

	_, err := r.round(context.Background(), pool, NewProgress(testInstance("a")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "awaiting a worker")
}

func TestRunner_DuplicateInstanceNames(t *testing.T) {
	spy := &spyCheck{}
	r := newTestRunner(t, List(spy))

	err := r.Check(context.Background(), instances("a", "b", "a"))

	assert.ErrorIs(t, err, ErrDuplicateInstance)
	assert.Zero(t, spy.calls.Load())
}

func TestRunner_AbortFromOutside(t *testing.T) {
	r := newTestRunner(t, List(failing("a", "Not yet")), WithDelay(5*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- r.Check(context.Background(), instances("a")) }()

	require.Eventually(t, func() bool {
		p, ok := r.Progress("a")
		return ok && p.Rounds() > 0
	}, time.Second, time.Millisecond)
	cause := errors.New("stopped by operator")
	r.Abort(cause)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, cause)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after abort")
	}
}
