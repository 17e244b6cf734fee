package help

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/kylerisse/aemawait/pkg/check/checktest"
	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/kylerisse/aemawait/pkg/instance/instancetest"
	"github.com/sirupsen/logrus"
)

func stuckEnv() *checktest.Env {
	fragment := instancetest.Bundle("org.example.fragment", instance.BundleResolved)
	fragment.Fragment = true
	env := checktest.NewEnv()
	env.Client.Bundles = instancetest.BundleState(
		instancetest.Bundle("org.example.active", instance.BundleActive),
		instancetest.Bundle("org.example.installed", instance.BundleInstalled),
		instancetest.Bundle("org.example.resolved", instance.BundleResolved),
		fragment,
	)
	return env
}

func newCheck(t *testing.T, opts ...Option) *Check {
	t.Helper()
	chk, err := New(append([]Option{WithBundleStartDelay(0)}, opts...)...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return chk
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero state time", WithStateTime(0)},
		{"negative retry", WithBundleStartRetry(-1)},
		{"negative delay", WithBundleStartDelay(-time.Second)},
		{"zero parallel", WithParallel(0)},
		{"zero timeout", WithTimeout(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRun_TooEarly(t *testing.T) {
	env := stuckEnv()
	env.Clock.Advance(time.Minute)

	res, err := env.Run(newCheck(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || len(res.Entries) != 0 {
		t.Errorf("expected silent pass, got %+v", res)
	}
	if len(env.Client.StartedBundles()) != 0 {
		t.Errorf("nothing should be started yet, got %v", env.Client.StartedBundles())
	}
}

func TestRun_StartsStuckBundles(t *testing.T) {
	env := stuckEnv()
	env.Clock.Advance(DefaultStateTime)

	res, err := env.Run(newCheck(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Errorf("help never fails, got %q", res.Status)
	}
	if res.Status != "Bundles started (2)" {
		t.Errorf("unexpected status %q", res.Status)
	}

	started := env.Client.StartedBundles()
	slices.Sort(started)
	want := []string{"org.example.installed", "org.example.resolved"}
	if !slices.Equal(started, want) {
		t.Errorf("expected %v started, got %v", want, started)
	}
}

func TestRun_OncePerInstance(t *testing.T) {
	env := stuckEnv()
	env.Clock.Advance(DefaultStateTime)
	chk := newCheck(t)

	env.Run(chk)
	env.Run(chk)

	if n := len(env.Client.StartedBundles()); n != 2 {
		t.Errorf("expected 2 starts over both rounds, got %d", n)
	}
	if _, ok := env.Progress.Data(DataKey); !ok {
		t.Error("expected progress to remember the help")
	}
}

func TestRun_StartStates(t *testing.T) {
	env := stuckEnv()
	env.Clock.Advance(DefaultStateTime)

	env.Run(newCheck(t, WithBundleStartStates("installed")))

	if started := env.Client.StartedBundles(); !slices.Equal(started, []string{"org.example.installed"}) {
		t.Errorf("unexpected starts %v", started)
	}
}

func TestRun_StartFailuresWarn(t *testing.T) {
	env := stuckEnv()
	env.Clock.Advance(DefaultStateTime)
	env.Client.StartErr = errors.New("boom")

	res, err := env.Run(newCheck(t, WithBundleStartRetry(2)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Errorf("start failures only warn, got %q", res.Status)
	}
	if n := len(env.Client.StartedBundles()); n != 6 {
		t.Errorf("expected 3 attempts per bundle, got %d", n)
	}

	var warned bool
	for _, e := range res.Entries {
		if e.Level == logrus.WarnLevel && e.Summary == "Bundles not started (2)" {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected warning entry, got %+v", res.Entries)
	}
}

func TestRun_BundleStateError(t *testing.T) {
	env := stuckEnv()
	env.Clock.Advance(DefaultStateTime)
	env.Client.BundlesErr = errors.New("connection refused")

	res, err := env.Run(newCheck(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Status != "Help skipped" {
		t.Errorf("unexpected result %v %q", res.Success, res.Status)
	}
}

func TestRun_NothingToStart(t *testing.T) {
	env := checktest.NewEnv()
	env.Client.Bundles = instancetest.BundleState(
		instancetest.Bundle("org.example.active", instance.BundleActive),
	)
	env.Clock.Advance(DefaultStateTime)

	res, _ := env.Run(newCheck(t))
	if !res.Success || len(env.Client.StartedBundles()) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestStart_CancelledDuringRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chk := newCheck(t, WithBundleStartDelay(time.Hour))
	client := &instancetest.Client{StartErr: errors.New("boom")}

	if err := chk.start(ctx, client, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFactory(t *testing.T) {
	chk, err := Factory(map[string]any{
		"stateTime":         "1m",
		"bundleStartStates": "installed",
		"bundleStartRetry":  0,
		"bundleStartDelay":  "0s",
		"parallel":          2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := chk.(*Check)
	if c.stateTime != time.Minute || c.retry != 0 || c.delay != 0 || c.parallel != 2 {
		t.Errorf("unexpected config %+v", c)
	}
	if !slices.Equal(c.startStates, []string{"installed"}) {
		t.Errorf("unexpected start states %v", c.startStates)
	}

	if _, err := Factory(map[string]any{"bogus": true}); err == nil {
		t.Error("expected error for unknown key")
	}
}
