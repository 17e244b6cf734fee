// Package action runs a Preset of checks against a set of instances,
// reporting progress while the runner polls them.
package action

import (
	"context"
	"fmt"

	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/sirupsen/logrus"
)

// Action polls instances with the checks of a preset.
type Action struct {
	preset   *Preset
	runner   *check.Runner
	reporter Reporter
	logger   *logrus.Logger
}

type settings struct {
	reporter Reporter
	logger   *logrus.Logger
	runner   []check.RunnerOption
}

// Option is a functional option for configuring an Action.
type Option func(*settings) error

// WithReporter sets the progress reporter.
func WithReporter(rep Reporter) Option {
	return func(s *settings) error {
		s.reporter = rep
		return nil
	}
}

// WithLogger sets the logger used by the action and its runner.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithRunnerOptions appends runner options, overriding the preset settings.
func WithRunnerOptions(opts ...check.RunnerOption) Option {
	return func(s *settings) error {
		s.runner = append(s.runner, opts...)
		return nil
	}
}

// New builds the preset checks with reg and prepares a runner for them.
func New(p *Preset, reg *check.Registry, opts ...Option) (*Action, error) {
	s := settings{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, fmt.Errorf("action: %w", err)
		}
	}

	defs, err := p.Definitions(reg)
	if err != nil {
		return nil, fmt.Errorf("action: %w", err)
	}

	runnerOpts := append(p.RunnerOptions(), check.WithLogger(s.logger))
	if s.reporter != nil {
		runnerOpts = append(runnerOpts, check.WithReporter(s.reporter))
	}
	runnerOpts = append(runnerOpts, s.runner...)

	runner, err := check.NewRunner(defs, runnerOpts...)
	if err != nil {
		return nil, fmt.Errorf("action: %w", err)
	}

	return &Action{
		preset:   p,
		runner:   runner,
		reporter: s.reporter,
		logger:   s.logger,
	}, nil
}

// Runner returns the runner polling the instances.
func (a *Action) Runner() *check.Runner {
	return a.runner
}

// Perform polls instances until they are stable or the run aborts.
func (a *Action) Perform(ctx context.Context, instances []*instance.Instance) error {
	if len(instances) == 0 {
		a.logger.Infof("No instances to %s.", a.preset.Purpose)
		return nil
	}

	a.logger.Infof("%s: %s", a.preset.Title, instance.Names(instances))

	if a.reporter != nil {
		a.reporter.Start()
		defer a.reporter.Finish()
	}
	return a.runner.Check(ctx, instances)
}
