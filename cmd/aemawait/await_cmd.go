package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kylerisse/aemawait/pkg/action"
	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/kylerisse/aemawait/pkg/check/builtin"
	"github.com/kylerisse/aemawait/pkg/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

type presetKind int

const (
	upPreset presetKind = iota
	downPreset
	checkPreset
)

var presetHelp = map[presetKind][2]string{
	upPreset:    {"up", "Await instances up and stable."},
	downPreset:  {"down", "Await local instances stopped."},
	checkPreset: {"check", "Poll instances with the checks of the config file."},
}

type awaitOpts struct {
	*rootOpts
	kind presetKind

	Delay           time.Duration
	DoneTimes       int
	RoundTimeout    time.Duration
	Quiet           bool
	LogInstantly    bool
	NoProgress      bool
	NoPackageDeploy bool
}

func newAwait(parent *rootOpts, kind presetKind) *awaitOpts {
	return &awaitOpts{rootOpts: parent, kind: kind}
}

func (opts *awaitOpts) Command() *cobra.Command {
	help := presetHelp[opts.kind]
	cmd := &cobra.Command{
		Use:   help[0] + " [instance-pattern...]",
		Short: help[1],
		RunE:  opts.RunE,
	}
	cmd.Flags().DurationVar(&opts.Delay, "delay", 0, "pause between rounds of one instance (default from preset)")
	cmd.Flags().IntVar(&opts.DoneTimes, "done-times", 0, "consecutive done rounds required (default from preset)")
	cmd.Flags().DurationVar(&opts.RoundTimeout, "round-timeout", 0, "bound of a single round (default 30s)")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "log an abort instead of failing")
	cmd.Flags().BoolVar(&opts.LogInstantly, "log-instantly", false, "log check entries after every round")
	cmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "log progress lines instead of drawing a bar")
	if opts.kind == upPreset {
		cmd.Flags().BoolVar(&opts.NoPackageDeploy, "no-package-deploy", false, "instances were started without package deployments")
	}
	return cmd
}

func (opts *awaitOpts) preset() (*action.Preset, error) {
	cfg := opts.config
	switch opts.kind {
	case upPreset:
		p := action.AwaitUp()
		if opts.NoPackageDeploy || cfg.NoPackageDeploy {
			p = p.NoPackageDeploy()
		}
		return p, p.Configure(cfg.AwaitUp)
	case downPreset:
		p := action.AwaitDown()
		return p, p.Configure(cfg.AwaitDown)
	default:
		if len(cfg.Checks) == 0 {
			return nil, fmt.Errorf("no checks configured")
		}
		return action.Checks(cfg.Checks), nil
	}
}

// runnerOptions layers config file settings under command line flags.
func (opts *awaitOpts) runnerOptions(cmd *cobra.Command) []check.RunnerOption {
	ropts := opts.config.Runner.Options()
	if cmd.Flags().Changed("delay") {
		ropts = append(ropts, check.WithDelay(opts.Delay))
	}
	if cmd.Flags().Changed("done-times") {
		ropts = append(ropts, check.WithDoneTimes(opts.DoneTimes))
	}
	if cmd.Flags().Changed("round-timeout") {
		ropts = append(ropts, check.WithRoundTimeout(opts.RoundTimeout))
	}
	if opts.Quiet {
		ropts = append(ropts, check.WithVerbose(false))
	}
	if opts.LogInstantly {
		ropts = append(ropts, check.WithLogInstantly(true))
	}
	return ropts
}

func (opts *awaitOpts) reporter() action.Reporter {
	if opts.NoProgress {
		return action.NewLogReporter(opts.logger, action.DefaultLogInterval)
	}
	return action.NewBarReporter(opts.stderr)
}

func (opts *awaitOpts) RunE(cmd *cobra.Command, args []string) error {
	instances, err := opts.config.Select(args...)
	if err != nil {
		return newConfigError(err)
	}
	preset, err := opts.preset()
	if err != nil {
		return newConfigError(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics, err := check.NewMetrics(reg)
	if err != nil {
		return err
	}

	act, err := action.New(preset, builtin.NewRegistry(),
		action.WithLogger(opts.logger),
		action.WithReporter(opts.reporter()),
		action.WithRunnerOptions(append(opts.runnerOptions(cmd), check.WithMetrics(metrics))...),
	)
	if err != nil {
		return newConfigError(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Listen != "" {
		srv, err := server.New(act.Runner(), server.WithLogger(opts.logger), server.WithGatherer(reg))
		if err != nil {
			return err
		}
		if err := srv.Start(opts.Listen); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()
	}

	if err := act.Perform(ctx, instances); err != nil {
		opts.logger.Error(err)
		return err
	}
	if summary := act.Runner().Summary(); summary != "" {
		fmt.Fprintln(cmd.OutOrStdout(), summary)
	}
	return nil
}
