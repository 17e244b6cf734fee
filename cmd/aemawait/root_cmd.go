package main

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/kylerisse/aemawait/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvVariableConfig names the config file when --config is not given.
const EnvVariableConfig = "AEMAWAIT_CONFIG"

type rootOpts struct {
	ConfigFile string
	Debug      bool
	LogFile    string
	Listen     string

	config  *config.Config
	logger  *logrus.Logger
	stdout  io.Writer
	stderr  io.Writer
	closers []io.Closer
}

func newRoot() *rootOpts {
	return &rootOpts{stdout: os.Stdout, stderr: os.Stderr}
}

var rootLongHelp = strings.TrimSpace(`
aemawait waits until AEM instances are stable.

Workflow:
  aemawait up                  # Await all configured instances fully started.
  aemawait up 'local-*'        # Await matching instances only.
  aemawait down --delay 1s     # Await stopped local instances.
  aemawait check               # Poll the checks listed in the config file.
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "aemawait",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
		PersistentPostRun: opts.PersistentPostRun,
	}
	cmd.SetOut(opts.stdout)
	cmd.SetErr(opts.stderr)

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", config.DefaultFile,
		"configuration file; you can also set the environment variable "+EnvVariableConfig)
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "log debug details")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "also write logs to this rotated file")
	cmd.PersistentFlags().StringVar(&opts.Listen, "listen", "", "serve status and metrics on this address, e.g. :9090")

	cmd.AddCommand(
		newAwait(opts, upPreset).Command(),
		newAwait(opts, downPreset).Command(),
		newAwait(opts, checkPreset).Command(),
	)
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	opts.logger = opts.newLogger()

	path := os.Getenv(EnvVariableConfig)
	if cmd.Flags().Changed("config") || path == "" {
		path = opts.ConfigFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") && os.Getenv(EnvVariableConfig) == "" {
			opts.logger.Debugf("No config file %s, nothing configured", path)
			opts.config = &config.Config{}
			return nil
		}
		return newConfigError(err)
	}
	opts.config = cfg
	if opts.Listen == "" {
		opts.Listen = cfg.Server.Listen
	}
	return nil
}

func (opts *rootOpts) PersistentPostRun(*cobra.Command, []string) {
	for _, c := range opts.closers {
		c.Close() //nolint:errcheck
	}
}

func (opts *rootOpts) newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(opts.stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	if opts.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		opts.closers = append(opts.closers, file)
		logger.SetOutput(io.MultiWriter(opts.stderr, file))
	}
	return logger
}
