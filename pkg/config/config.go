// Package config loads the aemawait YAML configuration: the instances to
// await, runner settings, per-check overrides of the await presets and the
// check list of the check command.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/ryanuber/go-glob"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "aemawait.yaml"

// ErrNoInstances is returned when a filter selects no instance.
var ErrNoInstances = errors.New("no instances selected")

// Runner overrides the runner settings of a preset. Nil fields keep the
// preset value.
type Runner struct {
	Delay        *time.Duration `mapstructure:"delay"`
	RoundTimeout time.Duration  `mapstructure:"roundTimeout"`
	DoneTimes    int            `mapstructure:"doneTimes"`
	Verbose      *bool          `mapstructure:"verbose"`
	LogInstantly bool           `mapstructure:"logInstantly"`
	Workers      int            `mapstructure:"workers"`
}

// Options returns runner options for the configured fields.
func (r Runner) Options() []check.RunnerOption {
	var opts []check.RunnerOption
	if r.Delay != nil {
		opts = append(opts, check.WithDelay(*r.Delay))
	}
	if r.RoundTimeout != 0 {
		opts = append(opts, check.WithRoundTimeout(r.RoundTimeout))
	}
	if r.DoneTimes != 0 {
		opts = append(opts, check.WithDoneTimes(r.DoneTimes))
	}
	if r.Verbose != nil {
		opts = append(opts, check.WithVerbose(*r.Verbose))
	}
	if r.LogInstantly {
		opts = append(opts, check.WithLogInstantly(true))
	}
	if r.Workers != 0 {
		opts = append(opts, check.WithWorkers(r.Workers))
	}
	return opts
}

// Server configures the status endpoint.
type Server struct {
	// Listen is the address of the status endpoint; empty disables it.
	Listen string `mapstructure:"listen"`
}

// Config is the top-level configuration.
type Config struct {
	Instances []*instance.Instance `mapstructure:"instances"`
	Runner    Runner               `mapstructure:"runner"`

	// AwaitUp and AwaitDown hold per-check-type overrides of the presets,
	// e.g. awaitUp.bundles.symbolicNamesIgnored.
	AwaitUp   map[string]map[string]any `mapstructure:"awaitUp"`
	AwaitDown map[string]map[string]any `mapstructure:"awaitDown"`

	// Checks is the ordered check list of the check command.
	Checks []map[string]any `mapstructure:"checks"`

	// NoPackageDeploy relaxes awaiting up for instances started without deployments.
	NoPackageDeploy bool `mapstructure:"noPackageDeploy"`

	Server Server `mapstructure:"server"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return cfg, nil
}

// Parse decodes and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}

	cfg := &Config{}
	if err := check.Decode(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	for _, inst := range cfg.Instances {
		if inst != nil {
			inst.ApplyDefaults()
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate reports invalid instances and duplicate instance names.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Instances))
	var errs []error
	for i, inst := range c.Instances {
		if inst == nil {
			errs = append(errs, fmt.Errorf("instance #%d is empty", i+1))
			continue
		}
		if err := inst.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[inst.Name] {
			errs = append(errs, fmt.Errorf("instance %s: duplicate name", inst.Name))
		}
		seen[inst.Name] = true
	}
	for i, chk := range c.Checks {
		if typ, ok := chk[check.KeyType].(string); !ok || typ == "" {
			errs = append(errs, fmt.Errorf("check #%d: missing %q", i+1, check.KeyType))
		}
	}
	return errors.Join(errs...)
}

// Select returns the instances whose names match any of the wildcard
// patterns, in configuration order. No patterns select every instance.
func (c *Config) Select(patterns ...string) ([]*instance.Instance, error) {
	if len(patterns) == 0 {
		return slices.Clone(c.Instances), nil
	}
	var selected []*instance.Instance
	for _, inst := range c.Instances {
		if slices.ContainsFunc(patterns, func(p string) bool { return glob.Glob(p, inst.Name) }) {
			selected = append(selected, inst)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w by %v", ErrNoInstances, patterns)
	}
	return selected, nil
}
