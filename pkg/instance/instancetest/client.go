// Package instancetest provides an in-memory instance.Client for tests.
package instancetest

import (
	"context"
	"io"
	"sync"

	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/sirupsen/logrus"
)

// Client is an instance.Client serving canned states. Zero fields yield
// empty states; the Err fields are returned instead when set.
type Client struct {
	mu sync.Mutex

	Bundles      *instance.BundleState
	BundlesErr   error
	Components   *instance.ComponentState
	ComponentErr error
	Events       *instance.EventState
	EventsErr    error
	Installer    *instance.InstallerState
	InstallerErr error
	Port         instance.ControlPort
	PortErr      error
	StartErr     error

	// Started records the symbolic names passed to StartBundle.
	Started []string

	// Options records the options of every client creation.
	Options [][]instance.Option
}

// Factory returns a ClientFactory handing out c for every instance.
func (c *Client) Factory() instance.ClientFactory {
	return func(_ *instance.Instance, opts ...instance.Option) (instance.Client, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.Options = append(c.Options, opts)
		return c, nil
	}
}

func (c *Client) BundleState(ctx context.Context) (*instance.BundleState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.BundlesErr != nil {
		return nil, c.BundlesErr
	}
	if c.Bundles == nil {
		return &instance.BundleState{}, nil
	}
	return c.Bundles, nil
}

func (c *Client) ComponentState(ctx context.Context) (*instance.ComponentState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ComponentErr != nil {
		return nil, c.ComponentErr
	}
	if c.Components == nil {
		return &instance.ComponentState{}, nil
	}
	return c.Components, nil
}

func (c *Client) EventState(ctx context.Context) (*instance.EventState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.EventsErr != nil {
		return nil, c.EventsErr
	}
	if c.Events == nil {
		return &instance.EventState{}, nil
	}
	return c.Events, nil
}

func (c *Client) InstallerState(ctx context.Context) (*instance.InstallerState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.InstallerErr != nil {
		return nil, c.InstallerErr
	}
	if c.Installer == nil {
		return &instance.InstallerState{InstalledResourceCount: -1}, nil
	}
	return c.Installer, nil
}

func (c *Client) StartBundle(ctx context.Context, symbolicName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Started = append(c.Started, symbolicName)
	return c.StartErr
}

func (c *Client) ControlPort() (instance.ControlPort, error) {
	return c.Port, c.PortErr
}

// StartedBundles returns a copy of the started symbolic names.
func (c *Client) StartedBundles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Started...)
}

// Bundle returns a bundle in the given raw state.
func Bundle(symbolicName string, stateRaw int) instance.Bundle {
	return instance.Bundle{SymbolicName: symbolicName, Name: symbolicName, StateRaw: stateRaw}
}

// BundleState returns a listing of bundles with stats computed from them.
func BundleState(bundles ...instance.Bundle) *instance.BundleState {
	stats := make([]int, 5)
	stats[0] = len(bundles)
	for _, b := range bundles {
		switch {
		case b.StateRaw == instance.BundleActive:
			stats[1]++
		case b.Fragment && b.StateRaw == instance.BundleResolved:
			stats[2]++
		case b.StateRaw == instance.BundleResolved:
			stats[3]++
		case b.StateRaw == instance.BundleInstalled:
			stats[4]++
		}
	}
	return &instance.BundleState{Status: "ok", Stats: stats, Bundles: bundles}
}

// Instance returns a validated remote instance for tests.
func Instance(name string) *instance.Instance {
	inst := &instance.Instance{Name: name, URL: "http://localhost:4502"}
	inst.ApplyDefaults()
	return inst
}

// Logger returns a logger discarding everything.
func Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Stable returns a client reporting a fully started, idle instance.
func Stable() *Client {
	return &Client{
		Bundles: BundleState(
			Bundle("org.apache.felix.framework", instance.BundleActive),
			Bundle("org.apache.sling.installer.core", instance.BundleActive),
		),
		Components: &instance.ComponentState{
			Total: 2,
			Components: []instance.Component{
				{ID: "1", PID: "org.apache.sling.installer.core.impl.OsgiInstallerImpl", State: "active", StateRaw: instance.ComponentActive},
				{ID: "2", PID: "com.day.crx.packaging.impl.J2EEPackageManager", State: "active", StateRaw: instance.ComponentActive},
			},
		},
		Events: &instance.EventState{
			Status: "ok",
			Events: []instance.Event{
				{ID: "1", Topic: "org/osgi/framework/BundleEvent/STARTED", Info: "org.apache.felix.framework"},
			},
		},
		Installer: &instance.InstallerState{},
	}
}
