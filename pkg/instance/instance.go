// Package instance describes the application server instances being awaited
// and the remote-state client used by checks to query them.
//
// An Instance is a plain description (URL, credentials, local directory).
// All remote state is obtained through the Client interface; HTTPClient is
// the implementation talking to the Apache Felix web console and the Sling
// installer monitoring endpoints.
package instance

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// UserDefault is the user a fresh local instance is initialized with.
	UserDefault = "admin"

	// PasswordDefault is the password a fresh local instance is initialized with.
	PasswordDefault = "admin"

	// EnvLocal is the environment name assigned to local instances without one.
	EnvLocal = "local"
)

// Instance represents the configuration of a single server instance.
type Instance struct {
	Name     string `json:"name,omitempty" yaml:"name" mapstructure:"name"`
	URL      string `json:"url" yaml:"url" mapstructure:"url"`
	User     string `json:"user,omitempty" yaml:"user" mapstructure:"user"`
	Password string `json:"-" yaml:"password" mapstructure:"password"`
	Env      string `json:"env,omitempty" yaml:"env" mapstructure:"env"`
	ID       string `json:"id,omitempty" yaml:"id" mapstructure:"id"`

	// Local marks instances managed on this machine. Only those have a
	// quickstart directory whose control port marker can be inspected.
	Local bool   `json:"local,omitempty" yaml:"local" mapstructure:"local"`
	Dir   string `json:"dir,omitempty" yaml:"dir" mapstructure:"dir"`

	// Initialized is false for local instances that were just created and
	// may still run with default credentials.
	Initialized bool `json:"initialized,omitempty" yaml:"initialized" mapstructure:"initialized"`

	// Zone is the time zone the instance reports event times in.
	Zone *time.Location `json:"-" yaml:"-" mapstructure:"-"`
}

// ApplyDefaults fills in values derived from the URL and environment.
func (i *Instance) ApplyDefaults() {
	if i.Env == "" && i.Local {
		i.Env = EnvLocal
	}
	if i.ID == "" {
		if u, err := url.Parse(i.URL); err == nil && u.Port() != "" {
			i.ID = u.Port()
		}
	}
	if i.Name == "" {
		i.Name = strings.Trim(i.Env+"-"+i.ID, "-")
	}
	if i.User == "" {
		i.User = UserDefault
	}
	if i.Password == "" {
		i.Password = PasswordDefault
	}
	if i.Zone == nil {
		i.Zone = time.Local
	}
}

// Validate reports configuration problems that would prevent any check from running.
func (i *Instance) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("instance: name must not be empty")
	}
	if i.URL == "" {
		return fmt.Errorf("instance %s: url must not be empty", i.Name)
	}
	u, err := url.Parse(i.URL)
	if err != nil {
		return fmt.Errorf("instance %s: invalid url %q: %w", i.Name, i.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("instance %s: url %q must use http or https", i.Name, i.URL)
	}
	if i.Local && i.Dir == "" {
		return fmt.Errorf("instance %s: local instance requires dir", i.Name)
	}
	return nil
}

// Hostname returns the host part of the instance URL.
func (i *Instance) Hostname() string {
	u, err := url.Parse(i.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ControlPortFile returns the path of the marker file a running local
// instance keeps open. Empty for remote instances.
func (i *Instance) ControlPortFile() string {
	if !i.Local || i.Dir == "" {
		return ""
	}
	return filepath.Join(i.Dir, "crx-quickstart", "conf", "controlport")
}

func (i *Instance) String() string {
	return fmt.Sprintf("instance '%s' (%s)", i.Name, i.URL)
}

// Names joins instance names for log messages.
func Names(instances []*Instance) string {
	names := make([]string, 0, len(instances))
	for _, i := range instances {
		names = append(names, i.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
