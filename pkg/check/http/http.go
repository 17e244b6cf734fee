package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "http"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultPath is requested when no paths are configured.
	DefaultPath = "/libs/granite/core/content/login.html"

	// DefaultStatus is the expected response code.
	DefaultStatus = http.StatusOK
)

// Check implements check.Check using HTTP GET requests to one or more paths
// of the instance.
type Check struct {
	paths       []string
	status      int
	timeout     time.Duration
	skipVerify  bool
	credentials bool
	client      *http.Client
}

// Option is a functional option for configuring an HTTP Check.
type Option func(*Check) error

// WithPaths sets the paths requested relative to the instance URL.
func WithPaths(paths ...string) Option {
	return func(c *Check) error {
		if len(paths) == 0 {
			return fmt.Errorf("at least one path is required")
		}
		for _, p := range paths {
			if !strings.HasPrefix(p, "/") {
				return fmt.Errorf("path %q must start with /", p)
			}
		}
		c.paths = paths
		return nil
	}
}

// WithStatus sets the expected response code.
func WithStatus(code int) Option {
	return func(c *Check) error {
		if code < 100 || code > 599 {
			return fmt.Errorf("invalid status %d", code)
		}
		c.status = code
		return nil
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithSkipVerify sets whether to skip TLS certificate verification.
func WithSkipVerify(skip bool) Option {
	return func(c *Check) error {
		c.skipVerify = skip
		return nil
	}
}

// WithCredentials sends the instance credentials using basic auth.
func WithCredentials(send bool) Option {
	return func(c *Check) error {
		c.credentials = send
		return nil
	}
}

// New creates an HTTP Check.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		paths:      []string{DefaultPath},
		status:     DefaultStatus,
		timeout:    DefaultTimeout,
		skipVerify: true,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("http: %w", err)
		}
	}

	c.client = &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: c.skipVerify},
		},
	}

	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run requests every configured path. The check fails unless ALL paths
// answer with the expected status. Response codes are contributed to the
// fingerprint; response times are logged at debug level.
func (c *Check) Run(ctx context.Context, r *check.Round) error {
	inst := r.Instance()
	base := strings.TrimRight(inst.URL, "/")
	codes := make([]int, len(c.paths))

	for i, path := range c.paths {
		url := base + path

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request for %s: %w", url, err)
		}
		if c.credentials {
			req.SetBasicAuth(inst.User, inst.Password)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		elapsed := time.Since(start)
		if err != nil {
			r.Error("HTTP unavailable", fmt.Sprintf("Request to %s failed: %v", url, err))
			continue
		}
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()

		codes[i] = resp.StatusCode
		r.Logger().Debugf("Request to %s answered %d in %s", url, resp.StatusCode, check.Duration(elapsed))
		if resp.StatusCode != c.status {
			r.Error(fmt.Sprintf("HTTP status (%d)", resp.StatusCode),
				fmt.Sprintf("Request to %s answered %d, expected %d", url, resp.StatusCode, c.status))
		}
	}

	r.State(codes)
	return nil
}

type config struct {
	Paths       []string      `mapstructure:"paths"`
	Status      int           `mapstructure:"status"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SkipVerify  *bool         `mapstructure:"skipVerify"`
	Credentials bool          `mapstructure:"credentials"`
}

// Factory creates an HTTP Check from a config map.
//
// Optional keys:
//   - "paths" (list of strings) paths below the instance URL, default the login page
//   - "status" (int) expected response code, default 200
//   - "timeout" (string) duration string (e.g. "10s")
//   - "skipVerify" (bool) skip TLS cert verification (default: true)
//   - "credentials" (bool) send the instance credentials (default: false)
func Factory(cfg map[string]any) (check.Check, error) {
	var conf config
	if err := check.Decode(cfg, &conf); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}

	var opts []Option
	if conf.Paths != nil {
		opts = append(opts, WithPaths(conf.Paths...))
	}
	if conf.Status != 0 {
		opts = append(opts, WithStatus(conf.Status))
	}
	if conf.Timeout != 0 {
		opts = append(opts, WithTimeout(conf.Timeout))
	}
	if conf.SkipVerify != nil {
		opts = append(opts, WithSkipVerify(*conf.SkipVerify))
	}
	if conf.Credentials {
		opts = append(opts, WithCredentials(true))
	}
	return New(opts...)
}
