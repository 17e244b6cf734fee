package instance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Web console and Sling endpoints.
const (
	BundlesPath        = "/system/console/bundles"
	BundlesListJSON    = BundlesPath + ".json"
	ComponentsListJSON = "/system/console/components.json"
	EventsListJSON     = "/system/console/events.json"
	InstallerJSON      = "/system/sling/monitoring/mbeans/org/apache/sling/installer/Installer/Sling%20OSGi%20Installer.json"
	InstallerPauseJSON = "/system/sling/installer/jcr/pauseInstallation.1.json"
)

// HTTPClient implements Client over the instance's HTTP interface.
type HTTPClient struct {
	inst    *Instance
	base    *url.URL
	timeout time.Duration
	retries int
	client  *http.Client
	logger  *logrus.Logger
	auth    *authState
}

// Option is a functional option for configuring an HTTPClient.
type Option func(*HTTPClient) error

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithRetries sets how many times a failed request is repeated.
// Checks use zero; retrying is done by the runner at the round level.
func WithRetries(n int) Option {
	return func(c *HTTPClient) error {
		if n < 0 {
			return fmt.Errorf("retries must not be negative, got %d", n)
		}
		c.retries = n
		return nil
	}
}

// WithLogger sets the logger used for request debugging.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *HTTPClient) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithHTTPClient sets the underlying HTTP client. A copy is used, so the
// timeout set on it never leaks into hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// NewHTTPClient creates a client for the instance.
// A malformed instance URL is reported as a fatal error.
func NewHTTPClient(inst *Instance, opts ...Option) (*HTTPClient, error) {
	if inst == nil {
		return nil, fmt.Errorf("instance: client requires an instance")
	}
	base, err := url.Parse(strings.TrimSuffix(inst.URL, "/"))
	if err != nil || base.Host == "" {
		if err == nil {
			err = fmt.Errorf("missing host")
		}
		return nil, Fatal(fmt.Errorf("instance %s: invalid url %q: %w", inst.Name, inst.URL, err))
	}

	c := &HTTPClient{
		inst:    inst,
		base:    base,
		timeout: DefaultTimeout,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("instance: %w", err)
		}
	}

	hc := http.Client{}
	if c.client != nil {
		hc = *c.client
	}
	hc.Timeout = c.timeout
	c.client = &hc
	c.auth = sharedAuth(inst)

	return c, nil
}

// NewClient is a ClientFactory creating HTTP clients.
func NewClient(inst *Instance, opts ...Option) (Client, error) {
	return NewHTTPClient(inst, opts...)
}

// Timeout returns the request timeout.
func (c *HTTPClient) Timeout() time.Duration { return c.timeout }

// Retries returns how many times a failed request is repeated.
func (c *HTTPClient) Retries() int { return c.retries }

// BundleState lists bundles.
func (c *HTTPClient) BundleState(ctx context.Context) (*BundleState, error) {
	c.logger.Debugf("Asking for OSGi bundles on %s", c.inst)
	var state BundleState
	if err := c.getJSON(ctx, BundlesListJSON, &state); err != nil {
		return nil, fmt.Errorf("cannot request OSGi bundles state on %s: %w", c.inst, err)
	}
	return &state, nil
}

// ComponentState lists components.
func (c *HTTPClient) ComponentState(ctx context.Context) (*ComponentState, error) {
	c.logger.Debugf("Asking for OSGi components on %s", c.inst)
	var state ComponentState
	if err := c.getJSON(ctx, ComponentsListJSON, &state); err != nil {
		return nil, fmt.Errorf("cannot request OSGi components state on %s: %w", c.inst, err)
	}
	return &state, nil
}

// EventState lists recent events.
func (c *HTTPClient) EventState(ctx context.Context) (*EventState, error) {
	c.logger.Debugf("Asking for OSGi events on %s", c.inst)
	var state EventState
	if err := c.getJSON(ctx, EventsListJSON, &state); err != nil {
		return nil, fmt.Errorf("cannot request OSGi events state on %s: %w", c.inst, err)
	}
	return &state, nil
}

// InstallerState reads the installer MBean and the pause installation node.
func (c *HTTPClient) InstallerState(ctx context.Context) (*InstallerState, error) {
	c.logger.Debugf("Asking for Sling installer state on %s", c.inst)
	state := InstallerState{InstalledResourceCount: -1}
	if err := c.getJSON(ctx, InstallerJSON, &state); err != nil {
		return nil, fmt.Errorf("cannot request Sling installer state on %s: %w", c.inst, err)
	}

	var node map[string]any
	err := c.getJSON(ctx, InstallerPauseJSON, &node)
	var se *StatusError
	switch {
	case errors.As(err, &se) && se.Code == http.StatusNotFound:
		state.Paused = false
	case err != nil:
		return nil, fmt.Errorf("cannot request Sling installer pause state on %s: %w", c.inst, err)
	default:
		state.Paused = hasChildNodes(node)
	}
	return &state, nil
}

// StartBundle starts the bundle with the given symbolic name.
func (c *HTTPClient) StartBundle(ctx context.Context, symbolicName string) error {
	c.logger.Infof("Starting OSGi bundle '%s' on %s", symbolicName, c.inst)
	form := url.Values{"action": {"start"}}
	path := BundlesPath + "/" + url.PathEscape(symbolicName)
	resp, err := c.do(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return fmt.Errorf("cannot start OSGi bundle '%s' on %s: %w", symbolicName, c.inst, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}

// ControlPort inspects the control port marker of local instances.
func (c *HTTPClient) ControlPort() (ControlPort, error) {
	path := c.inst.ControlPortFile()
	if path == "" {
		return ControlPort{}, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return ControlPort{}, nil
	}
	if err != nil {
		return ControlPort{}, fmt.Errorf("cannot inspect control port of %s: %w", c.inst, err)
	}
	return ControlPort{Exists: true, ModTime: info.ModTime()}, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("malformed response of %s: %w", path, err)
	}
	return nil
}

// do performs a request, repeating it on transport errors up to the
// configured retries and switching credentials on 401 for fresh local instances.
func (c *HTTPClient) do(ctx context.Context, method, path string, body io.ReadSeeker, contentType string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if body != nil {
			if _, err := body.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
		if err != nil {
			return nil, Fatal(fmt.Errorf("failed to create request for %s: %w", path, err))
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		user, password := c.auth.credentials(c.inst)
		req.SetBasicAuth(user, password)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request to %s failed: %w", path, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			c.auth.toggle(c.inst, c.logger)
		}
		if resp.StatusCode >= 300 {
			resp.Body.Close()
			lastErr = &StatusError{Path: path, Code: resp.StatusCode}
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// hasChildNodes reports whether a JCR node rendering carries child nodes.
func hasChildNodes(node map[string]any) bool {
	for key, value := range node {
		if strings.HasPrefix(key, "jcr:") {
			continue
		}
		if _, ok := value.(map[string]any); ok {
			return true
		}
	}
	return false
}
