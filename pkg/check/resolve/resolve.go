// Package resolve implements a check that the instance host name resolves
// against a specific DNS server. Freshly provisioned hosts often answer on
// their IP long before their name is published, so awaiting an instance by
// name starts with this check. Supported record types are A and AAAA; IP
// literals and localhost always pass.
package resolve

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/miekg/dns"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "resolve"

	// DefaultTimeout is the default DNS query timeout.
	DefaultTimeout = 3 * time.Second

	// DefaultServer is queried when no server is configured and the system
	// resolver configuration cannot be read.
	DefaultServer = "127.0.0.1:53"

	// ResolvConf is the system resolver configuration.
	ResolvConf = "/etc/resolv.conf"
)

// Check implements check.Check using DNS queries to a specific server.
type Check struct {
	server  string // host:port of the DNS server
	timeout time.Duration
	qtypes  []uint16
	expect  []string
	client  *dns.Client
}

// Option is a functional option for configuring a resolve Check.
type Option func(*Check) error

// WithServer sets the DNS server. Port 53 is assumed when omitted.
func WithServer(server string) Option {
	return func(c *Check) error {
		if server == "" {
			return fmt.Errorf("server must not be empty")
		}
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		c.server = server
		return nil
	}
}

// WithTypes sets the queried record types.
func WithTypes(types ...string) Option {
	return func(c *Check) error {
		if len(types) == 0 {
			return fmt.Errorf("at least one query type is required")
		}
		qtypes := make([]uint16, 0, len(types))
		for _, t := range types {
			qtype, err := parseQType(t)
			if err != nil {
				return err
			}
			qtypes = append(qtypes, qtype)
		}
		c.qtypes = qtypes
		return nil
	}
}

// WithExpect requires the answer to contain one of the given addresses.
func WithExpect(addrs ...string) Option {
	return func(c *Check) error {
		expect := make([]string, 0, len(addrs))
		for _, a := range addrs {
			if net.ParseIP(a) == nil {
				return fmt.Errorf("invalid expected address %q", a)
			}
			expect = append(expect, normalizeIP(a))
		}
		c.expect = expect
		return nil
	}
}

// WithTimeout sets the DNS query timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// New creates a resolve Check. Without WithServer the first nameserver of
// the system resolver configuration is used.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		timeout: DefaultTimeout,
		qtypes:  []uint16{dns.TypeA, dns.TypeAAAA},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
	}
	if c.server == "" {
		c.server = systemServer(ResolvConf)
	}

	c.client = &dns.Client{
		Timeout: c.timeout,
	}

	return c, nil
}

func systemServer(path string) string {
	conf, err := dns.ClientConfigFromFile(path)
	if err != nil || len(conf.Servers) == 0 {
		return DefaultServer
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Server returns the queried DNS server.
func (c *Check) Server() string {
	return c.server
}

// Run queries every configured record type for the instance host. The check
// succeeds when any answer holds an address (one of the expected ones, when
// configured). Resolved addresses are contributed to the fingerprint.
func (c *Check) Run(ctx context.Context, r *check.Round) error {
	host := r.Instance().Hostname()
	if host == "" {
		return fmt.Errorf("instance %s has no host name", r.Instance().Name)
	}
	if net.ParseIP(host) != nil || strings.EqualFold(host, "localhost") {
		return nil
	}

	var (
		addrs   []string
		lastErr error
	)
	for _, qtype := range c.qtypes {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(host), qtype)
		msg.RecursionDesired = true

		resp, rtt, err := c.client.ExchangeContext(ctx, msg, c.server)
		if err != nil {
			lastErr = fmt.Errorf("dns %s %s: %w", qtypeName(qtype), host, err)
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("dns %s %s: rcode %s", qtypeName(qtype), host, dns.RcodeToString[resp.Rcode])
			continue
		}
		r.Logger().Debugf("Resolved %s %s via %s in %s", qtypeName(qtype), host, c.server, check.Duration(rtt))
		addrs = append(addrs, answerAddrs(resp.Answer, qtype)...)
	}
	slices.Sort(addrs)
	addrs = slices.Compact(addrs)
	r.State(addrs)

	summary := fmt.Sprintf("Host unresolved '%s'", host)
	switch {
	case len(addrs) == 0 && lastErr != nil:
		r.Error(summary, fmt.Sprintf("Cannot resolve %s via %s: %v", host, c.server, lastErr))
	case len(addrs) == 0:
		r.Error(summary, fmt.Sprintf("No addresses for %s via %s", host, c.server))
	case len(c.expect) > 0 && !slices.ContainsFunc(addrs, func(a string) bool { return slices.Contains(c.expect, a) }):
		r.Error(summary, fmt.Sprintf("Host %s resolves to %s via %s, expected one of %s",
			host, strings.Join(addrs, ", "), c.server, strings.Join(c.expect, ", ")))
	}
	return nil
}

// answerAddrs returns the normalized addresses of the RRs matching qtype.
func answerAddrs(rrs []dns.RR, qtype uint16) []string {
	var addrs []string
	for _, rr := range rrs {
		switch qtype {
		case dns.TypeA:
			if a, ok := rr.(*dns.A); ok {
				addrs = append(addrs, normalizeIP(a.A.String()))
			}
		case dns.TypeAAAA:
			if aaaa, ok := rr.(*dns.AAAA); ok {
				addrs = append(addrs, normalizeIP(aaaa.AAAA.String()))
			}
		}
	}
	return addrs
}

// normalizeIP parses and re-serializes an IP address string for comparison,
// handling IPv4-in-IPv6 representations and leading zeros.
func normalizeIP(s string) string {
	ip := net.ParseIP(s)
	if ip == nil {
		return s
	}
	return ip.String()
}

// qtypeName returns a human-readable record type name for error messages.
func qtypeName(qtype uint16) string {
	switch qtype {
	case dns.TypeA:
		return "A"
	case dns.TypeAAAA:
		return "AAAA"
	default:
		return fmt.Sprintf("TYPE%d", qtype)
	}
}

// parseQType converts a record type string to a miekg/dns type constant.
// Supported values (case-insensitive): A, AAAA.
func parseQType(s string) (uint16, error) {
	switch strings.ToUpper(s) {
	case "A":
		return dns.TypeA, nil
	case "AAAA":
		return dns.TypeAAAA, nil
	default:
		return 0, fmt.Errorf("unsupported query type %q (supported: A, AAAA)", s)
	}
}

type config struct {
	Server  string        `mapstructure:"server"`
	Types   []string      `mapstructure:"types"`
	Expect  []string      `mapstructure:"expect"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Factory creates a resolve Check from a config map.
//
// Optional keys:
//   - "server" (string) host[:port] of the DNS server, default from resolv.conf
//   - "types" (list of strings) record types, default A and AAAA
//   - "expect" (list of strings) addresses one of which must be returned
//   - "timeout" (string) duration string (e.g. "5s"), default "3s"
func Factory(cfg map[string]any) (check.Check, error) {
	var conf config
	if err := check.Decode(cfg, &conf); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	var opts []Option
	if conf.Server != "" {
		opts = append(opts, WithServer(conf.Server))
	}
	if conf.Types != nil {
		opts = append(opts, WithTypes(conf.Types...))
	}
	if conf.Expect != nil {
		opts = append(opts, WithExpect(conf.Expect...))
	}
	if conf.Timeout != 0 {
		opts = append(opts, WithTimeout(conf.Timeout))
	}
	return New(opts...)
}
