// Package dnsengine is the DNS backend behind the lazy resolver adapter.
// It resolves names against a fixed set of nameservers with concurrent
// A and AAAA queries, resolv.conf style search lists and per-query attempts.
package dnsengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/lc/lazyresolve/internal/log"
)

var (
	// ErrNoRecords is returned when no A or AAAA records are found for a name.
	ErrNoRecords = errors.New("no records found")
	// ErrNotFound is returned when a nameserver answers NXDOMAIN.
	ErrNotFound = errors.New("no such host")
	// ErrEmptyMsg is returned when the DNS response message is empty.
	ErrEmptyMsg = errors.New("empty message")
	// ErrEmptyHostname is returned when an empty hostname is provided.
	ErrEmptyHostname = errors.New("empty hostname")
	// ErrNoNameservers is returned by New when the server config lists no nameservers.
	ErrNoNameservers = errors.New("no nameservers configured")
	// ErrInvalidNameserver is returned by New for a nameserver that is not ip:port.
	ErrInvalidNameserver = errors.New("invalid nameserver address")
	// ErrInvalidOptions is returned by New for out of range options.
	ErrInvalidOptions = errors.New("invalid resolver options")
)

const (
	// DefaultTimeout is the per-exchange timeout used when Options.Timeout is zero.
	DefaultTimeout = 5 * time.Second
	// DefaultAttempts matches the resolv.conf default.
	DefaultAttempts = 2
	// DefaultNdots matches the resolv.conf default.
	DefaultNdots = 1
	// DefaultUDPSize is the EDNS0 payload size advertised on every query.
	DefaultUDPSize = 1232
)

// ServerConfig names the nameservers to query and the search domains to try.
type ServerConfig struct {
	Nameservers []string // host:port
	Search      []string
}

// Clone returns a deep copy of c.
func (c ServerConfig) Clone() ServerConfig {
	return ServerConfig{
		Nameservers: append([]string(nil), c.Nameservers...),
		Search:      append([]string(nil), c.Search...),
	}
}

// Options tunes how a Client issues queries.
type Options struct {
	Timeout  time.Duration // per exchange
	Attempts int           // exchanges per query type before giving up
	Ndots    int           // dots needed before a name is tried as-is first
	Rotate   bool          // spread queries across nameservers
	UseTCP   bool
	UseHosts bool // answer from the hosts file before asking DNS
}

// DefaultOptions returns the options resolv.conf implies when it sets none.
func DefaultOptions() Options {
	return Options{
		Timeout:  DefaultTimeout,
		Attempts: DefaultAttempts,
		Ndots:    DefaultNdots,
		UseHosts: true,
	}
}

var _ Lookuper = (*Client)(nil)

// Lookuper defines the interface for DNS resolution.
type Lookuper interface {
	// LookupIP resolves a hostname to IPv4 & IPv6 addresses.
	LookupIP(ctx context.Context, hostname string) ([]net.IPAddr, error)
}

// Exchanger defines the interface for DNS message exchange.
type Exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, a string) (r *dns.Msg, rtt time.Duration, err error)
}

// Client is a constructed engine. It is safe for concurrent use and
// holds no locks across lookups.
type Client struct {
	ID string

	exchanger Exchanger
	tcp       Exchanger // retries truncated UDP answers
	hostsPath string
	hosts     Hosts
	servers   []string
	search    []string
	opts      Options
	next      atomic.Uint32 // rotation cursor
}

// Opt is a function option for configuring the Client.
type Opt func(c *Client)

// WithExchanger replaces the miekg/dns clients used for exchanges,
// including the TCP retry of truncated answers.
func WithExchanger(ex Exchanger) Opt {
	return func(c *Client) {
		c.exchanger = ex
		c.tcp = ex
	}
}

// WithHostsPath reads the hosts file from path instead of DefaultHostsPath.
func WithHostsPath(path string) Opt {
	return func(c *Client) {
		c.hostsPath = path
	}
}

// New constructs a Client from cfg and opts. Construction is bounded by
// ctx: a cancelled context aborts it with ctx.Err().
// Zero Timeout, Attempts and Ndots take their defaults.
func New(ctx context.Context, cfg ServerConfig, opts Options, o ...Opt) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := normalize(opts)
	if err != nil {
		return nil, err
	}

	if len(cfg.Nameservers) == 0 {
		return nil, ErrNoNameservers
	}
	servers := make([]string, 0, len(cfg.Nameservers))
	for _, ns := range cfg.Nameservers {
		addr, err := parseNameserver(ns)
		if err != nil {
			return nil, err
		}
		servers = append(servers, addr)
	}

	search := make([]string, 0, len(cfg.Search))
	for _, s := range cfg.Search {
		s = strings.Trim(strings.TrimSpace(s), ".")
		if s == "" {
			continue
		}
		search = append(search, s)
	}

	tcp := &dns.Client{Net: "tcp", Timeout: opts.Timeout}
	var exchanger Exchanger = tcp
	if !opts.UseTCP {
		exchanger = &dns.Client{Net: "udp", Timeout: opts.Timeout}
	}

	c := &Client{
		ID:        uuid.NewString(),
		exchanger: exchanger,
		tcp:       tcp,
		hostsPath: DefaultHostsPath,
		servers:   servers,
		search:    search,
		opts:      opts,
	}
	for _, fn := range o {
		fn(c)
	}

	if opts.UseHosts {
		hosts, err := ReadHosts(c.hostsPath)
		if err != nil {
			return nil, fmt.Errorf("reading hosts file: %w", err)
		}
		c.hosts = hosts
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debug("dnsengine: client constructed",
		"id", c.ID,
		"nameservers", servers,
		"search", search,
		"attempts", opts.Attempts,
		"hosts", len(c.hosts),
	)
	return c, nil
}

func normalize(opts Options) (Options, error) {
	if opts.Timeout < 0 || opts.Attempts < 0 || opts.Ndots < 0 {
		return opts, fmt.Errorf("%w: negative value in %+v", ErrInvalidOptions, opts)
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Attempts == 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Ndots == 0 {
		opts.Ndots = DefaultNdots
	}
	return opts, nil
}

// parseNameserver accepts "ip" or "ip:port" and returns "ip:port".
func parseNameserver(ns string) (string, error) {
	ns = strings.TrimSpace(ns)
	if addr, err := netip.ParseAddr(ns); err == nil {
		return net.JoinHostPort(addr.String(), "53"), nil
	}
	host, port, err := net.SplitHostPort(ns)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidNameserver, ns, err)
	}
	if _, err := netip.ParseAddr(host); err != nil || port == "" {
		return "", fmt.Errorf("%w %q", ErrInvalidNameserver, ns)
	}
	return ns, nil
}

// LookupIP resolves a hostname to a slice of IP addresses.
// If the hostname is already an IP address, it returns it directly.
// Names listed in the hosts file are answered from it without a query.
func (c *Client) LookupIP(ctx context.Context, hostname string) ([]net.IPAddr, error) {
	// ensure we have a hostname
	if strings.TrimSpace(hostname) == "" {
		return nil, ErrEmptyHostname
	}

	// if hostname is an IP, return it as is.
	if addr, err := netip.ParseAddr(hostname); err == nil {
		return []net.IPAddr{ipAddr(addr)}, nil
	}

	if ips, ok := c.hosts.Lookup(hostname); ok {
		return ips, nil
	}

	var errs error
	for _, name := range c.candidates(hostname) {
		ips, err := c.lookupIPs(ctx, name)
		if err == nil {
			return ips, nil
		}
		errs = multierr.Append(errs, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, fmt.Errorf("dns lookup for %q: %w", hostname, errs)
}

// candidates returns the fully-qualified names to try for host, in order.
func (c *Client) candidates(host string) []string {
	if dns.IsFqdn(host) {
		return []string{host}
	}

	names := make([]string, 0, len(c.search)+1)
	asIs := dns.Fqdn(host)
	if strings.Count(host, ".") >= c.opts.Ndots {
		names = append(names, asIs)
	}
	for _, s := range c.search {
		names = append(names, dns.Fqdn(host+"."+s))
	}
	if len(names) == 0 || names[0] != asIs {
		names = append(names, asIs)
	}
	return names
}

// lookupIPs resolves A and AAAA records concurrently.
// It returns every address that succeeded, or an aggregated
// error if *both* queries fail.
func (c *Client) lookupIPs(ctx context.Context, fqdn string) ([]net.IPAddr, error) {
	grp, ctx := errgroup.WithContext(ctx)

	var (
		mu   sync.Mutex
		v4   []net.IPAddr
		v6   []net.IPAddr
		errs error
	)

	for _, qt := range [...]uint16{dns.TypeA, dns.TypeAAAA} {
		grp.Go(func() error {
			addrs, err := c.lookup(ctx, fqdn, qt)
			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = multierr.Append(errs, err) // collect but don't cancel peer
				return nil
			}
			if qt == dns.TypeA {
				v4 = addrs
			} else {
				v6 = addrs
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		errs = multierr.Append(errs, err)
	}

	// A answers first so the result order does not depend on which query won.
	ips := append(v4, v6...)
	if len(ips) == 0 {
		return nil, fmt.Errorf("%s: %w", fqdn, errs)
	}
	return ips, nil
}

// lookup resolves qtype for fqdn and returns the parsed IP answers.
// It makes up to opts.Attempts exchanges before giving up.
func (c *Client) lookup(ctx context.Context, fqdn string, qtype uint16) ([]net.IPAddr, error) {
	var lastErr error
	start := c.start()
	for attempt := 0; attempt < c.opts.Attempts; attempt++ {
		// check for caller cancellation
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		server := c.server(start, attempt)
		resp, _, err := c.exchanger.ExchangeContext(ctx, newQuery(fqdn, qtype), server)
		if err == nil && resp != nil && resp.Truncated && !c.opts.UseTCP {
			log.Debug("dnsengine: truncated answer, retrying over tcp", "name", fqdn, "server", server)
			resp, _, err = c.tcp.ExchangeContext(ctx, newQuery(fqdn, qtype), server)
		}
		if err != nil {
			lastErr = err
			continue
		}
		if resp == nil {
			return nil, ErrEmptyMsg
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, fmt.Errorf("%s %s: %w", dns.TypeToString[qtype], fqdn, ErrNotFound)
		default:
			lastErr = fmt.Errorf("%s %s: server answered %s", dns.TypeToString[qtype], fqdn, dns.RcodeToString[resp.Rcode])
			continue
		}

		ips, err := parseIPs(resp)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", dns.TypeToString[qtype], fqdn, err)
		}
		return ips, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("dns lookup failed for %q", fqdn)
	}
	return nil, lastErr
}

// newQuery builds a recursive query advertising EDNS0. Each exchange
// gets a fresh message since ExchangeContext mutates it.
func newQuery(fqdn string, qtype uint16) *dns.Msg {
	req := &dns.Msg{}
	req.SetQuestion(fqdn, qtype)
	req.RecursionDesired = true
	req.SetEdns0(DefaultUDPSize, false)
	return req
}

// parseIPs parses the DNS response and returns a slice of IPv4 & v6 addresses.
func parseIPs(resp *dns.Msg) ([]net.IPAddr, error) {
	if resp == nil {
		return nil, ErrEmptyMsg
	}

	var ips []net.IPAddr
	for _, r := range resp.Answer {
		switch record := r.(type) {
		case *dns.A:
			ips = append(ips, net.IPAddr{IP: record.A})
		case *dns.AAAA:
			ips = append(ips, net.IPAddr{IP: record.AAAA})
		}
	}

	if len(ips) == 0 {
		return nil, ErrNoRecords
	}

	return ips, nil
}

// start returns the nameserver index a query begins at. Without rotation
// every query starts at the first nameserver; with rotation consecutive
// queries start one position further along a shared cursor.
func (c *Client) start() int {
	if !c.opts.Rotate || len(c.servers) == 1 {
		return 0
	}
	return int((c.next.Inc() - 1) % uint32(len(c.servers)))
}

// server picks the nameserver for the given attempt of a query.
func (c *Client) server(start, attempt int) string {
	return c.servers[(start+attempt)%len(c.servers)]
}
