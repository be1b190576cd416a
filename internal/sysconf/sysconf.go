// Package sysconf reads the operating system resolver configuration
// (resolv.conf) into engine configuration. The process-wide Source reads it
// at most once and shares the result, including a failed read.
package sysconf

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/lc/lazyresolve/pkg/dnsengine"
)

// DefaultPath is where the system resolver configuration lives.
const DefaultPath = "/etc/resolv.conf"

// fallbackNameserver is used when resolv.conf names no servers, as libc does.
const fallbackNameserver = "127.0.0.1"

// Reader produces a resolver configuration.
type Reader func() (dnsengine.ServerConfig, dnsengine.Options, error)

// ReadFile reads and converts the resolv.conf file at path.
func ReadFile(path string) (dnsengine.ServerConfig, dnsengine.Options, error) {
	cc, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return dnsengine.ServerConfig{}, dnsengine.Options{}, err
	}
	cfg, opts := convert(cc)
	return cfg, opts, nil
}

// Parse converts resolv.conf content read from r.
func Parse(r io.Reader) (dnsengine.ServerConfig, dnsengine.Options, error) {
	cc, err := dns.ClientConfigFromReader(r)
	if err != nil {
		return dnsengine.ServerConfig{}, dnsengine.Options{}, err
	}
	cfg, opts := convert(cc)
	return cfg, opts, nil
}

func convert(cc *dns.ClientConfig) (dnsengine.ServerConfig, dnsengine.Options) {
	port := cc.Port
	if port == "" {
		port = "53"
	}
	servers := cc.Servers
	if len(servers) == 0 {
		servers = []string{fallbackNameserver}
	}

	cfg := dnsengine.ServerConfig{
		Nameservers: make([]string, 0, len(servers)),
		Search:      append([]string(nil), cc.Search...),
	}
	for _, s := range servers {
		cfg.Nameservers = append(cfg.Nameservers, net.JoinHostPort(s, port))
	}

	opts := dnsengine.DefaultOptions()
	if cc.Timeout > 0 {
		opts.Timeout = time.Duration(cc.Timeout) * time.Second
	}
	if cc.Attempts > 0 {
		opts.Attempts = cc.Attempts
	}
	if cc.Ndots > 0 {
		opts.Ndots = cc.Ndots
	}
	return cfg, opts
}

// Source reads a configuration once and serves the cached result, or
// the cached error, to every caller.
type Source struct {
	once func() (conf, error)
}

type conf struct {
	cfg  dnsengine.ServerConfig
	opts dnsengine.Options
}

// NewSource returns a Source backed by read.
func NewSource(read Reader) *Source {
	return &Source{once: sync.OnceValues(func() (conf, error) {
		cfg, opts, err := read()
		return conf{cfg: cfg, opts: opts}, err
	})}
}

// Load returns the configuration. The first call performs the read; later
// calls return the same result. The returned ServerConfig is a copy.
func (s *Source) Load() (dnsengine.ServerConfig, dnsengine.Options, error) {
	c, err := s.once()
	if err != nil {
		return dnsengine.ServerConfig{}, dnsengine.Options{}, err
	}
	return c.cfg.Clone(), c.opts, nil
}

var system = NewSource(func() (dnsengine.ServerConfig, dnsengine.Options, error) {
	cfg, opts, err := ReadFile(DefaultPath)
	if err != nil {
		return cfg, opts, fmt.Errorf("reading %s: %w", DefaultPath, err)
	}
	return cfg, opts, nil
})

// System returns the process-wide source for DefaultPath.
func System() *Source { return system }
