// Package config loads and validates the lazyresolve configuration file.
// It reads YAML from disk, falls back to defaults when no file exists, and
// turns the resolver section into engine configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lc/lazyresolve/internal/filesys"
	"github.com/lc/lazyresolve/pkg/dnsengine"
)

var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoConfig is returned when the configuration file is not found.
	ErrNoConfig = errors.New("configuration file not found")
)

const (
	// DefaultConfigPath is the default path for the configuration file,
	// relative to the user's home directory.
	DefaultConfigPath = ".lazyresolve/config.yaml"
	// DefaultHTTPTimeout is the default whole-request timeout for fetch.
	DefaultHTTPTimeout = 30 * time.Second

	maxAttempts = 5
	maxNdots    = 15
)

// Config holds the application configuration.
type Config struct {
	Resolver ResolverConfig `yaml:"resolver"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// ResolverConfig selects the DNS configuration. With System set,
// Nameservers and Search are ignored in favour of /etc/resolv.conf.
//
// The tuning fields apply in both modes. Zero values inherit: from
// resolv.conf when System is set, from the engine defaults otherwise.
type ResolverConfig struct {
	System      bool          `yaml:"system"`
	Nameservers []string      `yaml:"nameservers,omitempty"`
	Search      []string      `yaml:"search,omitempty"`
	Ndots       int           `yaml:"ndots,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Attempts    int           `yaml:"attempts,omitempty"`
	Rotate      bool          `yaml:"rotate,omitempty"`
	TCP         bool          `yaml:"tcp,omitempty"`
	NoHosts     bool          `yaml:"no_hosts,omitempty"`
}

// HTTPConfig holds settings for requests made through the resolver.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Provider defines the interface for loading configuration.
type Provider interface {
	Load() (*Config, error)
}

// FSProvider implements Provider using the local filesystem.
type FSProvider struct {
	fs   filesys.ReadFS
	path string
}

// Verify FSProvider implements Provider interface.
var _ Provider = (*FSProvider)(nil)

// DefaultPath returns the config path under the user's home directory. If
// the home directory cannot be determined, it is relative to the current
// directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not determine home directory: %v\n", err)
		home = ""
	}
	return filepath.Join(home, DefaultConfigPath)
}

// New creates a provider for path, or for DefaultPath when path is empty.
func New(path string) Provider {
	if path == "" {
		path = DefaultPath()
	}
	return NewWithPath(filesys.OS(), path)
}

// NewWithPath creates a new provider with a specific filesystem and path.
func NewWithPath(fs filesys.ReadFS, path string) Provider {
	return &FSProvider{
		fs:   fs,
		path: path,
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Resolver: ResolverConfig{
			System: true,
		},
		HTTP: HTTPConfig{
			Timeout: DefaultHTTPTimeout,
		},
	}
}

// Load loads the configuration from the provider's path.
func (p *FSProvider) Load() (*Config, error) {
	cfg, err := p.loadAndParse()
	if err != nil {
		if errors.Is(err, ErrNoConfig) {
			return Default(), nil
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// Validate checks the configuration to ensure all required fields are set.
// Nameserver syntax is left to the engine, which rejects it on first use.
func (c *Config) Validate() error {
	r := c.Resolver
	if !r.System {
		if len(r.Nameservers) == 0 {
			return errors.New("nameservers are required when system is false")
		}
		for _, ns := range r.Nameservers {
			if strings.TrimSpace(ns) == "" {
				return errors.New("nameserver cannot be empty")
			}
		}
	}
	if r.Timeout != 0 && r.Timeout < time.Second {
		return errors.New("DNS timeout must be at least 1 second")
	}
	if r.Attempts < 0 || r.Attempts > maxAttempts {
		return fmt.Errorf("DNS attempts must be between 1 and %d", maxAttempts)
	}
	if r.Ndots < 0 || r.Ndots > maxNdots {
		return fmt.Errorf("ndots must be between 0 and %d", maxNdots)
	}
	if c.HTTP.Timeout < time.Second {
		return errors.New("HTTP timeout must be at least 1 second")
	}
	return nil
}

// Engine returns the explicit engine configuration described by the
// resolver section.
func (c *Config) Engine() (dnsengine.ServerConfig, dnsengine.Options) {
	r := c.Resolver
	cfg := dnsengine.ServerConfig{
		Nameservers: append([]string(nil), r.Nameservers...),
		Search:      append([]string(nil), r.Search...),
	}
	opts := dnsengine.Options{
		Timeout:  r.Timeout,
		Attempts: r.Attempts,
		Ndots:    r.Ndots,
		Rotate:   r.Rotate,
		UseTCP:   r.TCP,
		UseHosts: !r.NoHosts,
	}
	return cfg, opts
}

// Override applies the non-zero tuning fields on top of opts, which come
// from the system configuration.
func (c *Config) Override(opts dnsengine.Options) dnsengine.Options {
	r := c.Resolver
	if r.Timeout != 0 {
		opts.Timeout = r.Timeout
	}
	if r.Attempts != 0 {
		opts.Attempts = r.Attempts
	}
	if r.Ndots != 0 {
		opts.Ndots = r.Ndots
	}
	if r.Rotate {
		opts.Rotate = true
	}
	if r.TCP {
		opts.UseTCP = true
	}
	if r.NoHosts {
		opts.UseHosts = false
	}
	return opts
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteFile writes cfg to path atomically, creating the parent directory.
func WriteFile(ops filesys.FileOps, path string, cfg *Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := ops.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := filesys.AtomicWrite(ops, path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (p *FSProvider) loadAndParse() (*Config, error) {
	f, err := p.fs.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config file: %w", err)
	}

	return cfg, nil
}
