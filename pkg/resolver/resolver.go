// Package resolver adapts a DNS engine to the HTTP client dialing path.
// The engine is constructed lazily, on the first Resolve, under an
// initialization lock that is released before the lookup runs.
package resolver

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lc/lazyresolve/internal/log"
	"github.com/lc/lazyresolve/internal/sysconf"
	"github.com/lc/lazyresolve/pkg/dnsengine"
)

// Engine performs lookups once constructed. Implementations must be safe
// for concurrent use; the adapter calls LookupIP without any locking.
type Engine interface {
	LookupIP(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Constructor builds an Engine. It runs under the initialization lock and
// should honour ctx cancellation.
type Constructor func(ctx context.Context, cfg dnsengine.ServerConfig, opts dnsengine.Options) (Engine, error)

// NewEngine is the default Constructor, backed by dnsengine.
func NewEngine(ctx context.Context, cfg dnsengine.ServerConfig, opts dnsengine.Options) (Engine, error) {
	c, err := dnsengine.New(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type stateKind int

const (
	stateInit stateKind = iota
	stateInitWithConfig
	stateReady
)

func (k stateKind) String() string {
	switch k {
	case stateInit:
		return "init"
	case stateInitWithConfig:
		return "init-with-config"
	case stateReady:
		return "ready"
	default:
		return fmt.Sprintf("stateKind(%d)", int(k))
	}
}

// state is the lazy-initialization cell. Exactly one variant is active:
// cfg and opts are only meaningful for stateInitWithConfig and engine only
// for stateReady.
type state struct {
	kind   stateKind
	cfg    dnsengine.ServerConfig
	opts   dnsengine.Options
	engine Engine
}

// cell is shared by every copy of a Resolver.
type cell struct {
	lock  *semaphore.Weighted // guards st; never held across a lookup
	st    state
	build    Constructor
	sys      *sysconf.Source
	override func(dnsengine.Options) dnsengine.Options
	m        *Metrics
}

// Resolver resolves hostnames for connection attempts. A Resolver is a
// handle: copies share one initialization state and one engine.
// The zero value is not usable; create one with New or NewWithConfig.
type Resolver struct {
	c *cell
}

// Option configures a Resolver.
type Option func(c *cell)

// WithConstructor replaces the engine constructor.
func WithConstructor(build Constructor) Option {
	return func(c *cell) {
		c.build = build
	}
}

// WithSystemConfig replaces the process-wide system configuration source.
// A nil src keeps the default.
func WithSystemConfig(src *sysconf.Source) Option {
	return func(c *cell) {
		if src != nil {
			c.sys = src
		}
	}
}

// WithOptionOverrides adjusts the options read from the system
// configuration before the engine is built. It has no effect on a
// Resolver created with NewWithConfig.
func WithOptionOverrides(fn func(dnsengine.Options) dnsengine.Options) Option {
	return func(c *cell) {
		c.override = fn
	}
}

// WithMetrics records constructions and lookups in m.
func WithMetrics(m *Metrics) Option {
	return func(c *cell) {
		c.m = m
	}
}

func newCell(st state, opts []Option) *cell {
	c := &cell{
		lock:  semaphore.NewWeighted(1),
		st:    st,
		build: NewEngine,
		sys:   sysconf.System(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// New returns a Resolver that builds its engine from the system resolver
// configuration. The configuration is read now, so an unreadable
// configuration fails here with an ErrConfigRead error; the engine itself
// is only built on the first Resolve.
func New(opts ...Option) (Resolver, error) {
	c := newCell(state{kind: stateInit}, opts)
	if _, _, err := c.sys.Load(); err != nil {
		return Resolver{}, &Error{
			Op:  OpReadConfig,
			Err: fmt.Errorf("error reading DNS system conf: %w", err),
		}
	}
	return Resolver{c: c}, nil
}

// NewWithConfig returns a Resolver that builds its engine from cfg and
// dnsOpts on first use. It never reads the system configuration.
func NewWithConfig(cfg dnsengine.ServerConfig, dnsOpts dnsengine.Options, opts ...Option) Resolver {
	c := newCell(state{
		kind: stateInitWithConfig,
		cfg:  cfg.Clone(),
		opts: dnsOpts,
	}, opts)
	return Resolver{c: c}
}

// Resolve returns the addresses for host. The first call on a fresh
// Resolver constructs the engine; concurrent first calls wait for that
// construction and share its engine. Lookups themselves run concurrently.
// host is passed to the engine unvalidated.
func (r Resolver) Resolve(ctx context.Context, host string) (Addrs, error) {
	eng, err := r.c.engine(ctx)
	if err != nil {
		return Addrs{}, err
	}

	start := time.Now()
	ips, err := eng.LookupIP(ctx, host)
	r.c.m.observeLookup(time.Since(start), err)
	if err != nil {
		return Addrs{}, &Error{Op: OpLookup, Host: host, Err: err}
	}
	return newAddrs(ips), nil
}

// engine returns the ready engine, constructing it first if needed. The
// lock covers only the state inspection and transition.
func (c *cell) engine(ctx context.Context) (Engine, error) {
	if err := c.lock.Acquire(ctx, 1); err != nil {
		return nil, &Error{Op: OpConstruct, Err: err}
	}
	defer c.lock.Release(1)

	switch c.st.kind {
	case stateReady:
		return c.st.engine, nil
	case stateInit:
		cfg, opts, err := c.sys.Load()
		if err != nil {
			// The source caches the read New already checked.
			return nil, &Error{Op: OpReadConfig, Err: err}
		}
		if c.override != nil {
			opts = c.override(opts)
		}
		return c.construct(ctx, "system", cfg, opts)
	case stateInitWithConfig:
		return c.construct(ctx, "explicit", c.st.cfg, c.st.opts)
	default:
		return nil, &Error{Op: OpConstruct, Err: fmt.Errorf("unknown resolver state %s", c.st.kind)}
	}
}

// construct builds the engine and publishes it. Must be called with c.lock
// held. On failure the state is left as it was so the next caller retries.
func (c *cell) construct(ctx context.Context, source string, cfg dnsengine.ServerConfig, opts dnsengine.Options) (Engine, error) {
	eng, err := c.build(ctx, cfg, opts)
	if err == nil && eng == nil {
		err = errNilEngine
	}
	c.m.observeConstruction(err)
	if err != nil {
		log.Warn("resolver: engine construction failed", "config", source, "error", err)
		return nil, &Error{Op: OpConstruct, Err: err}
	}

	log.Debug("resolver: engine ready", "config", source, "from", c.st.kind)
	c.st = state{kind: stateReady, engine: eng}
	return eng, nil
}
