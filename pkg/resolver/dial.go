package resolver

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// DialFunc matches http.Transport.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialContext returns a dial function that resolves the host part of the
// address through r and dials the resolved addresses in order until one
// connects. IP literal hosts are dialed directly. A nil dialer uses the
// same timeouts as http.DefaultTransport.
func (r Resolver) DialContext(d *net.Dialer) DialFunc {
	if d == nil {
		d = &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}
	}

	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		if _, err := netip.ParseAddr(host); err == nil {
			return d.DialContext(ctx, network, address)
		}

		addrs, err := r.Resolve(ctx, host)
		if err != nil {
			return nil, &net.OpError{Op: "dial", Net: network, Err: err}
		}

		var targets []net.IPAddr
		for ip := range addrs.All() {
			if matchesFamily(network, ip.IP) {
				targets = append(targets, ip)
			}
		}
		if len(targets) == 0 {
			return nil, &net.AddrError{Err: "no suitable address found", Addr: host}
		}

		deadline := dialDeadline(ctx, d, time.Now())
		var errs error
		for i, ip := range targets {
			conn, err := dialOne(ctx, d, network, net.JoinHostPort(ip.String(), port), deadline, len(targets)-i)
			if err == nil {
				return conn, nil
			}
			errs = multierr.Append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		return nil, errs
	}
}

// dialOne dials address with its share of the time left before deadline.
func dialOne(ctx context.Context, d *net.Dialer, network, address string, deadline time.Time, remaining int) (net.Conn, error) {
	if !deadline.IsZero() {
		partial, err := partialDeadline(time.Now(), deadline, remaining)
		if err != nil {
			return nil, &net.OpError{Op: "dial", Net: network, Err: err}
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, partial)
		defer cancel()
	}
	return d.DialContext(ctx, network, address)
}

// minDialTimeout is the least time an address gets when several share a
// deadline, unless less than that is left overall.
const minDialTimeout = 2 * time.Second

// dialDeadline is the earliest of the context deadline, the dialer's
// Deadline and now plus the dialer's Timeout. Zero means none.
func dialDeadline(ctx context.Context, d *net.Dialer, now time.Time) time.Time {
	var earliest time.Time
	consider := func(t time.Time) {
		if !t.IsZero() && (earliest.IsZero() || t.Before(earliest)) {
			earliest = t
		}
	}
	if d.Timeout > 0 {
		consider(now.Add(d.Timeout))
	}
	consider(d.Deadline)
	if t, ok := ctx.Deadline(); ok {
		consider(t)
	}
	return earliest
}

// partialDeadline splits the time until deadline evenly across the
// remaining addresses, giving each at least minDialTimeout when it can.
func partialDeadline(now, deadline time.Time, remaining int) (time.Time, error) {
	left := deadline.Sub(now)
	if left <= 0 {
		return time.Time{}, context.DeadlineExceeded
	}
	timeout := left / time.Duration(remaining)
	if timeout < minDialTimeout {
		timeout = min(minDialTimeout, left)
	}
	return now.Add(timeout), nil
}

// matchesFamily reports whether ip can be dialed on network ("tcp4",
// "udp6", ...). Networks without a family suffix accept both.
func matchesFamily(network string, ip net.IP) bool {
	switch {
	case strings.HasSuffix(network, "4"):
		return ip.To4() != nil
	case strings.HasSuffix(network, "6"):
		return ip.To4() == nil
	default:
		return true
	}
}

// NewTransport returns a clone of http.DefaultTransport that dials through r.
func NewTransport(r Resolver) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = r.DialContext(nil)
	return t
}
