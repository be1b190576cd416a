package resolver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/lc/lazyresolve/pkg/dnsengine"
)

func stubResolver(t *testing.T, hosts map[string][]net.IPAddr, lookups *atomic.Int64) Resolver {
	t.Helper()
	eng := engineFunc(func(_ context.Context, host string) ([]net.IPAddr, error) {
		lookups.Inc()
		ips, ok := hosts[host]
		if !ok {
			return nil, dnsengine.ErrNotFound
		}
		return ips, nil
	})
	return NewWithConfig(explicitCfg, explicitOpts, WithConstructor(
		func(context.Context, dnsengine.ServerConfig, dnsengine.Options) (Engine, error) {
			return eng, nil
		},
	))
}

func TestTransportDialsResolvedAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello "+r.Host)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	var lookups atomic.Int64
	r := stubResolver(t, map[string][]net.IPAddr{
		"service.test": ipAddrs("127.0.0.1"),
	}, &lookups)
	tr := NewTransport(r)
	tr.Proxy = nil
	client := &http.Client{Transport: tr}

	resp, err := client.Get("http://service.test:" + u.Port() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello service.test:"+u.Port(), string(body))
	require.Equal(t, int64(1), lookups.Load())
}

func TestDialFallsThroughToNextAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	var lookups atomic.Int64
	r := stubResolver(t, map[string][]net.IPAddr{
		// nothing listens on 127.0.0.2 and ::1 is skipped for tcp4
		"multi.test": ipAddrs("::1", "127.0.0.2", "127.0.0.1"),
	}, &lookups)

	dial := r.DialContext(&net.Dialer{Timeout: 2 * time.Second})
	conn, err := dial(context.Background(), "tcp4", net.JoinHostPort("multi.test", port))
	require.NoError(t, err)
	require.Equal(t, ln.Addr().String(), conn.RemoteAddr().String())
	require.NoError(t, conn.Close())
}

func TestDialSplitsDeadlineAcrossAddresses(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	var lookups atomic.Int64
	r := stubResolver(t, map[string][]net.IPAddr{
		"slow.test": ipAddrs("127.0.0.2", "127.0.0.1"),
	}, &lookups)

	// 127.0.0.2 never answers: its connect blocks until the dial gives up.
	d := &net.Dialer{
		ControlContext: func(ctx context.Context, _, address string, _ syscall.RawConn) error {
			if strings.HasPrefix(address, "127.0.0.2:") {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	start := time.Now()
	conn, err := r.DialContext(d)(ctx, "tcp4", "slow.test:"+port)
	require.NoError(t, err)
	conn.Close()
	require.Less(t, time.Since(start), 3500*time.Millisecond)
}

func TestPartialDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		left      time.Duration
		remaining int
		expected  time.Duration
		expectErr bool
	}{
		{name: "single address gets everything", left: 30 * time.Second, remaining: 1, expected: 30 * time.Second},
		{name: "split evenly", left: 30 * time.Second, remaining: 3, expected: 10 * time.Second},
		{name: "raised to the minimum", left: 5 * time.Second, remaining: 5, expected: minDialTimeout},
		{name: "capped by time left", left: time.Second, remaining: 4, expected: time.Second},
		{name: "already expired", left: 0, remaining: 2, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := partialDeadline(now, now.Add(tc.left), tc.remaining)
			if tc.expectErr {
				require.ErrorIs(t, err, context.DeadlineExceeded)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, got.Sub(now))
		})
	}
}

func TestDialDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctxDeadline, cancel := context.WithDeadline(context.Background(), now.Add(10*time.Second))
	defer cancel()

	testCases := []struct {
		name     string
		ctx      context.Context
		dialer   *net.Dialer
		expected time.Time
	}{
		{name: "no limits", ctx: context.Background(), dialer: &net.Dialer{}},
		{name: "dialer timeout", ctx: context.Background(), dialer: &net.Dialer{Timeout: 30 * time.Second}, expected: now.Add(30 * time.Second)},
		{name: "context is earlier", ctx: ctxDeadline, dialer: &net.Dialer{Timeout: 30 * time.Second}, expected: now.Add(10 * time.Second)},
		{name: "dialer deadline is earliest", ctx: ctxDeadline, dialer: &net.Dialer{Timeout: 30 * time.Second, Deadline: now.Add(5 * time.Second)}, expected: now.Add(5 * time.Second)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, dialDeadline(tc.ctx, tc.dialer, now))
		})
	}
}

func TestDialIPLiteralSkipsLookup(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	var lookups atomic.Int64
	r := stubResolver(t, nil, &lookups)

	conn, err := r.DialContext(nil)(context.Background(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.Zero(t, lookups.Load())
}

func TestDialLookupFailure(t *testing.T) {
	var lookups atomic.Int64
	r := stubResolver(t, nil, &lookups)

	_, err := r.DialContext(nil)(context.Background(), "tcp", "missing.test:443")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrLookup)
	require.ErrorIs(t, err, dnsengine.ErrNotFound)

	var opErr *net.OpError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, "dial", opErr.Op)
}

func TestDialNoSuitableAddress(t *testing.T) {
	var lookups atomic.Int64
	r := stubResolver(t, map[string][]net.IPAddr{
		"v6only.test": ipAddrs("2001:db8::1"),
	}, &lookups)

	_, err := r.DialContext(nil)(context.Background(), "tcp4", "v6only.test:80")
	var addrErr *net.AddrError
	require.ErrorAs(t, err, &addrErr)
	require.Equal(t, "v6only.test", addrErr.Addr)
}

func TestMatchesFamily(t *testing.T) {
	testCases := []struct {
		network  string
		ip       string
		expected bool
	}{
		{"tcp", "192.0.2.1", true},
		{"tcp", "2001:db8::1", true},
		{"tcp4", "192.0.2.1", true},
		{"tcp4", "2001:db8::1", false},
		{"tcp6", "192.0.2.1", false},
		{"udp6", "2001:db8::1", true},
	}

	for _, tc := range testCases {
		t.Run(tc.network+"/"+tc.ip, func(t *testing.T) {
			require.Equal(t, tc.expected, matchesFamily(tc.network, net.ParseIP(tc.ip)))
		})
	}
}
