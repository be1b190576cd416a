package dnsengine

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/stretchr/testify/mock"
)

const hostsFixture = `# static table
127.0.0.1   localhost
::1         localhost ip6-localhost
10.1.2.3    db.corp.test db   # inline comment
fe80::1%eth0 router
not-an-ip   broken
10.9.9.9
`

func (s *EngineTestSuite) TestParseHosts() {
	hosts, err := ParseHosts(strings.NewReader(hostsFixture))
	s.Require().NoError(err)

	testCases := []struct {
		name     string
		host     string
		expected []string
		found    bool
	}{
		{name: "both families in file order", host: "localhost", expected: []string{"127.0.0.1", "::1"}, found: true},
		{name: "case and trailing dot ignored", host: "DB.Corp.Test.", expected: []string{"10.1.2.3"}, found: true},
		{name: "alias", host: "db", expected: []string{"10.1.2.3"}, found: true},
		{name: "scoped address", host: "router", expected: []string{"fe80::1"}, found: true},
		{name: "malformed address skipped", host: "broken"},
		{name: "absent", host: "example.com"},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			ips, ok := hosts.Lookup(tc.host)
			s.Equal(tc.found, ok)
			if tc.found {
				s.Equal(tc.expected, ipStrings(ips))
			}
		})
	}

	router, _ := hosts.Lookup("router")
	s.Equal("eth0", router[0].Zone)
}

func (s *EngineTestSuite) TestHostsLookupReturnsCopy() {
	hosts, err := ParseHosts(strings.NewReader(hostsFixture))
	s.Require().NoError(err)

	ips, _ := hosts.Lookup("db")
	ips[0] = net.IPAddr{IP: net.ParseIP("192.0.2.99")}

	again, _ := hosts.Lookup("db")
	s.Equal([]string{"10.1.2.3"}, ipStrings(again))
}

func (s *EngineTestSuite) TestLookupIPUsesHostsFile() {
	path := filepath.Join(s.T().TempDir(), "hosts")
	s.Require().NoError(os.WriteFile(path, []byte(hostsFixture), 0o644))

	c, err := New(context.Background(),
		ServerConfig{Nameservers: []string{"10.0.0.53:53"}},
		Options{UseHosts: true},
		WithExchanger(s.ex), WithHostsPath(path),
	)
	s.Require().NoError(err)

	addrs, err := c.LookupIP(context.Background(), "localhost")
	s.Require().NoError(err)
	s.Equal([]string{"127.0.0.1", "::1"}, ipStrings(addrs))
	s.ex.AssertNotCalled(s.T(), "ExchangeContext", mock.Anything, mock.Anything, mock.Anything)
}

func (s *EngineTestSuite) TestHostsFileIgnoredWhenDisabled() {
	path := filepath.Join(s.T().TempDir(), "hosts")
	s.Require().NoError(os.WriteFile(path, []byte(hostsFixture), 0o644))

	c, err := New(context.Background(),
		ServerConfig{Nameservers: []string{"10.0.0.53:53"}},
		Options{},
		WithExchanger(s.ex), WithHostsPath(path),
	)
	s.Require().NoError(err)
	s.Empty(c.hosts)
}

func (s *EngineTestSuite) TestMissingHostsFileIsEmpty() {
	c, err := New(context.Background(),
		ServerConfig{Nameservers: []string{"10.0.0.53:53"}},
		Options{UseHosts: true},
		WithExchanger(s.ex), WithHostsPath(filepath.Join(s.T().TempDir(), "absent")),
	)
	s.Require().NoError(err)
	s.Empty(c.hosts)
}
