package dnsengine

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/netip"
	"os"
	"strings"
)

// DefaultHostsPath is the hosts file consulted when Options.UseHosts is set.
const DefaultHostsPath = "/etc/hosts"

// Hosts maps lower-cased names, without the trailing dot, to the addresses
// the hosts file lists for them, in file order.
type Hosts map[string][]net.IPAddr

// ReadHosts parses the hosts file at path. A missing file yields an empty
// table.
func ReadHosts(path string) (Hosts, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Hosts{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseHosts(f)
}

// ParseHosts parses hosts file content. Malformed lines are skipped.
func ParseHosts(r io.Reader) (Hosts, error) {
	h := Hosts{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addr, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue
		}
		ip := ipAddr(addr)
		for _, name := range fields[1:] {
			key := hostKey(name)
			h[key] = append(h[key], ip)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return h, nil
}

// Lookup returns a copy of the addresses listed for name.
func (h Hosts) Lookup(name string) ([]net.IPAddr, bool) {
	ips, ok := h[hostKey(name)]
	if !ok {
		return nil, false
	}
	return append([]net.IPAddr(nil), ips...), true
}

func hostKey(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

func ipAddr(addr netip.Addr) net.IPAddr {
	return net.IPAddr{IP: net.IP(addr.WithZone("").AsSlice()), Zone: addr.Zone()}
}
