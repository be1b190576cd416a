package resolver

import (
	"iter"
	"net"
	"slices"
)

// Addrs is the result of one lookup. It is produced once and can be
// iterated any number of times; iterating never repeats the query.
type Addrs struct {
	ips []net.IPAddr
}

func newAddrs(ips []net.IPAddr) Addrs {
	return Addrs{ips: slices.Clone(ips)}
}

// All yields the addresses in the order the engine returned them.
func (a Addrs) All() iter.Seq[net.IPAddr] {
	return slices.Values(a.ips)
}

// Len returns the number of addresses.
func (a Addrs) Len() int { return len(a.ips) }

// Slice returns a copy of the addresses.
func (a Addrs) Slice() []net.IPAddr { return slices.Clone(a.ips) }

// Strings returns the addresses in text form.
func (a Addrs) Strings() []string {
	out := make([]string, 0, len(a.ips))
	for ip := range a.All() {
		out = append(out, ip.String())
	}
	return out
}
