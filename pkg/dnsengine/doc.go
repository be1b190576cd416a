// Package dnsengine provides the DNS resolution engine used by the lazy
// resolver adapter in package resolver.
//
// An engine is built from a ServerConfig (nameservers and search domains)
// and Options (timeouts, attempts, ndots, rotation). Construction validates
// the configuration and is bounded by a context; it never touches the network.
//
// # Basic Usage
//
//	cfg := dnsengine.ServerConfig{
//		Nameservers: []string{"1.1.1.1:53", "8.8.8.8:53"},
//	}
//	eng, err := dnsengine.New(ctx, cfg, dnsengine.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	ips, err := eng.LookupIP(ctx, "example.com")
//
// # Name Candidates
//
// LookupIP follows the resolv.conf search rules:
//   - a name ending in a dot is only tried as written
//   - a name with at least Ndots dots is tried as written, then with each
//     search suffix
//   - any other name is tried with each search suffix first, then as written
//
// The first candidate that yields addresses wins.
//
// # Queries
//
// For each candidate, A and AAAA queries run concurrently. Each query makes
// up to Options.Attempts exchanges, walking the nameserver list. With
// Options.Rotate set, consecutive queries start at different nameservers.
// An NXDOMAIN answer ends the query immediately with ErrNotFound.
//
// # Error Handling
//
// Construction errors:
//   - ErrNoNameservers: the server config is empty
//   - ErrInvalidNameserver: a nameserver is not an IP or ip:port
//   - ErrInvalidOptions: negative timeout, attempts or ndots
//
// Lookup errors wrap ErrEmptyHostname, ErrNotFound, ErrNoRecords or the
// transport error of the last exchange. Errors from the A and AAAA queries
// and from each candidate are aggregated with go.uber.org/multierr, so
// errors.Is works on the returned error.
//
// # Thread Safety
//
// A Client is safe for concurrent use. Lookups share no locks; the only
// shared mutable state is the rotation cursor, which is atomic.
package dnsengine
