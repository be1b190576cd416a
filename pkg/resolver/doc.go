// Package resolver provides the name-resolution adapter an HTTP client
// uses when it opens connections.
//
// A Resolver is cheap to create and does no I/O beyond reading the system
// resolver configuration (New) or nothing at all (NewWithConfig). The DNS
// engine is built on the first call to Resolve, with that call's context.
//
// # Basic Usage
//
//	r, err := resolver.New()
//	if err != nil {
//		return err // errors.Is(err, resolver.ErrConfigRead)
//	}
//	client := &http.Client{Transport: resolver.NewTransport(r)}
//
// Explicit configuration skips /etc/resolv.conf entirely:
//
//	r := resolver.NewWithConfig(
//		dnsengine.ServerConfig{Nameservers: []string{"1.1.1.1:53"}},
//		dnsengine.DefaultOptions(),
//	)
//	addrs, err := r.Resolve(ctx, "example.com")
//	for ip := range addrs.All() {
//		fmt.Println(ip.String())
//	}
//
// # Initialization
//
// The first Resolve takes an initialization lock, builds the engine and
// publishes it. Concurrent first callers wait on the lock and then reuse
// that engine. The lock is released before the lookup, so once the engine
// exists lookups never wait on each other. A failed construction is not
// remembered: the next Resolve tries again. Waiting for the lock honours
// the caller's context.
//
// # Errors
//
// Every error is a *Error. Use errors.Is with ErrConfigRead,
// ErrConstruction or ErrLookup to tell the stages apart; the engine's own
// error stays reachable through errors.Is and errors.As.
package resolver
