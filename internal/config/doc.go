// Package config provides configuration management for lazyresolve.
//
// The package uses a Provider interface to abstract configuration loading, with the
// primary implementation being filesystem-based configuration via YAML files.
//
// # Configuration Structure
//
// Configuration is structured as follows:
//
//	resolver:
//	  system: true          # read /etc/resolv.conf; ignore nameservers and search
//	  nameservers:          # used when system is false; port defaults to 53
//	    - 1.1.1.1
//	    - "[2606:4700:4700::1111]:53"
//	  search: [corp.test]   # search suffixes for short names
//	  ndots: 1              # dots needed before a name is tried as-is first
//	  timeout: 5s           # per-exchange timeout
//	  attempts: 2           # exchanges per query
//	  rotate: false         # round-robin the first nameserver
//	  tcp: false            # query over TCP instead of UDP
//	  no_hosts: false       # skip /etc/hosts
//	http:
//	  timeout: 30s          # whole-request timeout for fetch
//
// # Basic Usage
//
// Load configuration using the default path (~/.lazyresolve/config.yaml):
//
//	cfg, err := config.New("").Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	serverCfg, opts := cfg.Engine()
//
// # Tuning and the System Configuration
//
// ndots, timeout, attempts, rotate, tcp and no_hosts apply in both modes.
// Left unset (zero) they inherit: with system set, from the options line of
// /etc/resolv.conf (see Config.Override); otherwise from the engine defaults.
//
// # Configuration Validation
//
// The package performs validation of loaded configuration:
//   - Nameservers are required, and must not be blank, when system is false
//   - DNS timeout, when set, must be at least 1 second
//   - DNS attempts, when set, must be between 1 and 5
//   - ndots must be between 0 and 15
//   - HTTP timeout must be at least 1 second
//
// Nameserver syntax is not checked here. A malformed address surfaces as a
// construction error on the resolver's first lookup.
//
// # Default Configuration
//
// If no configuration file exists, Default is used: the system resolver
// configuration with no overrides and a 30 second HTTP timeout. Keys missing
// from a file keep their default values.
//
// # Error Handling
//
// The package defines several error types:
//   - ErrInvalidConfig: Configuration validation failed
//   - ErrNoConfig: Configuration file not found (returns defaults)
package config
