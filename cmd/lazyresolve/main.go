// Command lazyresolve exercises the lazy resolver adapter from the shell.
//
// Usage:
//
//	lazyresolve lookup <host>...   - Resolve hosts through one shared resolver
//	lazyresolve fetch <url>        - GET a URL, dialing through the resolver
//	lazyresolve config init        - Write the default config file
//	lazyresolve version            - Show version information
//
// Examples:
//
//	lazyresolve lookup example.com example.org
//	lazyresolve lookup --stats db internal.corp.test
//	lazyresolve fetch https://example.com/
//
// The resolver reads /etc/resolv.conf unless the config file sets
// resolver.system to false and lists nameservers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/lc/lazyresolve/internal/buildinfo"
	"github.com/lc/lazyresolve/internal/config"
	"github.com/lc/lazyresolve/internal/filesys"
	"github.com/lc/lazyresolve/internal/log"
	"github.com/lc/lazyresolve/internal/sysconf"
	"github.com/lc/lazyresolve/pkg/resolver"
)

type app struct {
	configPath string
	verbose    bool

	cfg     *config.Config
	reg     *prometheus.Registry
	metrics *resolver.Metrics
}

func main() {
	defer log.Sync()

	a := &app{}
	root := &cobra.Command{
		Use:   "lazyresolve",
		Short: "Resolve hostnames through a lazily built DNS engine",
		Long: `lazyresolve resolves hostnames the way an HTTP client dialer does:
the DNS engine is built on first use and shared by every lookup after that.

Set ` + log.EnvLevel + ` to debug, info, warn or error to choose the log level.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if a.verbose {
				if err := log.SetLevel("debug"); err != nil {
					return err
				}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ~/"+config.DefaultConfigPath+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	// ---- version command ----
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("version: %s\n", buildinfo.Version)
			fmt.Printf("commit: %s\n", buildinfo.Commit)
		},
	}

	root.AddCommand(a.lookupCmd(), a.fetchCmd(), a.configCmd(), versionCmd)
	if err := root.Execute(); err != nil {
		log.Fatalf("lazyresolve: %v", err)
	}
}

func (a *app) loadConfig() error {
	cfg, err := config.New(a.configPath).Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	a.cfg = cfg
	return nil
}

// newResolver builds the resolver described by the loaded config. Nothing
// touches the network until the first lookup.
func (a *app) newResolver() (resolver.Resolver, error) {
	a.reg = prometheus.NewRegistry()
	a.metrics = resolver.NewMetrics(a.reg)

	if a.cfg.Resolver.System {
		log.Info("cli: using system resolver configuration", "path", sysconf.DefaultPath)
		return resolver.New(
			resolver.WithMetrics(a.metrics),
			resolver.WithOptionOverrides(a.cfg.Override),
		)
	}
	cfg, opts := a.cfg.Engine()
	log.Info("cli: using explicit resolver configuration", "nameservers", cfg.Nameservers)
	return resolver.NewWithConfig(cfg, opts, resolver.WithMetrics(a.metrics)), nil
}

// ---- fetch command ----
func (a *app) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>",
		Short: "GET a URL, dialing through the resolver",
		Long: `Fetch performs a single GET request with an HTTP client whose transport
resolves hostnames through the lazy resolver. The body is discarded; the
status and size are printed.`,
		Example: "lazyresolve fetch https://example.com/",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			r, err := a.newResolver()
			if err != nil {
				return err
			}

			client := &http.Client{
				Transport: resolver.NewTransport(r),
				Timeout:   a.cfg.HTTP.Timeout,
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, args[0], nil)
			if err != nil {
				return fmt.Errorf("invalid url: %w", err)
			}

			start := time.Now()
			resp, err := client.Do(req)
			if err != nil {
				if errors.Is(err, resolver.ErrLookup) {
					color.Red("✗ could not resolve host")
				}
				return err
			}
			defer resp.Body.Close()

			n, err := io.Copy(io.Discard, resp.Body)
			if err != nil {
				return fmt.Errorf("reading body: %w", err)
			}

			status := color.New(color.FgGreen, color.Bold)
			if resp.StatusCode >= 400 {
				status = color.New(color.FgRed, color.Bold)
			}
			status.Printf("%s ", resp.Status)
			color.New(color.FgHiWhite).Printf("%d bytes in %s\n", n, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// ---- config command ----
func (a *app) configCmd() *cobra.Command {
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := a.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteFile(filesys.OS(), path, config.Default()); err != nil {
				return err
			}
			color.New(color.FgGreen, color.Bold).Printf("✓ Wrote ")
			color.New(color.FgHiGreen).Println(path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(initCmd)
	return cmd
}

func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
