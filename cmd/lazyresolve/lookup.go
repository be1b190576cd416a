package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type lookupResult struct {
	host  string
	addrs []string
	took  time.Duration
	err   error
}

// ---- lookup command ----
func (a *app) lookupCmd() *cobra.Command {
	var (
		timeout time.Duration
		stats   bool
	)
	cmd := &cobra.Command{
		Use:   "lookup <host>...",
		Short: "Resolve one or more hostnames",
		Long: `Resolve every host concurrently through a single resolver. The first
lookup builds the DNS engine; the rest share it.`,
		Example: "lazyresolve lookup example.com example.org",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			r, err := a.newResolver()
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context(), timeout)
			defer cancel()

			results := make([]lookupResult, len(args))
			var g errgroup.Group
			for i, host := range args {
				g.Go(func() error {
					start := time.Now()
					addrs, err := r.Resolve(ctx, host)
					results[i] = lookupResult{
						host:  host,
						addrs: addrs.Strings(),
						took:  time.Since(start),
						err:   err,
					}
					return nil
				})
			}
			_ = g.Wait()

			failed := renderLookups(results)
			if stats {
				if err := a.renderStats(); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d lookups failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "overall deadline for all lookups (0 for none)")
	cmd.Flags().BoolVar(&stats, "stats", false, "print resolver metrics after the lookups")
	return cmd
}

// renderLookups prints one row per host and returns the number of failures.
func renderLookups(results []lookupResult) int {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Host", "Addresses", "Time", "Status"})
	table.SetHeaderColor(
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
	)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetColumnColor(
		tablewriter.Colors{tablewriter.FgHiWhiteColor},
		tablewriter.Colors{tablewriter.FgGreenColor},
		tablewriter.Colors{tablewriter.FgYellowColor},
		tablewriter.Colors{},
	)

	failed := 0
	for _, res := range results {
		status := color.GreenString("ok")
		addrs := strings.Join(res.addrs, ", ")
		if res.err != nil {
			failed++
			status = color.RedString(res.err.Error())
			addrs = "-"
		}
		table.Append([]string{res.host, addrs, res.took.Round(time.Millisecond).String(), status})
	}

	color.New(color.Bold).Println("LOOKUPS:")
	table.Render()
	return failed
}

func (a *app) renderStats() error {
	families, err := a.reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Labels", "Value"})
	table.SetBorder(false)

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			table.Append([]string{mf.GetName(), labels(m), value(mf.GetType(), m)})
		}
	}

	fmt.Println()
	color.New(color.Bold).Println("RESOLVER METRICS:")
	table.Render()
	return nil
}

func labels(m *dto.Metric) string {
	pairs := make([]string, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func value(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return fmt.Sprintf("%g", m.GetCounter().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%.3fs", h.GetSampleCount(), h.GetSampleSum())
	default:
		return "-"
	}
}
