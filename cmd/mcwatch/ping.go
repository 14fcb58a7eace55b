package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/energizer-project/mcwatch/internal/cli"
	"github.com/energizer-project/mcwatch/internal/network"
	"github.com/energizer-project/mcwatch/internal/server"
	"github.com/energizer-project/mcwatch/internal/status"
)

type pingOptions struct {
	legacy  bool
	timeout time.Duration
	retries int
	asJSON  bool
}

func newPingCmd() *cobra.Command {
	var opts pingOptions

	cmd := &cobra.Command{
		Use:   "ping <host[:port]>...",
		Short: "Probe servers once and print their status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.legacy, "legacy", false, "Use the pre-1.7 legacy ping protocol")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "Overall timeout per server")
	cmd.Flags().IntVar(&opts.retries, "retries", 1, "Attempts per server")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Render JSON output")

	return cmd
}

func runPing(cmd *cobra.Command, args []string, opts pingOptions) error {
	endpoints := make([]status.Endpoint, 0, len(args))
	for _, arg := range args {
		ep, err := status.ParseEndpoint(arg)
		if err != nil {
			return err
		}
		endpoints = append(endpoints, ep)
	}

	sessionCfg := network.DefaultSessionConfig()
	if opts.legacy {
		sessionCfg.Variant = network.VariantLegacy
	}
	session := network.NewSession(sessionCfg)

	trackerCfg := server.DefaultTrackerConfig()
	trackerCfg.Retries = opts.retries
	trackerCfg.RetryDelay = time.Second

	snapshots := make([]*status.Snapshot, len(endpoints))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(server.DefaultConfig().Parallelism)
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			snapshots[i] = server.NewTracker(ep, session, trackerCfg).Probe(ctx, opts.timeout)
			return nil
		})
	}
	_ = g.Wait()

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshots)
	}

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Label", "Endpoint", "Status", "Players", "Version", "Latency", "Checked"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for i, ep := range endpoints {
		tw.Append(cli.StatusRow(args[i], ep, snapshots[i]))
	}
	tw.Render()

	for i, snap := range snapshots {
		if snap.Success {
			fmt.Fprintf(out, "%s: %s\n", args[i], snap.DisplayMotd())
		} else {
			fmt.Fprintf(out, "%s: %s\n", args[i], snap.Error.Summary())
		}
	}
	return nil
}
