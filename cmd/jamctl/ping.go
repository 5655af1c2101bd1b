package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/jamwire/internal/client"
	"github.com/danmuck/jamwire/internal/protocol/session"
	"github.com/spf13/cobra"
)

func pingCmd() *cobra.Command {
	var (
		count    int
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ping <addr>",
		Short: "Measure round trip and client count of a server",
		Long: `Ping sends connectionless pings to a Jamulus server and prints the
round trip time and the number of connected clients for each reply.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd.Context(), cmd.OutOrStdout(), args[0], count, interval, timeout)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "c", 4, "Number of replies to wait for")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Delay between pings")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "Give up after this long without a reply")

	return cmd
}

func runPing(ctx context.Context, w io.Writer, addr string, count int, interval, timeout time.Duration) error {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = interval
	cfg.HeartbeatTimeout = timeout
	s, states, err := dialSession(ctx, client.KindListing, addr, client.WithConfig(cfg), client.WithName("ping"))
	if err != nil {
		return err
	}
	events := s.Receive(nil)
	defer shutdown(s, states, events)

	if err := waitConnected(ctx, states, timeout); err != nil {
		return fmt.Errorf("ping %s: %w", addr, err)
	}

	var (
		replies int
		total   time.Duration
	)
	for replies < count {
		select {
		case <-ctx.Done():
			return summarize(w, addr, replies, total)
		case <-time.After(timeout):
			return fmt.Errorf("ping %s: no reply within %s", addr, timeout)
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("ping %s: %v", addr, s.State().Err)
			}
			lat, ok := ev.(client.LatencyEvent)
			if !ok {
				continue
			}
			replies++
			total += lat.RoundTrip
			fmt.Fprintf(w, "reply from %s: time=%s clients=%d\n", addr, lat.RoundTrip, lat.Clients)
		}
	}
	return summarize(w, addr, replies, total)
}

func summarize(w io.Writer, addr string, replies int, total time.Duration) error {
	if replies == 0 {
		fmt.Fprintf(w, "--- %s: no replies ---\n", addr)
		return nil
	}
	fmt.Fprintf(w, "--- %s: %d replies, avg %s ---\n", addr, replies, total/time.Duration(replies))
	return nil
}
