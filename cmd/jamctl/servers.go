package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/danmuck/jamwire/internal/client"
	"github.com/danmuck/jamwire/internal/protocol"
	"github.com/spf13/cobra"
)

func serversCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "servers <directory>",
		Short: "List the servers registered with a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := fetchServers(cmd.Context(), args[0], timeout)
			if err != nil {
				return err
			}
			return writeServers(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "Give up after this long without a list")

	return cmd
}

func fetchServers(ctx context.Context, addr string, timeout time.Duration) ([]protocol.ServerDetail, error) {
	s, states, err := dialSession(ctx, client.KindDirectory, addr, client.WithName("servers"))
	if err != nil {
		return nil, err
	}
	events := s.Receive(nil)
	defer shutdown(s, states, events)

	if err := waitConnected(ctx, states, timeout); err != nil {
		return nil, fmt.Errorf("directory %s: %w", addr, err)
	}
	if err := s.Send(protocol.ReqServerList{}); err != nil {
		return nil, err
	}

	deadline := time.After(timeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("directory %s: no server list within %s", addr, timeout)
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("directory %s: %v", addr, s.State().Err)
			}
			if list, ok := serverList(ev); ok {
				return list, nil
			}
		}
	}
}

// serverList extracts either list form from a message event.
func serverList(ev client.Event) ([]protocol.ServerDetail, bool) {
	msg, ok := ev.(client.MessageEvent)
	if !ok {
		return nil, false
	}
	switch m := msg.Message.(type) {
	case protocol.ServerList:
		return m.Servers, true
	case protocol.ReducedServerList:
		return m.Servers, true
	}
	return nil, false
}

func writeServers(w io.Writer, list []protocol.ServerDetail) error {
	sorted := append([]protocol.ServerDetail(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCITY\tCOUNTRY\tMAX\tADDRESS")
	for _, srv := range sorted {
		city := srv.City
		if city == "" {
			city = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", srv.Name, city, srv.Country, srv.MaxClients, srv.Addr())
	}
	return tw.Flush()
}
