package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/jamwire/internal/client"
	"github.com/danmuck/jamwire/internal/observability"
	"github.com/danmuck/jamwire/internal/transport"
	"github.com/spf13/cobra"
)

var version = "dev"

var errSessionEnded = errors.New("session ended before connecting")

func main() {
	observability.InitLogger("jamctl")

	rootCmd := &cobra.Command{
		Use:   "jamctl",
		Short: "Drive Jamulus protocol sessions from the command line",
		Long: `jamctl speaks the Jamulus control protocol over UDP.

It measures round trips to servers, lists the servers registered with a
directory and holds a main session open with an admin HTTP surface.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		pingCmd(),
		serversCmd(),
		connectCmd(),
		configCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "jamctl: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// dialSession opens a session of kind over a fresh UDP transport.
func dialSession(ctx context.Context, kind client.Kind, addr string, opts ...client.Option) (*client.Session, <-chan client.State, error) {
	tr := transport.Dial(ctx, addr)
	s := client.New(kind, tr, opts...)
	// The session outlives ctx so shutdown can still run the handshake.
	states, err := s.Open(context.WithoutCancel(ctx))
	if err != nil {
		_ = tr.Close()
		return nil, nil, err
	}
	return s, states, nil
}

// waitConnected consumes states until the session is usable.
func waitConnected(ctx context.Context, states <-chan client.State, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("not connected within %s", timeout)
		case st, ok := <-states:
			if !ok {
				return errSessionEnded
			}
			switch st.Phase {
			case client.PhaseConnected:
				return nil
			case client.PhaseDisconnected:
				if st.Err != nil {
					return st.Err
				}
				return errSessionEnded
			}
		}
	}
}

// shutdown closes s and waits for the disconnect handshake. Both streams
// are drained so their pumps can exit.
func shutdown(s *client.Session, states <-chan client.State, events <-chan client.Event) {
	s.Close()
	drain(states)
	drain(events)
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
	}
}

// drain discards what is left on ch until it closes.
func drain[T any](ch <-chan T) {
	if ch == nil {
		return
	}
	go func() {
		for range ch {
		}
	}()
}
