package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/danmuck/jamwire/internal/admin"
	"github.com/danmuck/jamwire/internal/auth"
	"github.com/danmuck/jamwire/internal/client"
	"github.com/danmuck/jamwire/internal/config"
	"github.com/danmuck/jamwire/internal/protocol"
	"github.com/danmuck/jamwire/internal/protocol/session"
	"github.com/danmuck/jamwire/internal/registry"
	"github.com/danmuck/jamwire/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const clientVersion = "3.11.0"

func connectCmd() *cobra.Command {
	var (
		path        string
		maxAttempts int
		noAdmin     bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Hold a session open and serve the admin API",
		Long: `Connect opens a session as described by a config file, announces the
channel profile and prints chat and roster updates until interrupted.
Failed sessions are reopened with exponential backoff.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(path)
			if err != nil {
				return err
			}
			reg := registry.New()
			ctx := cmd.Context()
			if !noAdmin && cfg.AdminListen != "" {
				srv := admin.New("jamctl", cfg.AdminListen, reg, nil, auth.FromToken(cfg.AdminToken))
				go func() {
					if err := srv.Serve(ctx); err != nil {
						log.Error().Err(err).Msg("admin server stopped")
					}
				}()
			}
			c := &connector{cfg: cfg, reg: reg, out: cmd.OutOrStdout(), maxAttempts: maxAttempts}
			return c.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&path, "config", "f", "jamctl.toml", "Client config file")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Stop after this many failed sessions (0 retries forever)")
	cmd.Flags().BoolVar(&noAdmin, "no-admin", false, "Do not start the admin HTTP server")

	return cmd
}

type connector struct {
	cfg         config.ClientConfig
	reg         *registry.Registry
	out         io.Writer
	maxAttempts int
	rng         *rand.Rand
}

// run keeps one session alive until ctx ends. Sessions that end with an
// error are reopened after a backoff delay.
func (c *connector) run(ctx context.Context) error {
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	attempt := 0
	for {
		err := c.once(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}
		attempt++
		if c.maxAttempts > 0 && attempt >= c.maxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		delay := session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("session ended")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// once runs a single session to its terminal state.
func (c *connector) once(ctx context.Context) error {
	tr := transport.Dial(ctx, c.cfg.Server)
	id, s, err := c.reg.Open(c.cfg.Kind, tr, client.WithConfig(c.cfg.Session))
	if err != nil {
		_ = tr.Close()
		return err
	}
	states, err := s.Open(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	stream := s.Receive(nil)
	events := stream
	log.Info().Str("session", id).Str("server", c.cfg.Server).Msg("session opened")

	for {
		select {
		case <-ctx.Done():
			shutdown(s, states, stream)
			return nil
		case st, ok := <-states:
			if !ok {
				drain(stream)
				return s.State().Err
			}
			fmt.Fprintf(c.out, "state: %s\n", st)
			if st.Phase == client.PhaseConnected {
				c.announce(s)
			}
			if st.Phase == client.PhaseDisconnected {
				drain(states)
				drain(stream)
				return st.Err
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handle(s, ev)
		}
	}
}

func (c *connector) announce(s *client.Session) {
	if c.cfg.Kind != client.KindMain {
		return
	}
	c.send(s, protocol.ChannelInfos{Info: c.cfg.Channel})
}

func (c *connector) handle(s *client.Session, ev client.Event) {
	switch e := ev.(type) {
	case client.MessageEvent:
		if reply := replyTo(e.Message, c.cfg); reply != nil {
			c.send(s, reply)
			return
		}
		printMessage(c.out, e.Message)
	case client.LatencyEvent:
		log.Debug().Dur("rtt", e.RoundTrip).Msg("ping")
	case client.ProtocolErrorEvent:
		log.Warn().Err(e.Err).Msg("protocol error")
	}
}

func (c *connector) send(s *client.Session, msg protocol.Message) {
	if err := s.Send(msg); err != nil && !errors.Is(err, client.ErrDisconnecting) {
		log.Warn().Err(err).Stringer("id", msg.ID()).Msg("send failed")
	}
}

// replyTo answers the requests a server makes of every client.
func replyTo(msg protocol.Message, cfg config.ClientConfig) protocol.Message {
	switch msg.(type) {
	case protocol.ReqChannelInfos:
		return protocol.ChannelInfos{Info: cfg.Channel}
	case protocol.ReqVersionAndOS:
		return protocol.VersionAndOS{OS: protocol.OSLinux, Version: clientVersion}
	case protocol.ReqJitterBufSize:
		return protocol.JitterBufSize{Size: protocol.JitterDefault}
	case protocol.ReqAudioTransportProps:
		props := protocol.StereoNormal
		props.Sequenced = cfg.AudioSequence
		return protocol.AudioTransportProps{Transport: props}
	}
	return nil
}

func printMessage(w io.Writer, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.ChatText:
		fmt.Fprintf(w, "chat: %s\n", m.Text)
	case protocol.ClientList:
		fmt.Fprintf(w, "roster: %d channels\n", len(m.Channels))
		for _, ch := range m.Channels {
			fmt.Fprintf(w, "  [%d] %s (%s)\n", ch.Channel, ch.Name, ch.Instrument)
		}
	case protocol.ServerFull:
		fmt.Fprintln(w, "server full")
	case protocol.RecorderStatus:
		fmt.Fprintf(w, "recorder: %d\n", m.State)
	default:
		log.Debug().Stringer("id", msg.ID()).Msg("message")
	}
}
