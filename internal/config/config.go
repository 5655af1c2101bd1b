package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/jamwire/internal/client"
	"github.com/danmuck/jamwire/internal/protocol"
	"github.com/danmuck/jamwire/internal/protocol/session"
)

var ErrInvalid = errors.New("config: invalid")

// ClientConfig is the resolved configuration of one jamctl connection.
type ClientConfig struct {
	Server        string
	Kind          client.Kind
	Channel       protocol.ChannelInfo
	AdminListen   string
	AdminToken    string
	AudioSequence bool
	Session       session.Config
}

type fileConfig struct {
	Server        string        `toml:"server"`
	Kind          string        `toml:"kind"`
	AdminListen   string        `toml:"admin_listen"`
	AdminToken    string        `toml:"admin_token"`
	AudioSequence bool          `toml:"audio_sequence"`
	Channel       channelConfig `toml:"channel"`
	Session       sessionConfig `toml:"session"`
}

type channelConfig struct {
	Name       string `toml:"name"`
	City       string `toml:"city"`
	Country    int64  `toml:"country"`
	Instrument int64  `toml:"instrument"`
	Skill      int64  `toml:"skill"`
}

type sessionConfig struct {
	RetransmitAfter   string `toml:"retransmit_after"`
	RetransmitTick    string `toml:"retransmit_tick"`
	StaleAfter        string `toml:"stale_after"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	HeartbeatTimeout  string `toml:"heartbeat_timeout"`
	DisconnectResend  string `toml:"disconnect_resend"`
	DisconnectQuiet   string `toml:"disconnect_quiet"`
	FragmentMaxAge    string `toml:"fragment_max_age"`
	FragmentMaxGroups int    `toml:"fragment_max_groups"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Kind:        client.KindMain,
		Channel:     protocol.ChannelInfo{Name: "jamctl"},
		AdminListen: "127.0.0.1:7022",
		Session:     session.DefaultConfig(),
	}
}

// LoadClientConfig reads a TOML file and applies every defined key on top
// of DefaultClientConfig.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ClientConfig{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}

	if meta.IsDefined("server") {
		cfg.Server = strings.TrimSpace(raw.Server)
	}
	if meta.IsDefined("kind") {
		kind, ok := client.ParseKind(strings.TrimSpace(raw.Kind))
		if !ok {
			return ClientConfig{}, fmt.Errorf("%w: kind %q", ErrInvalid, raw.Kind)
		}
		cfg.Kind = kind
	}
	if meta.IsDefined("admin_listen") {
		cfg.AdminListen = strings.TrimSpace(raw.AdminListen)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("audio_sequence") {
		cfg.AudioSequence = raw.AudioSequence
	}

	if err := applyChannel(&cfg.Channel, raw.Channel, meta); err != nil {
		return ClientConfig{}, err
	}
	if err := applySession(&cfg.Session, raw.Session, meta); err != nil {
		return ClientConfig{}, err
	}
	if err := Validate(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func applyChannel(dst *protocol.ChannelInfo, raw channelConfig, meta toml.MetaData) error {
	if meta.IsDefined("channel", "name") {
		dst.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("channel", "city") {
		dst.City = strings.TrimSpace(raw.City)
	}
	if meta.IsDefined("channel", "country") {
		if raw.Country < 0 || raw.Country > 0xFFFF {
			return fmt.Errorf("%w: channel.country %d", ErrInvalid, raw.Country)
		}
		dst.Country = uint16(raw.Country)
	}
	if meta.IsDefined("channel", "instrument") {
		if raw.Instrument < 0 || raw.Instrument >= int64(protocol.Instruments()) {
			return fmt.Errorf("%w: channel.instrument %d", ErrInvalid, raw.Instrument)
		}
		dst.Instrument = protocol.Instrument(raw.Instrument)
	}
	if meta.IsDefined("channel", "skill") {
		if raw.Skill < 0 || raw.Skill > 3 {
			return fmt.Errorf("%w: channel.skill %d", ErrInvalid, raw.Skill)
		}
		dst.Skill = uint8(raw.Skill)
	}
	return nil
}

func applySession(dst *session.Config, raw sessionConfig, meta toml.MetaData) error {
	durations := []struct {
		key string
		val string
		out *time.Duration
	}{
		{"retransmit_after", raw.RetransmitAfter, &dst.RetransmitAfter},
		{"retransmit_tick", raw.RetransmitTick, &dst.RetransmitTick},
		{"stale_after", raw.StaleAfter, &dst.StaleAfter},
		{"heartbeat_interval", raw.HeartbeatInterval, &dst.HeartbeatInterval},
		{"heartbeat_timeout", raw.HeartbeatTimeout, &dst.HeartbeatTimeout},
		{"disconnect_resend", raw.DisconnectResend, &dst.DisconnectResend},
		{"disconnect_quiet", raw.DisconnectQuiet, &dst.DisconnectQuiet},
		{"fragment_max_age", raw.FragmentMaxAge, &dst.FragmentMaxAge},
	}
	for _, d := range durations {
		if !meta.IsDefined("session", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return fmt.Errorf("parse session.%s: %w", d.key, err)
		}
		if v <= 0 {
			return fmt.Errorf("%w: session.%s must be positive", ErrInvalid, d.key)
		}
		*d.out = v
	}
	if meta.IsDefined("session", "fragment_max_groups") {
		if raw.FragmentMaxGroups <= 0 {
			return fmt.Errorf("%w: session.fragment_max_groups must be positive", ErrInvalid)
		}
		dst.FragmentMaxGroups = raw.FragmentMaxGroups
	}
	return nil
}

func Validate(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Server) == "" {
		return fmt.Errorf("%w: server is required", ErrInvalid)
	}
	if len(cfg.Channel.Name) > 16 {
		return fmt.Errorf("%w: channel.name longer than 16 bytes", ErrInvalid)
	}
	if cfg.Session.RetransmitAfter >= cfg.Session.StaleAfter {
		return fmt.Errorf("%w: session.retransmit_after must be below stale_after", ErrInvalid)
	}
	if cfg.Session.DisconnectResend >= cfg.Session.DisconnectQuiet {
		return fmt.Errorf("%w: session.disconnect_resend must be below disconnect_quiet", ErrInvalid)
	}
	return nil
}
