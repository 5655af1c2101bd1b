package config

import (
	"fmt"
	"os"
	"strings"

	gotoml "github.com/pelletier/go-toml/v2"
)

// Template returns a commented starting config for a session kind.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "main":
		return mainTemplate, nil
	case "listing", "directory":
		return strings.Replace(listingTemplate, `kind = "listing"`, `kind = "`+strings.ToLower(strings.TrimSpace(kind))+`"`, 1), nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Render encodes the effective configuration in the file format, with
// every key spelled out.
func Render(cfg ClientConfig) ([]byte, error) {
	out := fileConfig{
		Server:        cfg.Server,
		Kind:          cfg.Kind.String(),
		AdminListen:   cfg.AdminListen,
		AdminToken:    cfg.AdminToken,
		AudioSequence: cfg.AudioSequence,
		Channel: channelConfig{
			Name:       cfg.Channel.Name,
			City:       cfg.Channel.City,
			Country:    int64(cfg.Channel.Country),
			Instrument: int64(cfg.Channel.Instrument),
			Skill:      int64(cfg.Channel.Skill),
		},
		Session: sessionConfig{
			RetransmitAfter:   cfg.Session.RetransmitAfter.String(),
			RetransmitTick:    cfg.Session.RetransmitTick.String(),
			StaleAfter:        cfg.Session.StaleAfter.String(),
			HeartbeatInterval: cfg.Session.HeartbeatInterval.String(),
			HeartbeatTimeout:  cfg.Session.HeartbeatTimeout.String(),
			DisconnectResend:  cfg.Session.DisconnectResend.String(),
			DisconnectQuiet:   cfg.Session.DisconnectQuiet.String(),
			FragmentMaxAge:    cfg.Session.FragmentMaxAge.String(),
			FragmentMaxGroups: cfg.Session.FragmentMaxGroups,
		},
	}
	b, err := gotoml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("render client config: %w", err)
	}
	return b, nil
}

const mainTemplate = `server = "localhost:22124"
kind = "main"
admin_listen = "127.0.0.1:7022"
admin_token = ""
audio_sequence = false

[channel]
name = "jamctl"
city = ""
country = 0
instrument = 0
skill = 0

[session]
retransmit_after = "1s"
retransmit_tick = "2s"
stale_after = "10s"
heartbeat_interval = "1s"
heartbeat_timeout = "15s"
disconnect_resend = "300ms"
disconnect_quiet = "500ms"
fragment_max_age = "10s"
fragment_max_groups = 64
`

const listingTemplate = `server = "anygenre1.jamulus.io:22124"
kind = "listing"
admin_listen = "127.0.0.1:7022"

[session]
heartbeat_interval = "1s"
heartbeat_timeout = "15s"
`
