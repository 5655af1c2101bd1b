package session

import "time"

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config holds the timing policy of one connection.
type Config struct {
	// RetransmitAfter is the age at which an unacknowledged control message
	// is re-sent; RetransmitTick is how often that is checked.
	RetransmitAfter time.Duration
	RetransmitTick  time.Duration
	// StaleAfter drops a pending message for good.
	StaleAfter time.Duration

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// DisconnectResend paces Disconnect while closing; the handshake ends
	// once no audio arrived for DisconnectQuiet.
	DisconnectResend time.Duration
	DisconnectQuiet  time.Duration

	FragmentMaxAge    time.Duration
	FragmentMaxGroups int

	Backoff BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		RetransmitAfter:   time.Second,
		RetransmitTick:    2 * time.Second,
		StaleAfter:        10 * time.Second,
		HeartbeatInterval: time.Second,
		HeartbeatTimeout:  15 * time.Second,
		DisconnectResend:  300 * time.Millisecond,
		DisconnectQuiet:   500 * time.Millisecond,
		FragmentMaxAge:    10 * time.Second,
		FragmentMaxGroups: 64,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills every unset field from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	setDur(&c.RetransmitAfter, d.RetransmitAfter)
	setDur(&c.RetransmitTick, d.RetransmitTick)
	setDur(&c.StaleAfter, d.StaleAfter)
	setDur(&c.HeartbeatInterval, d.HeartbeatInterval)
	setDur(&c.HeartbeatTimeout, d.HeartbeatTimeout)
	setDur(&c.DisconnectResend, d.DisconnectResend)
	setDur(&c.DisconnectQuiet, d.DisconnectQuiet)
	setDur(&c.FragmentMaxAge, d.FragmentMaxAge)
	if c.FragmentMaxGroups <= 0 {
		c.FragmentMaxGroups = d.FragmentMaxGroups
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

func setDur(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}
