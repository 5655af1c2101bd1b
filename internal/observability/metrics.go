package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jamwire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jamwire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jamwire",
			Subsystem: "protocol",
			Name:      "packets_total",
			Help:      "Datagrams handled by direction and packet kind.",
		},
		[]string{"direction", "kind"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jamwire",
			Subsystem: "protocol",
			Name:      "decode_errors_total",
			Help:      "Discarded datagrams by decode failure reason.",
		},
		[]string{"reason"},
	)
	retransmits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jamwire",
			Subsystem: "session",
			Name:      "retransmits_total",
			Help:      "Control messages re-sent for lack of acknowledgement.",
		},
	)
	staleAcks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jamwire",
			Subsystem: "session",
			Name:      "stale_acks_total",
			Help:      "Pending control messages dropped unacknowledged.",
		},
	)
	fragmentErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jamwire",
			Subsystem: "session",
			Name:      "fragment_errors_total",
			Help:      "Split message fragments rejected as out of bounds.",
		},
	)
	roundTrip = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jamwire",
			Subsystem: "session",
			Name:      "round_trip_seconds",
			Help:      "Ping round trip time in seconds.",
			Buckets:   []float64{.005, .01, .02, .04, .06, .08, .1, .15, .2, .3, .5, 1},
		},
		[]string{"kind"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jamwire",
			Subsystem: "session",
			Name:      "state_transitions_total",
			Help:      "Connection state transitions by session kind and phase.",
		},
		[]string{"kind", "phase"},
	)

	// audio datagrams skip the label lookup
	audioIn  = packets.WithLabelValues("in", "audio")
	audioOut = packets.WithLabelValues("out", "audio")
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			packets, decodeErrors,
			retransmits, staleAcks, fragmentErrors,
			roundTrip, transitions,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacket(direction, kind string) {
	RegisterMetrics()
	if kind == "audio" {
		switch direction {
		case "in":
			audioIn.Inc()
			return
		case "out":
			audioOut.Inc()
			return
		}
	}
	packets.WithLabelValues(direction, kind).Inc()
}

// RecordAudioIn counts one received audio datagram.
func RecordAudioIn() {
	RegisterMetrics()
	audioIn.Inc()
}

func RecordDecodeError(reason string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(reason).Inc()
}

func RecordRetransmits(n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	retransmits.Add(float64(n))
}

func RecordStaleAcks(n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	staleAcks.Add(float64(n))
}

func RecordFragmentError() {
	RegisterMetrics()
	fragmentErrors.Inc()
}

func RecordRoundTrip(kind string, d time.Duration) {
	RegisterMetrics()
	roundTrip.WithLabelValues(kind).Observe(d.Seconds())
}

func RecordStateTransition(kind, phase string) {
	RegisterMetrics()
	transitions.WithLabelValues(kind, phase).Inc()
}
