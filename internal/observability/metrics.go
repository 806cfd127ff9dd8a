package observability

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DirectionClientToHost = "client_to_host"
	DirectionHostToClient = "host_to_client"
)

var (
	registerOnce sync.Once

	relayedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersync",
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Messages handled by the relay, by direction and message kind.",
		},
		[]string{"direction", "kind"},
	)
	malformedPayloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersync",
			Subsystem: "relay",
			Name:      "malformed_total",
			Help:      "Payloads dropped because they failed to decode.",
		},
		[]string{"direction"},
	)
	deferredDrains = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peersync",
			Subsystem: "relay",
			Name:      "deferred_drains_total",
			Help:      "Host ticks that hit the per-tick message cap and left messages queued.",
		},
	)
	lobbySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "peersync",
			Subsystem: "lobby",
			Name:      "players",
			Help:      "Players currently registered in the host lobby.",
		},
	)
	mirrorSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "peersync",
			Subsystem: "mirror",
			Name:      "avatars",
			Help:      "Remote avatars currently mirrored by the local client.",
		},
	)
	connectionVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersync",
			Subsystem: "transport",
			Name:      "verdicts_total",
			Help:      "Connection handshakes answered by the host, by transport and outcome.",
		},
		[]string{"handler", "accepted"},
	)
	connectedPeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "peersync",
			Subsystem: "transport",
			Name:      "peers",
			Help:      "Peers currently admitted by the host, by transport.",
		},
		[]string{"handler"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(relayedMessages, malformedPayloads, deferredDrains, lobbySize, mirrorSize, connectionVerdicts, connectedPeers)
	})
}

func RecordRelayed(direction, kind string) {
	RegisterMetrics()
	relayedMessages.WithLabelValues(direction, kind).Inc()
}

func RecordMalformed(direction string) {
	RegisterMetrics()
	malformedPayloads.WithLabelValues(direction).Inc()
}

func RecordDeferredDrain() {
	RegisterMetrics()
	deferredDrains.Inc()
}

func SetLobbySize(n int) {
	RegisterMetrics()
	lobbySize.Set(float64(n))
}

func SetMirrorSize(n int) {
	RegisterMetrics()
	mirrorSize.Set(float64(n))
}

func RecordVerdict(handler string, accepted bool) {
	RegisterMetrics()
	connectionVerdicts.WithLabelValues(handler, strconv.FormatBool(accepted)).Inc()
}

func PeerAttached(handler string) {
	RegisterMetrics()
	connectedPeers.WithLabelValues(handler).Inc()
}

func PeerDetached(handler string) {
	RegisterMetrics()
	connectedPeers.WithLabelValues(handler).Dec()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
