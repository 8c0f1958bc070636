package ipc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricWSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overseer",
		Name:      "ipc_ws_clients",
		Help:      "Connected event-stream WebSocket clients.",
	})
	metricWSDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "ipc_ws_clients_dropped_total",
		Help:      "Event-stream clients disconnected for falling behind.",
	})
	metricEventsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "ipc_events_broadcast_total",
		Help:      "Events fanned out to the event stream.",
	})
	metricSessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "ipc_sessions_issued_total",
		Help:      "Browser session tokens issued.",
	})
)

// handleMetrics serves the Prometheus registry. Unless PublicMetrics is
// set, it demands the same credentials as the API.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.PublicMetrics {
		if _, ok := s.authorize(r); !ok {
			respondError(w, http.StatusUnauthorized, errNoToken)
			return
		}
	}
	promhttp.Handler().ServeHTTP(w, r)
}
