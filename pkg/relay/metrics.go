package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_active_sessions",
		Help: "The total number of active sessions",
	})

	metricActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_active_connections",
		Help: "The total number of active connections",
	})

	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_sessions",
		Help: "The total number of created sessions",
	})

	metricConnectionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_connections",
		Help: "The total number of created connections",
	})

	metricMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_messages",
		Help: "The total number of messages exchanged",
	}, []string{"type"})

	metricTurnRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_turn_requests",
		Help: "The total number of answered turn requests",
	})

	metricHttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Count of all HTTP requests",
	}, []string{"code", "method"})

	metricHttpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "http_request_duration_seconds",
		Help: "Duration of all HTTP requests",
	}, []string{"code", "method"})
)
