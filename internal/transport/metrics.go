package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "arena_transport_reconnect_attempts_total",
	Help: "Channel reconnect attempts, successful or not.",
})
