package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parley"

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "socket_connections",
		Help:      "Live socket sessions.",
	})

	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "socket_events_total",
		Help:      "Inbound socket events by name and outcome.",
	}, []string{"event", "outcome"})

	Signals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_signals_total",
		Help:      "Relayed call signals by event and outcome.",
	}, []string{"event", "outcome"})

	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "socket_admissions_total",
		Help:      "Socket admission attempts by outcome.",
	}, []string{"outcome"})
)

const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
	OutcomeRejected  = "rejected"
)
