package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_rooms_active",
		Help: "Thread rooms with at least one subscriber on this instance.",
	})
	subscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_subscribers_active",
		Help: "Connections joined to at least one room.",
	})
	eventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_emitted_total",
			Help: "Events fanned out to local rooms, by type.",
		},
		[]string{"type"},
	)
	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Per-subscriber deliveries, by result.",
		},
		[]string{"result"},
	)
	relayFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_relay_failures_total",
			Help: "Relay errors, by operation.",
		},
		[]string{"op"},
	)
)
