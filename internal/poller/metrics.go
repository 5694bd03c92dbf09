package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squadbot_poll_cycles_total",
			Help: "Number of completed poll cycles per source",
		},
		[]string{"source"},
	)

	fetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squadbot_poll_fetch_errors_total",
			Help: "Number of failed collection fetches per source",
		},
		[]string{"source", "collection"},
	)

	eventsAnnounced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squadbot_events_announced_total",
			Help: "Number of activity events handed to the announcer",
		},
		[]string{"source"},
	)
)
