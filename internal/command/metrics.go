package command

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatchedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "squadbot_commands_dispatched_total",
		Help: "Number of chat commands dispatched to a handler",
	},
	[]string{"command"},
)
