package transfer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transferInvocations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reposync_transfer_invocations_total",
			Help: "Total number of transfer tool invocations",
		},
	)

	transferFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reposync_transfer_failures_total",
			Help: "Total number of failed transfer tool invocations",
		},
	)
)
