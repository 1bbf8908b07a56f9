package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommissionPayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hgnc_commission_payouts_total",
			Help: "Total number of commission shares credited, by slot",
		},
		[]string{"slot"},
	)

	FulfillmentStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hgnc_fulfillment_steps_total",
			Help: "Order fulfillment step outcomes",
		},
		[]string{"step", "outcome"},
	)

	GoldTransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hgnc_gold_transfers_total",
			Help: "Gold transfers by outcome",
		},
		[]string{"outcome"},
	)

	PointDecayUsersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hgnc_point_decay_users_total",
			Help: "Users whose points were released to gold by the daily decay",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hgnc_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
