package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bounty_keeper_build_info",
			Help: "Build information of the bounty keeper",
		},
		[]string{"version", "commit", "date"},
	)

	CycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_keeper_cycle_total",
			Help: "Total number of distribution cycles by outcome",
		},
		[]string{"token", "status"}, // status: distributed, dust, nothing_locked, cooldown, error
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bounty_keeper_cycle_duration_seconds",
			Help:    "Duration of distribution cycles",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~102s
		},
	)

	PayoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bounty_keeper_payouts_total",
			Help: "Total number of grant payouts sent",
		},
	)

	DistributedAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_keeper_distributed_amount_total",
			Help: "Total settlement token base units sent, by destination",
		},
		[]string{"token", "destination"}, // destination: investors, creator
	)

	LastCycleTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bounty_keeper_last_cycle_timestamp_seconds",
			Help: "Unix time of the last committed cycle per token",
		},
		[]string{"token"},
	)

	CyclePanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bounty_keeper_cycle_panics_total",
			Help: "Total number of recovered panics in the distribution loop",
		},
	)

	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_keeper_sink_errors_total",
			Help: "Total number of failed history or archive writes",
		},
		[]string{"sink"},
	)
)

// RecordCycle records the outcome and duration of one cycle.
func RecordCycle(token, status string, duration time.Duration) {
	CycleTotal.WithLabelValues(token, status).Inc()
	CycleDuration.Observe(duration.Seconds())
}

// RecordDistribution records what a committed cycle sent.
func RecordDistribution(token string, payouts int, investors, creator uint64, at time.Time) {
	PayoutsTotal.Add(float64(payouts))
	DistributedAmountTotal.WithLabelValues(token, "investors").Add(float64(investors))
	DistributedAmountTotal.WithLabelValues(token, "creator").Add(float64(creator))
	LastCycleTimestamp.WithLabelValues(token).Set(float64(at.Unix()))
}
