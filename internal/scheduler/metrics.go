package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure stages for reminders_failed_total.
const (
	stageQuery  = "query"
	stageLedger = "ledger"
	stageSend   = "send"
	stageSnooze = "snooze"
)

// Metrics holds dispatcher counters.
type Metrics struct {
	Sent         prometheus.Counter
	Duplicate    prometheus.Counter
	Failed       *prometheus.CounterVec
	Snoozed      prometheus.Counter
	Ticks        prometheus.Counter
	TickDuration prometheus.Histogram
}

// NewMetrics registers dispatcher metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sent: f.NewCounter(prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Reminders delivered after a new ledger entry was created.",
		}),
		Duplicate: f.NewCounter(prometheus.CounterOpts{
			Name: "reminders_duplicate_total",
			Help: "Due schedules skipped because the ledger entry already existed.",
		}),
		Failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_failed_total",
			Help: "Dispatch failures by stage.",
		}, []string{"stage"}),
		Snoozed: f.NewCounter(prometheus.CounterOpts{
			Name: "reminders_snoozed_total",
			Help: "Snoozed reminders sent again.",
		}),
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "ticks_total",
			Help: "Dispatcher ticks run.",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tick_duration_seconds",
			Help:    "Time spent in one dispatcher tick.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
