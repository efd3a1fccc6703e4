package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the lending events worth alerting on. Borrow conflicts are
// expected under contention; the counter exists to spot abnormal rates, not
// to treat them as errors.
type Metrics struct {
	BorrowConflicts   prometheus.Counter
	LoansSweptOverdue prometheus.Counter
	RequestsPromoted  prometheus.Counter
	RequestsExpired   prometheus.Counter
	SweepRowFailures  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BorrowConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "lending_borrow_conflicts_total",
			Help: "Borrow attempts that lost the availability race.",
		}),
		LoansSweptOverdue: factory.NewCounter(prometheus.CounterOpts{
			Name: "lending_loans_swept_overdue_total",
			Help: "Loan records transitioned to OVERDUE by the sweep.",
		}),
		RequestsPromoted: factory.NewCounter(prometheus.CounterOpts{
			Name: "lending_requests_promoted_total",
			Help: "Reservation requests promoted to NOTIFIED.",
		}),
		RequestsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "lending_requests_expired_total",
			Help: "Notified requests expired by the sweep.",
		}),
		SweepRowFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "lending_sweep_row_failures_total",
			Help: "Rows skipped by a sweep because of a per-row error.",
		}),
	}
}
