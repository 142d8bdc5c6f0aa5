package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	tallymetrics "github.com/JaimeStill/tally/pkg/metrics"
)

type metrics struct {
	passes          *prometheus.CounterVec
	passDuration    prometheus.Histogram
	expFailures     prometheus.Counter
	outputs         prometheus.Counter
	eventsRecorded  *prometheus.CounterVec
	answersRecorded *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "stats",
			Name:      "aggregation_passes_total",
			Help:      "Aggregation passes by result",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "stats",
			Name:      "aggregation_pass_duration_seconds",
			Help:      "Duration of a full aggregation pass",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		expFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "stats",
			Name:      "exploration_failures_total",
			Help:      "Explorations whose aggregation failed after retries",
		}),
		outputs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "stats",
			Name:      "calculation_outputs_written_total",
			Help:      "Calculation outputs published",
		}),
		eventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "stats",
			Name:      "events_recorded_total",
			Help:      "Visit events recorded by type",
		}, []string{"type"}),
		answersRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "stats",
			Name:      "answers_recorded_total",
			Help:      "Answers recorded by classification category",
		}, []string{"category"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.passes, m.passDuration, m.expFailures, m.outputs, m.eventsRecorded, m.answersRecorded,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
