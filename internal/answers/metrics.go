package answers

import (
	"github.com/prometheus/client_golang/prometheus"

	tallymetrics "github.com/JaimeStill/tally/pkg/metrics"
)

type metrics struct {
	appended       prometheus.Counter
	rollovers      prometheus.Counter
	retries        prometheus.Counter
	overflows      prometheus.Counter
	appendDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "answers",
			Name:      name,
			Help:      help,
		}
	}

	m := &metrics{
		appended:  prometheus.NewCounter(opts("appended_total", "Answers appended to the log")),
		rollovers: prometheus.NewCounter(opts("shards_created_total", "Shards created by appends")),
		retries:   prometheus.NewCounter(opts("append_retries_total", "Appends retried after losing a race")),
		overflows: prometheus.NewCounter(opts("overflows_total", "Answers rejected for exceeding the shard bound")),
		appendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "answers",
			Name:      "append_duration_seconds",
			Help:      "Time to append one batch, including retries",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.appended, m.rollovers, m.retries, m.overflows, m.appendDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
