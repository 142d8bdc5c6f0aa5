package classifiers

import (
	"github.com/prometheus/client_golang/prometheus"

	tallymetrics "github.com/JaimeStill/tally/pkg/metrics"
)

type metrics struct {
	trainings        *prometheus.CounterVec
	trainingDuration *prometheus.HistogramVec
	predictions      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		trainings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "classifier",
			Name:      "trainings_total",
			Help:      "Classifier training runs by algorithm and result",
		}, []string{"algorithm", "result"}),
		trainingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "classifier",
			Name:      "training_duration_seconds",
			Help:      "Time spent training a classifier model",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"algorithm"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: tallymetrics.Namespace,
			Subsystem: "classifier",
			Name:      "predictions_total",
			Help:      "Predictions by algorithm and outcome",
		}, []string{"algorithm", "outcome"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.trainings, m.trainingDuration, m.predictions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
