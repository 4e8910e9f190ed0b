package controller

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var deployDurationBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

type metrics struct {
	deployResults  *prometheus.CounterVec
	deployDuration prometheus.Histogram
	messages       *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, queue *Queue) *metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &metrics{
		deployResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dockerdeploy",
			Subsystem: "controller",
			Name:      "deploy_results_total",
			Help:      "Number of deploy pipeline outcomes",
		}, []string{"outcome"}),
		deployDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dockerdeploy",
			Subsystem: "controller",
			Name:      "deploy_duration_seconds",
			Help:      "Duration of deploy pipeline runs",
			Buckets:   deployDurationBuckets,
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dockerdeploy",
			Subsystem: "controller",
			Name:      "messages_total",
			Help:      "Number of messages processed by kind",
		}, []string{"kind"}),
	}

	if err := reg.Register(m.deployResults); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				m.deployResults = existing
			}
		}
	}
	if err := reg.Register(m.deployDuration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Histogram); ok {
				m.deployDuration = existing
			}
		}
	}
	if err := reg.Register(m.messages); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				m.messages = existing
			}
		}
	}

	if queue != nil {
		// A second registration keeps the first queue's gauge; only one
		// controller runs per process.
		_ = reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "dockerdeploy",
			Subsystem: "controller",
			Name:      "queue_length",
			Help:      "Messages waiting for the controller",
		}, func() float64 { return float64(queue.Len()) }))
	}
	return m
}

func (m *metrics) recordMessage(msg Message) {
	m.messages.With(prometheus.Labels{"kind": msg.Kind()}).Inc()
}

func (m *metrics) recordDeploy(outcome string, duration time.Duration) {
	m.deployResults.With(prometheus.Labels{"outcome": outcome}).Inc()
	m.deployDuration.Observe(duration.Seconds())
}
