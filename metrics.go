package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// runMetrics are gathered per run and pushed once at the end; a one-shot
// process has nothing to scrape.
type runMetrics struct {
	registry    *prometheus.Registry
	reads       *prometheus.CounterVec
	readings    *prometheus.GaugeVec
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
	outcome     *prometheus.GaugeVec
}

func newRunMetrics() *runMetrics {
	m := &runMetrics{
		registry: prometheus.NewRegistry(),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "temperature_logger_reads_total",
			Help: "Device variable reads by result.",
		}, []string{"result"}),
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "temperature_logger_reading",
			Help: "Last rescaled value per variable.",
		}, []string{"variable"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "temperature_logger_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "temperature_logger_last_success_timestamp_seconds",
			Help: "Unix time of the last run that submitted a record.",
		}),
		outcome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "temperature_logger_run_outcome",
			Help: "1 for the outcome of the last run, 0 otherwise.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.reads, m.readings, m.duration, m.lastSuccess, m.outcome)
	return m
}

func (m *runMetrics) readSucceeded(name string, value float64) {
	m.reads.WithLabelValues("ok").Inc()
	m.readings.WithLabelValues(name).Set(value)
}

func (m *runMetrics) readFailed() {
	m.reads.WithLabelValues("error").Inc()
}

func (m *runMetrics) finish(start time.Time, err error) {
	m.duration.Set(time.Since(start).Seconds())
	for _, o := range []string{"done", "connection_error", "read_error", "submission_error", "error"} {
		m.outcome.WithLabelValues(o).Set(0)
	}
	m.outcome.WithLabelValues(outcome_label(err)).Set(1)
	if err == nil {
		m.lastSuccess.SetToCurrentTime()
	}
}

func outcome_label(err error) string {
	switch exit_code(err) {
	case EXIT_OK:
		return "done"
	case EXIT_CONNECTION:
		return "connection_error"
	case EXIT_READ:
		return "read_error"
	case EXIT_SUBMISSION:
		return "submission_error"
	default:
		return "error"
	}
}

// push sends the registry to a Pushgateway grouped by device.
func (m *runMetrics) push(ctx context.Context, gatewayURL, job, deviceID string) error {
	return push.New(gatewayURL, job).
		Gatherer(m.registry).
		Grouping("device", deviceID).
		PushContext(ctx)
}
