// Package metrics exposes the controller's Prometheus counters and
// gauges, scraped from the same health server cmd/controller opens.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// StepTotal counts every pipeline step handled, by step name and
// outcome (return/permanent/temporary).
var StepTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "django_pipeline_step_total",
	Help: "Total pipeline steps handled, by step and outcome.",
}, []string{"step", "outcome"})

// MigrationsInProgress gauges how many Django objects currently carry a
// migration-step label other than ready (an object at done is counted
// until it is finalized back to ready).
var MigrationsInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "django_migrations_in_progress",
	Help: "Number of Django objects with an in-flight migration pipeline.",
})

// MonitorDrift counts drift detections raised by the monitor daemon.
var MonitorDrift = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "django_monitor_drift_total",
	Help: "Total drift detections that re-initiated a migration pipeline.",
})

func init() {
	prometheus.MustRegister(StepTotal, MigrationsInProgress, MonitorDrift)
}
