// Package metrics holds the Prometheus metrics for ingestion and dispatch.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "citypulse"

type Metrics struct {
	registry *prometheus.Registry

	ScrapesTotal       *prometheus.CounterVec
	ItemsProcessed     *prometheus.CounterVec
	ItemsSkipped       *prometheus.CounterVec
	CityRuns           *prometheus.CounterVec
	CityDuration       *prometheus.HistogramVec
	UnitsDispatched    *prometheus.CounterVec
	UnitsFailed        *prometheus.CounterVec
	LastIngestUnixTime prometheus.Gauge
}

// New registers every metric on reg. A nil reg gets a fresh registry with
// the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScrapesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scrape",
			Name:      "total",
			Help:      "Scrapes by category and envelope source",
		}, []string{"category", "source"}),
		ItemsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "items_processed_total",
			Help:      "Items stored by city, category and provenance",
		}, []string{"city", "category", "provenance"}),
		ItemsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "items_skipped_total",
			Help:      "Items that failed to be stored",
		}, []string{"city", "category"}),
		CityRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "city_runs_total",
			Help:      "City ingestion runs by status",
		}, []string{"city", "status"}),
		CityDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "city_duration_seconds",
			Help:      "Duration of one city ingestion",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"city"}),
		UnitsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "units_dispatched_total",
			Help:      "City units handed to a dispatcher",
		}, []string{"dispatcher"}),
		UnitsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "units_failed_total",
			Help:      "City units whose handler returned an error",
		}, []string{"dispatcher"}),
		LastIngestUnixTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last full ingestion cycle",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
