// Package metrics exposes pipeline counters on a private prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	documentsIngested *prometheus.CounterVec
	chunksIndexed     prometheus.Counter
	retries           *prometheus.CounterVec
	queryDuration     prometheus.Histogram
	answers           *prometheus.CounterVec
}

// New creates a collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		documentsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kv_documents_ingested_total",
			Help: "Documents processed by the ingestion pipeline, by outcome.",
		}, []string{"status"}),
		chunksIndexed: f.NewCounter(prometheus.CounterOpts{
			Name: "kv_chunks_indexed_total",
			Help: "Chunks written to the vector index.",
		}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kv_external_call_retries_total",
			Help: "Retried calls to external services.",
		}, []string{"service"}),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kv_query_duration_seconds",
			Help:    "Retrieval latency including question embedding.",
			Buckets: prometheus.DefBuckets,
		}),
		answers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kv_answers_total",
			Help: "Answer generations, by outcome.",
		}, []string{"status"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) DocumentIngested(ok bool, chunks int) {
	if c == nil {
		return
	}
	c.documentsIngested.WithLabelValues(status(ok)).Inc()
	if ok {
		c.chunksIndexed.Add(float64(chunks))
	}
}

func (c *Collector) Retry(service string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(service).Inc()
}

func (c *Collector) ObserveQuery(d time.Duration) {
	if c == nil {
		return
	}
	c.queryDuration.Observe(d.Seconds())
}

func (c *Collector) Answer(ok bool) {
	if c == nil {
		return
	}
	c.answers.WithLabelValues(status(ok)).Inc()
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
