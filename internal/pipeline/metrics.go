package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ingestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docqa_ingests_total",
		Help: "Document ingestions by final status.",
	}, []string{"status"})

	ingestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "docqa_ingest_duration_seconds",
		Help:    "Wall time of one document ingestion.",
		Buckets: prometheus.DefBuckets,
	})

	chunksIndexed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docqa_chunks_indexed_total",
		Help: "Chunks written to the vector index.",
	})

	queriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docqa_queries_total",
		Help: "Questions asked, by outcome (answered, fallback, error).",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(ingestsTotal, ingestDuration, chunksIndexed, queriesTotal)
}
