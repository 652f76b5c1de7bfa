package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArticlesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_articles_ingested_total",
		Help: "The total number of articles inserted from feeds",
	}, []string{"source"})

	FeedFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_feed_fetch_errors_total",
		Help: "The total number of failed feed fetches",
	}, []string{"source"})

	ClustersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_clusters_created_total",
		Help: "The total number of clusters created",
	})

	ClustersDissolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_clusters_dissolved_total",
		Help: "The total number of clusters dissolved by the cleanup pass",
	})

	CascadePairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_cascade_pairs_total",
		Help: "Candidate pairs surviving each cascade stage",
	}, []string{"stage"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	BiasAnalyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_bias_analyses_total",
		Help: "The total number of cluster bias analyses",
	}, []string{"status"})

	ArticlesIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_articles_indexed_total",
		Help: "The total number of articles pushed to the full-text index",
	})

	UnclusteredBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_unclustered_backlog_size",
		Help: "Number of articles awaiting clustering",
	})
)
