package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Thumbnail store metrics
var (
	StoreQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_store_queries_total",
			Help: "Total number of thumbnail store queries",
		},
		[]string{"operation", "status"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_store_query_duration_seconds",
			Help:    "Thumbnail store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	StoreSlotColumns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_store_slot_columns",
			Help: "Number of slot columns currently present in the thumbnail store",
		},
	)
)

// Catalog document metrics
var (
	DocumentFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_document_flushes_total",
			Help: "Total number of catalog document flushes",
		},
		[]string{"status"},
	)

	DocumentEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_document_entries",
			Help: "Number of entries held by the catalog document",
		},
	)
)

// Pipeline metrics
var (
	PipelineGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_pipeline_thumbnails_generated_total",
			Help: "Total number of thumbnails generated by the pipeline",
		},
		[]string{"kind"},
	)

	PipelineFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_pipeline_failures_total",
			Help: "Total number of soft pipeline failures",
		},
		[]string{"kind", "reason"},
	)

	PipelineProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_pipeline_probe_duration_seconds",
			Help:    "Media probe duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	PipelineProcessTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_pipeline_process_timeouts_total",
			Help: "Total number of external processes killed after timeout",
		},
	)
)

// Segmenter metrics
var (
	SegmentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_segment_requests_total",
			Help: "Total number of on-demand segment requests",
		},
		[]string{"status"},
	)

	SegmentEncodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_catalog_segment_encode_duration_seconds",
			Help:    "Segment encode duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Work queue metrics
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_queue_depth",
			Help: "Number of items currently waiting in the work queue",
		},
	)

	QueueDedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_queue_dedup_hits_total",
			Help: "Total number of enqueues dropped because the key was already queued",
		},
	)
)
