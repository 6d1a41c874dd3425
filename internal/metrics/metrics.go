// Package metrics holds the Prometheus collectors for the trending pipeline.
// They register on the default registry and are served by the ops HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts finished cycles by trigger and outcome.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendbot_cycles_total",
		Help: "Total number of publication cycles by trigger and outcome",
	}, []string{"trigger", "outcome"})

	// CycleDuration measures a whole cycle from gate acquire to release.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trendbot_cycle_duration_seconds",
		Help:    "Publication cycle duration in seconds",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	// CycleRunning is 1 while a cycle holds the gate.
	CycleRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trendbot_cycle_running",
		Help: "Whether a publication cycle is currently running",
	})

	// CycleRejected counts manual triggers refused because a cycle was running.
	CycleRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trendbot_cycle_rejected_total",
		Help: "Total number of triggers rejected while a cycle was running",
	})

	// SourceFetches counts adapter fetches by source and result (ok, empty, unavailable).
	SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendbot_source_fetches_total",
		Help: "Total number of source fetches by source and result",
	}, []string{"source", "result"})

	// SourceLatency measures adapter fetch latency.
	SourceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trendbot_source_fetch_seconds",
		Help:    "Source fetch latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	// SourceItems is the item count from the last fetch per source.
	SourceItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trendbot_source_items",
		Help: "Items returned by the last fetch per source",
	}, []string{"source"})

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trendbot_source_breaker_state",
		Help: "Circuit breaker state per source (0 closed, 1 half-open, 2 open)",
	}, []string{"source"})

	// EnrichFailures counts per-concern lookup failures (details, watchers).
	EnrichFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendbot_enrich_failures_total",
		Help: "Total number of enrichment lookup failures by kind and concern",
	}, []string{"kind", "concern"})

	// CacheLookups counts lookup cache hits and misses.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendbot_cache_lookups_total",
		Help: "Total number of lookup cache reads by concern and result",
	}, []string{"concern", "result"})

	// DeliveryCalls counts publish calls by destination, part (heading, chunk) and result.
	DeliveryCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendbot_delivery_calls_total",
		Help: "Total number of delivery calls by destination, part and result",
	}, []string{"destination", "part", "result"})

	// CardsPublished counts cards delivered successfully per kind.
	CardsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendbot_cards_published_total",
		Help: "Total number of display cards delivered by kind",
	}, []string{"kind"})

	// CommandsHandled counts chat commands by name and result (ok, failed, panic).
	CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendbot_commands_total",
		Help: "Total number of chat commands handled by command and result",
	}, []string{"command", "result"})

	// AlertsSent counts ops alerts by result (sent, deduped, limited, failed).
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendbot_alerts_total",
		Help: "Total number of ops alerts by result",
	}, []string{"result"})
)

// Result label values shared by several collectors.
const (
	ResultOK          = "ok"
	ResultEmpty       = "empty"
	ResultUnavailable = "unavailable"
	ResultFailed      = "failed"
	ResultHit         = "hit"
	ResultMiss        = "miss"
	ResultPanic       = "panic"
)
