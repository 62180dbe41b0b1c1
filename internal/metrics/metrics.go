// Package metrics exposes the engine's Prometheus instruments. Counters
// follow the RED shape: request/transition rates, errors, and refresh
// duration, plus gauges for realtime fanout.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routing_http_requests_total",
		Help: "HTTP requests served.",
	})

	HTTPErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routing_http_errors_total",
		Help: "HTTP responses with status >= 400.",
	})

	TransitionsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routing_transitions_applied_total",
		Help: "Ticket transitions accepted by the validator and the store.",
	})

	TransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_transitions_rejected_total",
		Help: "Ticket transitions rejected, by reason.",
	}, []string{"reason"})

	FeedRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routing_feed_refreshes_total",
		Help: "Successful full-snapshot feed refreshes.",
	})

	FeedRefreshErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routing_feed_refresh_errors_total",
		Help: "Feed refreshes that failed and left last-known-good data.",
	})

	FeedRefreshSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "routing_feed_refresh_seconds",
		Help:    "Latency of full-snapshot feed fetches.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	RealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "routing_realtime_clients",
		Help: "Currently connected realtime clients.",
	})

	OutboxEventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routing_outbox_events_published_total",
		Help: "Change-notification events drained from the outbox and broadcast.",
	})
)
