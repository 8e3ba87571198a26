package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inboundProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routing",
			Name:      "inbound_processed_total",
			Help:      "Inbound messages processed, by outcome.",
		},
		[]string{"outcome"}, // "answered", "unknown_user", "inactive_user", "spam", "empty", "error"
	)

	outboundSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routing",
			Name:      "outbound_sent_total",
			Help:      "Outbound send attempts, by result.",
		},
		[]string{"result"}, // "success", "failed", "queued_for_retry"
	)

	agentRequestDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "routing",
			Name:      "agent_request_duration_seconds",
			Help:      "Duration of responder (agent) calls.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	providerRequestDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "routing",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider send calls.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	segmentsProducedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "routing",
			Name:      "reply_segments_total",
			Help:      "Total reply segments produced.",
		},
	)
)
