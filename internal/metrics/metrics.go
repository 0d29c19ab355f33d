// Package metrics registers the Prometheus collectors for the chat core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts persisted messages by kind (text, images, gif).
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchat_messages_sent_total",
		Help: "Messages persisted, by attachment kind.",
	}, []string{"kind"})

	// PreviewFetches counts terminal preview outcomes.
	PreviewFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchat_preview_fetches_total",
		Help: "Link preview fetch outcomes (success, error, no_preview, unsafe).",
	}, []string{"outcome"})

	// PreviewCacheHits counts ProcessURL calls short-circuited by the cache.
	PreviewCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_preview_cache_hits_total",
		Help: "ProcessURL calls answered from the preview cache.",
	})

	// PushSends counts per-subscription push outcomes.
	PushSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchat_push_sends_total",
		Help: "Per-subscription push outcomes (success, gone, error).",
	}, []string{"outcome"})

	// PushJobsSuppressed counts dispatch jobs absorbed by the debounce window.
	PushJobsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_push_jobs_suppressed_total",
		Help: "Push jobs absorbed into an already scheduled debounce window.",
	})
)
