package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for webhook event metrics
	webhookEventLabels = []string{"event_kind", "company_id"}
	// Labels for tracking specific pipeline actions
	pipelineActionLabels = []string{"event_kind", "company_id", "action", "error_type"}

	// Webhook Event Counters
	WebhookEventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_webhook_events_received_total",
			Help: "Total number of webhook events received, labeled by normalized event kind.",
		},
		webhookEventLabels,
	)
	WebhookEventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_webhook_events_processed_total",
			Help: "Total number of webhook events successfully processed.",
		},
		webhookEventLabels,
	)
	WebhookEventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_webhook_events_failed_total",
			Help: "Total number of webhook events that failed processing (event dropped).",
		},
		webhookEventLabels,
	)

	// Histogram for end-to-end webhook processing duration
	WebhookProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_reply_orchestrator_webhook_processing_duration_seconds",
			Help:    "Histogram of webhook event processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		webhookEventLabels,
	)

	// Counter for specific pipeline actions (opt-out, drop, escalate, ...)
	PipelineActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_pipeline_actions_total",
			Help: "Total count of specific actions taken during event processing.",
		},
		pipelineActionLabels,
	)
)

// Metrics related to database operations
var (
	dbOperationLabels = []string{"operation", "entity", "company_id", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_reply_orchestrator_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// Metrics related to AI reply generation
var (
	aiGenerationLabels = []string{"company_id", "outcome"} // outcome: reply, escalate, fallback

	aiGenerationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_reply_orchestrator_ai_generation_duration_seconds",
			Help:    "Histogram of reply-generation collaborator call durations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		aiGenerationLabels,
	)
	aiTokensUsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_ai_tokens_used_total",
			Help: "Total tokens reported by the reply-generation collaborator.",
		},
		[]string{"company_id"},
	)
)

// Metrics related to outbound sends and handoff transitions
var (
	outboundSendLabels = []string{"company_id", "kind", "status"} // kind: text, interactive

	outboundSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_outbound_sends_total",
			Help: "Total outbound send attempts through the provider API.",
		},
		outboundSendLabels,
	)
	handoffTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_handoff_transitions_total",
			Help: "Total handoff state machine transitions.",
		},
		[]string{"company_id", "transition"},
	)
	cacheChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_cache_checks_total",
			Help: "Total opt-out cache checks, labeled by cache type and result.",
		},
		[]string{"company_id", "cache_type", "result"},
	)
	statusReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_status_reconciliations_total",
			Help: "Total status reconciliation outcomes (advanced, noop, regression, unknown).",
		},
		[]string{"company_id", "outcome"},
	)
)

// Reply worker pool metrics
var (
	replyTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_reply_tasks_submitted_total",
			Help: "Total number of reply orchestration tasks submitted to the worker pool.",
		},
		[]string{"company_id"},
	)
	replyTasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_reply_orchestrator_reply_tasks_processed_total",
			Help: "Total number of reply orchestration tasks processed, labeled by final status.",
		},
		[]string{"company_id", "status"},
	)
	replyProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_reply_orchestrator_reply_processing_duration_seconds",
			Help:    "Histogram of processing durations for reply orchestration tasks.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"company_id"},
	)
	replyQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wa_reply_orchestrator_reply_queue_length",
		Help: "Approximate number of tasks waiting in the reply worker pool queue.",
	})
)

// InitMetrics configures metric collection. Metrics are auto-registered via
// promauto; this only gates the helper functions below.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// sanitizeTenant guards against unbounded label cardinality from junk input.
func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	if len(tenant) > 64 {
		return tenant[:64]
	}
	return tenant
}

// IncWebhookEventsReceived increments the received counter for an event kind.
func IncWebhookEventsReceived(eventKind, companyID string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsReceivedTotal.WithLabelValues(eventKind, sanitizeTenant(companyID)).Inc()
}

// IncWebhookEventsProcessed increments the processed counter for an event kind.
func IncWebhookEventsProcessed(eventKind, companyID string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsProcessedTotal.WithLabelValues(eventKind, sanitizeTenant(companyID)).Inc()
}

// IncWebhookEventsFailed increments the failed counter for an event kind.
func IncWebhookEventsFailed(eventKind, companyID string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsFailedTotal.WithLabelValues(eventKind, sanitizeTenant(companyID)).Inc()
}

// ObserveWebhookProcessingDuration records end-to-end webhook handling time.
func ObserveWebhookProcessingDuration(eventKind, companyID string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	WebhookProcessingDurationSeconds.WithLabelValues(eventKind, sanitizeTenant(companyID)).Observe(duration.Seconds())
}

// IncPipelineAction records a specific action taken during processing.
func IncPipelineAction(eventKind, companyID, action, errorType string) {
	if !metricsEnabled {
		return
	}
	PipelineActionsTotal.WithLabelValues(eventKind, sanitizeTenant(companyID), action, errorType).Inc()
}

// ObserveDbOperationDuration records the duration and status of a DB call.
func ObserveDbOperationDuration(operation, entity, companyID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeTenant(companyID), status).Observe(duration.Seconds())
}

// ObserveAIGeneration records one reply-generation call.
func ObserveAIGeneration(companyID, outcome string, duration time.Duration, tokensUsed int) {
	if !metricsEnabled {
		return
	}
	aiGenerationDurationSeconds.WithLabelValues(sanitizeTenant(companyID), outcome).Observe(duration.Seconds())
	if tokensUsed > 0 {
		aiTokensUsedTotal.WithLabelValues(sanitizeTenant(companyID)).Add(float64(tokensUsed))
	}
}

// IncOutboundSend records one outbound send attempt.
func IncOutboundSend(companyID, kind, status string) {
	if !metricsEnabled {
		return
	}
	outboundSendsTotal.WithLabelValues(sanitizeTenant(companyID), kind, status).Inc()
}

// IncHandoffTransition records one handoff state machine transition.
func IncHandoffTransition(companyID, transition string) {
	if !metricsEnabled {
		return
	}
	handoffTransitionsTotal.WithLabelValues(sanitizeTenant(companyID), transition).Inc()
}

// IncCacheCheck records one opt-out cache lookup result.
func IncCacheCheck(companyID, cacheType, result string) {
	if !metricsEnabled {
		return
	}
	cacheChecksTotal.WithLabelValues(sanitizeTenant(companyID), cacheType, result).Inc()
}

// IncStatusReconciliation records the outcome of one status reconciliation.
func IncStatusReconciliation(companyID, outcome string) {
	if !metricsEnabled {
		return
	}
	statusReconciliationsTotal.WithLabelValues(sanitizeTenant(companyID), outcome).Inc()
}

// IncReplyTasksSubmitted increments the reply task submission counter.
func IncReplyTasksSubmitted(companyID string) {
	if !metricsEnabled {
		return
	}
	replyTasksSubmittedTotal.WithLabelValues(sanitizeTenant(companyID)).Inc()
}

// IncReplyTasksProcessed increments the reply task processed counter.
func IncReplyTasksProcessed(companyID, status string) {
	if !metricsEnabled {
		return
	}
	replyTasksProcessedTotal.WithLabelValues(sanitizeTenant(companyID), status).Inc()
}

// ObserveReplyProcessingDuration records the duration of one reply task.
func ObserveReplyProcessingDuration(companyID string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	replyProcessingDurationSeconds.WithLabelValues(sanitizeTenant(companyID)).Observe(duration.Seconds())
}

// SetReplyQueueLength updates the reply pool queue gauge.
func SetReplyQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	replyQueueLength.Set(float64(length))
}
