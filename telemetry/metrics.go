// Package telemetry provides Prometheus metrics, tracing setup, and
// correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_chat_messages_total",
		Help: "Chat messages fetched and classified",
	})

	SpamDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_spam_detected_total",
		Help: "Messages classified as spam",
	})

	// ActionsTotal is labeled by kind: deleted, timeout, banned.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_actions_total",
		Help: "Successful moderation actions",
	}, []string{"kind"})

	ActionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_action_failures_total",
		Help: "Failed moderation action attempts",
	})

	PlatformCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_platform_calls_total",
		Help: "Platform API calls (message list plus actions)",
	})

	AICallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_ai_calls_total",
		Help: "AI fallback classification calls",
	})

	AIOverridesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_ai_overrides_total",
		Help: "Messages reclassified as spam by the AI fallback",
	})

	PollCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_poll_cycles_total",
		Help: "Completed poll cycles",
	})

	TokenRefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_token_refreshes_total",
		Help: "Successful bot token refreshes",
	})

	TokenRefreshFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_token_refresh_failures_total",
		Help: "Failed bot token refreshes",
	})

	PollCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "warden_poll_cycle_duration_seconds",
		Help:    "Poll cycle duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_session_active",
		Help: "1 while a moderation session is running",
	})

	ModerationLogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_moderation_log_size",
		Help: "Current in-memory moderation log length",
	})

	CredentialPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_credential_pool_size",
		Help: "Bot identities loaded in the credential pool",
	})
)

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a child context carrying a correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or "".
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns the default logger, tagged with the correlation id
// when one is present on the context.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
