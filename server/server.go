package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/onnwee/chat-warden/config"
	"github.com/onnwee/chat-warden/moderator"
	"github.com/onnwee/chat-warden/telemetry"
)

// controlEndpoints are the state-changing routes that get admin auth and rate
// limiting.
var controlEndpoints = map[string]bool{
	"/session/start":     true,
	"/session/stop":      true,
	"/moderation/action": true,
}

// NewMux returns the HTTP handler with all routes. The provided context bounds
// the rate limiter cleanup goroutine and SSE streams.
func NewMux(ctx context.Context, dbx *sql.DB, cfg *config.Config, orch *moderator.Orchestrator, oc *oauth2.Config) http.Handler {
	authCfg := loadAuthConfig()
	rateLimiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	corsCfg := loadCORSConfig()

	handlers := NewHandlers(ctx, dbx, cfg, orch, oc)

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/auth/google/start", handlers.HandleGoogleOAuthStart)
	mux.HandleFunc("/auth/google/callback", handlers.HandleGoogleOAuthCallback)

	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)

	mux.HandleFunc("/session/start", handlers.HandleSessionStart)
	mux.HandleFunc("/session/stop", handlers.HandleSessionStop)
	mux.HandleFunc("/session/status", handlers.HandleSessionStatus)

	mux.HandleFunc("/moderation/log", handlers.HandleModerationLog)
	mux.HandleFunc("/moderation/export", handlers.HandleModerationExport)
	mux.HandleFunc("/moderation/action", handlers.HandleModerationAction)

	// State-changing endpoints get auth plus rate limiting; reads stay open.
	selectiveHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if controlEndpoints[r.URL.Path] {
			adminAuth(rateLimitMiddleware(mux, rateLimiter), authCfg).ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Correlation id + span wrapper.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.NewString()
		}
		reqCtx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		reqCtx, span := telemetry.StartSpan(reqCtx, r.Method+" "+r.URL.Path,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
			))
		defer span.End()

		telemetry.LoggerWithCorr(reqCtx).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selectiveHandler.ServeHTTP(rec, r.WithContext(reqCtx))

		span.SetAttributes(attribute.Int("http.status_code", rec.statusCode))
		if rec.statusCode >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", rec.statusCode))
		}
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher when the underlying writer supports it (SSE).
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, dbx *sql.DB, cfg *config.Config, orch *moderator.Orchestrator, oc *oauth2.Config, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     NewMux(ctx, dbx, cfg, orch, oc),
		ReadTimeout: 5 * time.Second,
		// No WriteTimeout: the SSE log tail holds its response open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
