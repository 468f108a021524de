// Command chat-warden is the main entrypoint for the live chat moderation
// service. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Loads bot identities into the credential pool (stored rows preferred,
//     BOT_IDENTITIES env fallback) and starts the background token refresher.
//   - Exposes the HTTP API: session control, moderation log (with SSE tail),
//     bot onboarding via Google OAuth, /healthz, /readyz, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-warden/authority"
	"github.com/onnwee/chat-warden/config"
	"github.com/onnwee/chat-warden/credpool"
	"github.com/onnwee/chat-warden/db"
	"github.com/onnwee/chat-warden/moderator"
	"github.com/onnwee/chat-warden/oauth"
	"github.com/onnwee/chat-warden/server"
	"github.com/onnwee/chat-warden/spam"
	"github.com/onnwee/chat-warden/telemetry"
	"github.com/onnwee/chat-warden/youtubeapi"
)

func main() {
	// Load .env if present (local dev convenience; production uses real env).
	_ = godotenv.Load(".env")

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateModerationReady(); err != nil {
		slog.Warn("moderation credentials incomplete; token refresh and onboarding are disabled", slog.Any("err", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT.
	shutdownTracing, err := telemetry.InitTracing(ctx)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown error", slog.Any("err", err))
		}
	}()

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(ctx, database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Credential pool: Google refresh exchange plus persistence of rotated
	// tokens back to Postgres.
	oc := oauth.GoogleConfig(cfg)
	var refreshFn credpool.RefreshFunc
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		refreshFn = oauth.RefreshFuncFor(oc)
	}
	pool := credpool.New(refreshFn, func(pctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error {
		return db.UpdateBotTokens(pctx, database, id, accessToken, refreshToken, expiry)
	})
	_ = pool.LoadRemote(ctx, dbIdentityStore{database})
	telemetry.CredentialPoolSize.Set(float64(pool.Size()))

	api := &youtubeapi.Client{Tokens: pool}
	auth := authority.New(api)

	orch := moderator.New(api, auth, pool)
	if detector := spam.NewAIDetector(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel); detector != nil {
		orch.AI = detector
		slog.Info("ai spam fallback enabled", slog.String("model", cfg.OpenAIModel))
	}
	orch.OnSpamDetected = func(count int) {
		slog.Info("spam detected", slog.Int("new_entries", count))
	}
	orch.Audit = func(actx context.Context, liveChatID string, e moderator.LogEntry) {
		err := db.UpsertModerationEntry(actx, database, liveChatID, e.ID, string(e.Kind),
			e.AuthorName, e.AuthorChannelID, e.AuthorPhotoURL, e.Text, e.Score,
			strings.Join(e.Keywords, ","), e.ActionTaken, e.DetectedAt)
		if err != nil {
			slog.Warn("moderation audit write failed", slog.String("message_id", e.ID), slog.Any("err", err))
		}
	}

	if refreshFn != nil {
		oauth.StartRefresher(ctx, pool, 10*time.Minute, 20*time.Minute)
	}

	// Heartbeat for external liveness dashboards.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.SetHeartbeat(ctx, database, "warden:heartbeat")
			}
		}
	}()

	// Optional unattended start: begin moderating STREAM_URL with the
	// configured default settings as soon as the service boots.
	if streamURL := os.Getenv("STREAM_URL"); streamURL != "" {
		go func() {
			settings := moderator.Settings{
				AutoDelete:      cfg.AutoDelete,
				AutoTimeout:     cfg.AutoTimeout,
				AutoBan:         cfg.AutoBan,
				AIDetection:     cfg.AIDetection,
				SpamThreshold:   cfg.SpamThreshold,
				Whitelist:       cfg.Whitelist,
				Blacklist:       cfg.Blacklist,
				CustomSpamWords: cfg.CustomSpamWords,
			}
			if err := orch.StartSession(ctx, streamURL, settings); err != nil {
				slog.Error("unattended session start failed", slog.String("url", streamURL), slog.Any("err", err))
			}
		}()
	}

	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, cfg, orch, oc, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	orch.StopSession()
	slog.Info("shutting down")
}

// initLogging configures slog from LOG_LEVEL and LOG_FORMAT (text | json).
func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}

// dbIdentityStore adapts the persisted bot_identities table to the credential
// pool's store interface.
type dbIdentityStore struct {
	db *sql.DB
}

func (s dbIdentityStore) ListBotIdentities(ctx context.Context) ([]credpool.StoredIdentity, error) {
	rows, err := db.ListBotIdentities(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]credpool.StoredIdentity, 0, len(rows))
	for _, r := range rows {
		out = append(out, credpool.StoredIdentity{
			ID:           r.ID,
			DisplayName:  r.DisplayName,
			ChannelID:    r.ChannelID,
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			TokenRaw:     r.TokenRaw,
			ExpiresAt:    r.ExpiresAt,
		})
	}
	return out, nil
}
