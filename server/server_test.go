package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chat-warden/authority"
	"github.com/onnwee/chat-warden/config"
	"github.com/onnwee/chat-warden/credpool"
	"github.com/onnwee/chat-warden/moderator"
	"github.com/onnwee/chat-warden/youtubeapi"
)

// stubAPI satisfies moderator.ChatAPI and authority.ModeratorLister with
// canned responses.
type stubAPI struct {
	resolveErr error
}

func (s *stubAPI) ResolveSession(ctx context.Context, rawURL string) (youtubeapi.Broadcast, error) {
	if s.resolveErr != nil {
		return youtubeapi.Broadcast{}, s.resolveErr
	}
	return youtubeapi.Broadcast{VideoID: "vid", LiveChatID: "chat-1"}, nil
}

func (s *stubAPI) FetchPage(ctx context.Context, liveChatID, cursor string) (youtubeapi.Page, error) {
	return youtubeapi.Page{SuggestedInterval: time.Second}, nil
}

func (s *stubAPI) DeleteMessage(ctx context.Context, messageID string) error { return nil }

func (s *stubAPI) BanUser(ctx context.Context, liveChatID, channelID string, permanent bool) error {
	return nil
}

func (s *stubAPI) ListModerators(ctx context.Context, liveChatID string) ([]string, error) {
	return []string{"WardenBot"}, nil
}

type stubCreds struct{ readyErr error }

func (s *stubCreds) Ready() error { return s.readyErr }
func (s *stubCreds) Next() *credpool.BotIdentity {
	return &credpool.BotIdentity{ID: "bot-a", DisplayName: "WardenBot", ChannelID: "UCbot"}
}

func newTestMux(t *testing.T, api *stubAPI, creds *stubCreds) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	orch := moderator.New(api, authority.New(api), creds)
	cfg := &config.Config{SpamThreshold: 50}
	return NewMux(ctx, nil, cfg, orch, nil)
}

func TestSessionStatusEndpoint(t *testing.T) {
	mux := newTestMux(t, &stubAPI{}, &stubCreds{})

	req := httptest.NewRequest(http.MethodGet, "/session/status", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"running":false`) {
		t.Errorf("body = %s, want running:false", w.Body.String())
	}
}

func TestSessionStartValidation(t *testing.T) {
	mux := newTestMux(t, &stubAPI{}, &stubCreds{})

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"missing url", `{}`, http.StatusBadRequest},
		{"bad threshold", `{"url":"https://youtu.be/x","settings":{"spamThreshold":150}}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/session/start", strings.NewReader(tc.body))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestSessionStartErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		api  *stubAPI
		pool *stubCreds
		want int
	}{
		{"invalid url", &stubAPI{resolveErr: youtubeapi.ErrInvalidURL}, &stubCreds{}, http.StatusBadRequest},
		{"not live", &stubAPI{resolveErr: youtubeapi.ErrNotLive}, &stubCreds{}, http.StatusConflict},
		{"empty pool", &stubAPI{}, &stubCreds{readyErr: credpool.ErrPoolExhausted}, http.StatusPreconditionFailed},
		{"auth failure", &stubAPI{resolveErr: &youtubeapi.AuthError{Status: 401, Msg: "expired"}}, &stubCreds{}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		mux := newTestMux(t, tc.api, tc.pool)
		req := httptest.NewRequest(http.MethodPost, "/session/start", strings.NewReader(`{"url":"https://youtu.be/dQw4w9WgXcQ"}`))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestModerationLogEmpty(t *testing.T) {
	mux := newTestMux(t, &stubAPI{}, &stubCreds{})

	req := httptest.NewRequest(http.MethodGet, "/moderation/log", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestModerationActionValidation(t *testing.T) {
	mux := newTestMux(t, &stubAPI{}, &stubCreds{})

	req := httptest.NewRequest(http.MethodPost, "/moderation/action", strings.NewReader(`{"kind":"nuke","messageId":"m1"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: status = %d, want 400", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/moderation/action", strings.NewReader(`{"kind":"delete","messageId":"m1"}`))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("no session: status = %d, want 409", w.Code)
	}
}

func TestAdminTokenProtectsControlEndpoints(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "sekrit")
	mux := newTestMux(t, &stubAPI{}, &stubCreds{})

	req := httptest.NewRequest(http.MethodPost, "/session/stop", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated stop: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/session/stop", nil)
	req.Header.Set("X-Admin-Token", "sekrit")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated stop: status = %d, want 200", w.Code)
	}

	// Reads stay open.
	req = httptest.NewRequest(http.MethodGet, "/session/status", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status read: status = %d, want 200", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	mux := newTestMux(t, &stubAPI{}, &stubCreds{})

	req := httptest.NewRequest(http.MethodOptions, "/session/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want * in dev mode", got)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, requestsPerIP: 3, window: time.Minute})

	for i := 0; i < 3; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d denied under the limit", i)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request over the limit allowed")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("separate IP throttled by another IP's usage")
	}
}

// flushRecorder adds Flush so the SSE handler accepts it.
type flushRecorder struct{ *httptest.ResponseRecorder }

func (flushRecorder) Flush() {}

func TestModerationLogSSEHeaders(t *testing.T) {
	mux := newTestMux(t, &stubAPI{}, &stubCreds{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/moderation/log?stream=1", nil).WithContext(ctx)
	w := flushRecorder{httptest.NewRecorder()}
	mux.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}
}
