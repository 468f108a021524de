// Package server exposes the HTTP API: session control, the moderation log
// (with SSE tail), bot onboarding via Google OAuth, health probes, and
// Prometheus metrics. CORS is permissive in development and restricted in
// production.
package server

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/chat-warden/config"
	"github.com/onnwee/chat-warden/moderator"
)

// maxOAuthStates bounds the in-memory OAuth state store.
const maxOAuthStates = 10000

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db    *sql.DB
	ctx   context.Context
	cfg   *config.Config
	orch  *moderator.Orchestrator
	oauth *oauth2.Config

	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, db *sql.DB, cfg *config.Config, orch *moderator.Orchestrator, oc *oauth2.Config) *Handlers {
	return &Handlers{
		db:         db,
		ctx:        ctx,
		cfg:        cfg,
		orch:       orch,
		oauth:      oc,
		stateStore: make(map[string]time.Time),
	}
}

// addOAuthState records a pending OAuth state, cleaning expired entries so the
// store cannot grow without bound.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	now := time.Now()
	for s, exp := range h.stateStore {
		if now.After(exp) {
			delete(h.stateStore, s)
		}
	}
	if len(h.stateStore) >= maxOAuthStates {
		// Refusing the state fails one OAuth flow, which beats memory
		// exhaustion.
		return
	}
	h.stateStore[state] = expiry
}

// consumeOAuthState validates and removes a state. One-shot.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	expiry, ok := h.stateStore[state]
	if !ok {
		return false
	}
	delete(h.stateStore, state)
	return time.Now().Before(expiry)
}
