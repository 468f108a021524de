// Package credpool owns the set of bot identities used for outbound platform
// calls. It hands identities out in round-robin order and guarantees every
// handed-out identity carries a non-expired access token, refreshing on demand.
package credpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// expirySkew is how long before nominal expiry a token is considered stale.
// A token inside the skew window is refreshed before use.
const expirySkew = 5 * time.Minute

// Identity origins.
const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

// ErrPoolExhausted indicates the pool holds no usable bot identities.
var ErrPoolExhausted = errors.New("credential pool has no usable bot identities")

// CredentialError wraps a token refresh failure for one identity. Callers must
// not proceed with the stale token; the identity stays in rotation and is
// retried on its next turn.
type CredentialError struct {
	BotID string
	Err   error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential refresh for bot %s: %v", e.BotID, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// BotIdentity is one bot account with its token pair. Token fields are mutated
// in place by refresh only; identity rows are never removed during a session.
type BotIdentity struct {
	ID           string
	DisplayName  string
	ChannelID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Origin       string

	// mu serializes refreshes for this identity. Refreshes of distinct
	// identities proceed independently.
	mu sync.Mutex
}

// RefreshFunc performs the provider-specific refresh-token exchange and returns
// (access, refresh, expiry). An empty returned refresh token keeps the old one.
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, error)

// PersistFunc writes refreshed token material back to durable storage.
// Persistence failures are logged, not propagated; the in-memory identity is
// already fresh.
type PersistFunc func(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error

// IdentityStore lists bot identity records from the remote store.
type IdentityStore interface {
	ListBotIdentities(ctx context.Context) ([]StoredIdentity, error)
}

// StoredIdentity is a raw remote record before normalization. Exactly one of
// two shapes is expected: an opaque TokenRaw JSON blob (an oauth2.Token dump),
// or direct AccessToken/RefreshToken fields.
type StoredIdentity struct {
	ID           string
	DisplayName  string
	ChannelID    string
	AccessToken  string
	RefreshToken string
	TokenRaw     string
	ExpiresAt    time.Time
}

// Pool rotates among bot identities and refreshes their tokens on demand.
type Pool struct {
	refresh RefreshFunc
	persist PersistFunc

	mu         sync.Mutex
	identities []*BotIdentity
	cursor     int
}

// New creates an empty pool. Call LoadRemote or LoadLocal before use; Next
// lazily falls back to LoadLocal when the pool is empty.
func New(refresh RefreshFunc, persist PersistFunc) *Pool {
	return &Pool{refresh: refresh, persist: persist}
}

// localIdentity is the JSON shape accepted in the BOT_IDENTITIES env variable.
type localIdentity struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	ChannelID    string `json:"channelId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoadLocal parses the statically configured identity list from BOT_IDENTITIES
// (a JSON array). Expiry is set to the zero time so the first use forces a
// refresh. Never fails; a malformed or absent variable yields an empty pool.
func (p *Pool) LoadLocal() []*BotIdentity {
	var parsed []localIdentity
	if raw := os.Getenv("BOT_IDENTITIES"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			slog.Warn("BOT_IDENTITIES parse failed; using empty local pool", slog.Any("err", err))
		}
	}
	ids := make([]*BotIdentity, 0, len(parsed))
	for _, l := range parsed {
		if l.ID == "" {
			continue
		}
		ids = append(ids, &BotIdentity{
			ID:           l.ID,
			DisplayName:  l.DisplayName,
			ChannelID:    l.ChannelID,
			AccessToken:  l.AccessToken,
			RefreshToken: l.RefreshToken,
			Origin:       OriginLocal,
		})
	}
	p.mu.Lock()
	p.identities = ids
	p.cursor = 0
	p.mu.Unlock()
	slog.Info("credential pool loaded", slog.String("source", OriginLocal), slog.Int("count", len(ids)))
	return ids
}

// rawToken matches the opaque oauth2.Token JSON blob shape.
type rawToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// LoadRemote fetches identities from the remote store, accepting both record
// shapes (opaque token blob vs direct token fields). Records lacking a usable
// refresh token are skipped with a warning. On total failure it falls back to
// LoadLocal.
func (p *Pool) LoadRemote(ctx context.Context, store IdentityStore) error {
	rows, err := store.ListBotIdentities(ctx)
	if err != nil {
		slog.Warn("remote identity load failed; falling back to local", slog.Any("err", err))
		p.LoadLocal()
		return nil
	}

	ids := make([]*BotIdentity, 0, len(rows))
	for _, r := range rows {
		id, ok := normalize(r)
		if !ok {
			slog.Warn("skipping bot identity without usable refresh token", slog.String("bot_id", r.ID))
			continue
		}
		ids = append(ids, id)
	}

	p.mu.Lock()
	p.identities = ids
	p.cursor = 0
	p.mu.Unlock()
	slog.Info("credential pool loaded", slog.String("source", OriginRemote), slog.Int("count", len(ids)))
	return nil
}

// normalize converts a stored record of either shape into the canonical
// BotIdentity. Returns false when no refresh token can be recovered.
func normalize(r StoredIdentity) (*BotIdentity, bool) {
	id := &BotIdentity{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		ChannelID:   r.ChannelID,
		Origin:      OriginRemote,
	}
	if r.TokenRaw != "" {
		var tok rawToken
		if err := json.Unmarshal([]byte(r.TokenRaw), &tok); err != nil {
			slog.Warn("bot identity token blob unparseable", slog.String("bot_id", r.ID), slog.Any("err", err))
			return nil, false
		}
		id.AccessToken = tok.AccessToken
		id.RefreshToken = tok.RefreshToken
		id.ExpiresAt = tok.Expiry
	} else {
		id.AccessToken = r.AccessToken
		id.RefreshToken = r.RefreshToken
		id.ExpiresAt = r.ExpiresAt
	}
	if id.RefreshToken == "" {
		return nil, false
	}
	return id, true
}

// Next returns the identity at the rotation cursor and advances the cursor
// modulo pool size. Returns nil when the pool is empty even after a lazy
// LoadLocal.
func (p *Pool) Next() *BotIdentity {
	p.mu.Lock()
	if len(p.identities) == 0 {
		p.mu.Unlock()
		p.LoadLocal()
		p.mu.Lock()
	}
	if len(p.identities) == 0 {
		p.mu.Unlock()
		return nil
	}
	id := p.identities[p.cursor%len(p.identities)]
	p.cursor = (p.cursor + 1) % len(p.identities)
	p.mu.Unlock()
	return id
}

// Size reports the current pool size.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.identities)
}

// Ready reports whether the pool can serve credentials, lazily loading the
// local list first. Returns ErrPoolExhausted for an empty pool.
func (p *Pool) Ready() error {
	p.mu.Lock()
	n := len(p.identities)
	p.mu.Unlock()
	if n == 0 {
		p.LoadLocal()
		if p.Size() == 0 {
			return ErrPoolExhausted
		}
	}
	return nil
}

// EnsureFresh returns a valid access token for the identity, refreshing it
// first when inside the expiry skew window. On success the identity's token
// fields are updated in place; on failure a *CredentialError is returned and
// the identity stays in rotation untouched.
func (p *Pool) EnsureFresh(ctx context.Context, id *BotIdentity) (string, error) {
	id.mu.Lock()
	defer id.mu.Unlock()

	if id.AccessToken != "" && time.Until(id.ExpiresAt) > expirySkew {
		return id.AccessToken, nil
	}
	return p.refreshLocked(ctx, id)
}

// refreshLocked performs the refresh exchange. Caller holds id.mu.
func (p *Pool) refreshLocked(ctx context.Context, id *BotIdentity) (string, error) {
	if p.refresh == nil {
		return "", &CredentialError{BotID: id.ID, Err: errors.New("no refresh func configured")}
	}
	if id.RefreshToken == "" {
		return "", &CredentialError{BotID: id.ID, Err: errors.New("identity has no refresh token")}
	}

	access, refresh, expiry, err := p.refresh(ctx, id.RefreshToken)
	if err != nil {
		return "", &CredentialError{BotID: id.ID, Err: err}
	}
	id.AccessToken = access
	if refresh != "" {
		id.RefreshToken = refresh
	}
	id.ExpiresAt = expiry
	slog.Info("bot token refreshed", slog.String("bot_id", id.ID), slog.Time("expires_at", expiry))

	if p.persist != nil {
		if err := p.persist(ctx, id.ID, id.AccessToken, id.RefreshToken, id.ExpiresAt); err != nil {
			slog.Warn("bot token persist failed", slog.String("bot_id", id.ID), slog.Any("err", err))
		}
	}
	return id.AccessToken, nil
}

// RefreshExpiring refreshes every identity whose token expires within window,
// regardless of the shorter per-call skew. Used by the background refresher.
// Failures leave the identity in rotation; it is retried on the next sweep.
func (p *Pool) RefreshExpiring(ctx context.Context, window time.Duration) (refreshed, failed int) {
	p.mu.Lock()
	ids := make([]*BotIdentity, len(p.identities))
	copy(ids, p.identities)
	p.mu.Unlock()

	for _, id := range ids {
		id.mu.Lock()
		due := time.Until(id.ExpiresAt) <= window
		if due {
			if _, err := p.refreshLocked(ctx, id); err != nil {
				failed++
				slog.Warn("background refresh failed", slog.String("bot_id", id.ID), slog.Any("err", err))
			} else {
				refreshed++
			}
		}
		id.mu.Unlock()
	}
	return refreshed, failed
}

// Token picks the next identity in rotation and returns a fresh access token
// for it. Implements the token source consumed by the platform client.
func (p *Pool) Token(ctx context.Context) (string, error) {
	id := p.Next()
	if id == nil {
		return "", ErrPoolExhausted
	}
	return p.EnsureFresh(ctx, id)
}
