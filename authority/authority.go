// Package authority tracks whether the active bot identity holds moderation
// privileges on a chat session. The platform exposes no direct "am I a
// moderator" query for non-owners, so the design is trust-but-verify: the
// moderator listing call doubles as an owner probe, a forbidden response is
// treated as assumed-moderator, and the outcome of real moderation actions
// confirms or revokes the assumption.
package authority

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chat-warden/youtubeapi"
)

// cacheTTL bounds how long a verified status is trusted before re-checking.
const cacheTTL = 5 * time.Minute

// AdvisoryUnverified is the standing note attached while moderator status is
// assumed but not yet proven by an action outcome.
const AdvisoryUnverified = "moderator status unverified; assuming granted until an action confirms"

// ModeratorLister is the privilege probe: listing a chat's moderators succeeds
// only for the channel owner.
type ModeratorLister interface {
	ListModerators(ctx context.Context, liveChatID string) ([]string, error)
}

// StatusRecord is the cached per-session authorization state.
type StatusRecord struct {
	IsModerator bool      `json:"isModerator"`
	IsOwner     bool      `json:"isOwner"`
	BotName     string    `json:"botName"`
	ChannelID   string    `json:"channelId"`
	Err         string    `json:"error,omitempty"`
	CheckedAt   time.Time `json:"checkedAt"`

	// Confirmed is set once a real action outcome proved (or disproved) the
	// assumed status.
	Confirmed bool `json:"confirmed"`
}

// entry pairs a record with its cache deadline. Denied records carry a zero
// deadline so they are always re-checked, while remaining visible via Current.
type entry struct {
	rec        StatusRecord
	cacheUntil time.Time
}

// Authority caches moderator status per chat session.
type Authority struct {
	api ModeratorLister
	now func() time.Time

	mu    sync.Mutex
	cache map[string]entry
}

// New builds an Authority over the given privilege probe.
func New(api ModeratorLister) *Authority {
	return &Authority{api: api, now: time.Now, cache: make(map[string]entry)}
}

// Check returns the session's moderator status, using the cache when it is
// younger than the TTL and probing the platform otherwise.
//
// Probe outcomes:
//   - success: the identity has owner-level privilege (only owners may list
//     moderators) -> confirmed owner, cached.
//   - forbidden (auth error): cannot distinguish "moderator but not owner"
//     from "neither" -> assume moderator, cached, advisory note attached.
//   - any other error: denied, NOT cached, so the next cycle re-checks
//     instead of the failure sticking.
func (a *Authority) Check(ctx context.Context, liveChatID, botName, channelID string) StatusRecord {
	a.mu.Lock()
	if e, ok := a.cache[liveChatID]; ok && a.now().Before(e.cacheUntil) {
		a.mu.Unlock()
		return e.rec
	}
	a.mu.Unlock()

	rec := StatusRecord{BotName: botName, ChannelID: channelID, CheckedAt: a.now()}
	_, err := a.api.ListModerators(ctx, liveChatID)
	switch {
	case err == nil:
		rec.IsModerator = true
		rec.IsOwner = true
		rec.Confirmed = true
		a.store(liveChatID, rec, true)
	case youtubeapi.IsAuthError(err):
		rec.IsModerator = true
		rec.Err = AdvisoryUnverified
		a.store(liveChatID, rec, true)
	default:
		rec.IsModerator = false
		rec.Err = err.Error()
		slog.Warn("moderator status check failed", slog.String("live_chat_id", liveChatID), slog.Any("err", err))
		a.store(liveChatID, rec, false)
	}
	return rec
}

// Confirm records the outcome of a real moderation action, unconditionally
// overwriting the session's cache entry and refreshing its TTL. Last writer
// wins; it reflects the most recent real outcome.
func (a *Authority) Confirm(liveChatID string, granted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.cache[liveChatID]
	rec := e.rec
	rec.IsModerator = granted
	rec.Confirmed = true
	rec.CheckedAt = a.now()
	if granted {
		rec.Err = ""
	} else {
		rec.Err = "platform rejected a moderation action; bot is not a moderator on this channel"
	}
	a.cache[liveChatID] = entry{rec: rec, cacheUntil: a.now().Add(cacheTTL)}
}

// Current returns the last known record for the session without probing.
func (a *Authority) Current(liveChatID string) (StatusRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.cache[liveChatID]
	return e.rec, ok
}

// Reset drops the session's cached status (used when a session restarts).
func (a *Authority) Reset(liveChatID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, liveChatID)
}

func (a *Authority) store(liveChatID string, rec StatusRecord, cacheable bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := entry{rec: rec}
	if cacheable {
		e.cacheUntil = a.now().Add(cacheTTL)
	}
	a.cache[liveChatID] = e
}
