package moderator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onnwee/chat-warden/telemetry"
	"github.com/onnwee/chat-warden/youtubeapi"
)

// applyAutoActions dispatches every enabled auto action for one spam entry,
// in delete, timeout, ban order. Actions are attempted independently; the
// entry's kind reflects the last action that succeeded, and ActionTaken is
// true if any did. Returns the count of successes and of API calls made.
func (o *Orchestrator) applyAutoActions(ctx context.Context, liveChatID string, st Settings, e *LogEntry) (succeeded, calls int64) {
	if st.AutoDelete {
		calls++
		if o.applyOne(ctx, liveChatID, KindDeleted, e, func() error {
			return o.api.DeleteMessage(ctx, e.ID)
		}) {
			succeeded++
		}
	}
	if st.AutoTimeout {
		calls++
		if o.applyOne(ctx, liveChatID, KindTimeout, e, func() error {
			return o.api.BanUser(ctx, liveChatID, e.AuthorChannelID, false)
		}) {
			succeeded++
		}
	}
	if st.AutoBan {
		calls++
		if o.applyOne(ctx, liveChatID, KindBanned, e, func() error {
			return o.api.BanUser(ctx, liveChatID, e.AuthorChannelID, true)
		}) {
			succeeded++
		}
	}
	return succeeded, calls
}

// applyOne runs one moderation call and folds its outcome into the entry and
// the authority cache. Success on an unconfirmed session confirms moderator
// status; an authorization failure revokes it. Transport failures are logged
// and the cycle continues.
func (o *Orchestrator) applyOne(ctx context.Context, liveChatID string, kind Kind, e *LogEntry, do func() error) bool {
	telemetry.PlatformCallsTotal.Inc()
	err := do()
	if err == nil {
		e.Kind = kind
		e.ActionTaken = true
		telemetry.ActionsTotal.WithLabelValues(string(kind)).Inc()
		o.confirmGranted(liveChatID)
		return true
	}

	telemetry.ActionFailuresTotal.Inc()
	if youtubeapi.IsAuthError(err) {
		o.auth.Confirm(liveChatID, false)
		slog.Warn("moderation action rejected; revoking assumed moderator status",
			slog.String("kind", string(kind)),
			slog.String("message_id", e.ID),
			slog.Any("err", err))
	} else {
		slog.Warn("moderation action failed",
			slog.String("kind", string(kind)),
			slog.String("message_id", e.ID),
			slog.Any("err", err))
	}
	return false
}

// confirmGranted upgrades an assumed or unknown moderator status after a real
// action succeeded. Already-confirmed sessions are left alone so the TTL is
// not churned on every action.
func (o *Orchestrator) confirmGranted(liveChatID string) {
	if rec, ok := o.auth.Current(liveChatID); ok && rec.Confirmed && rec.IsModerator {
		return
	}
	o.auth.Confirm(liveChatID, true)
}

// TakeManualAction applies a single operator-initiated action to a logged
// message, outside the poll cycle. The target must already be in the
// moderation log. Counters and the log entry update the same way an auto
// action would; failures propagate so the operator sees them.
func (o *Orchestrator) TakeManualAction(ctx context.Context, kind Kind, targetID string) error {
	o.mu.Lock()
	liveChatID := o.broadcast.LiveChatID
	o.mu.Unlock()
	if liveChatID == "" {
		return ErrNoSession
	}

	e, ok := o.log.Get(targetID)
	if !ok {
		return fmt.Errorf("no moderation log entry for message %s", targetID)
	}

	var do func() error
	switch kind {
	case KindDeleted:
		do = func() error { return o.api.DeleteMessage(ctx, e.ID) }
	case KindTimeout:
		do = func() error { return o.api.BanUser(ctx, liveChatID, e.AuthorChannelID, false) }
	case KindBanned:
		do = func() error { return o.api.BanUser(ctx, liveChatID, e.AuthorChannelID, true) }
	default:
		return fmt.Errorf("unsupported manual action %q", kind)
	}

	ok = o.applyOne(ctx, liveChatID, kind, &e, do)

	o.mu.Lock()
	o.counters.APICalls++
	if ok {
		o.counters.ActionsTaken++
	}
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("manual %s of message %s failed", kind, targetID)
	}
	o.log.Upsert(e)
	if o.Audit != nil {
		o.Audit(ctx, liveChatID, e)
	}
	return nil
}
