package authority

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/chat-warden/youtubeapi"
)

type fakeLister struct {
	calls int
	err   error
}

func (f *fakeLister) ListModerators(ctx context.Context, liveChatID string) ([]string, error) {
	f.calls++
	return nil, f.err
}

func newTestAuthority(l ModeratorLister, now *time.Time) *Authority {
	a := New(l)
	a.now = func() time.Time { return *now }
	return a
}

func TestCheckOwnerConfirmed(t *testing.T) {
	now := time.Now()
	lister := &fakeLister{}
	a := newTestAuthority(lister, &now)

	rec := a.Check(context.Background(), "chat-1", "warden", "UC1")
	if !rec.IsModerator || !rec.IsOwner || !rec.Confirmed {
		t.Errorf("successful listing should confirm ownership, got %+v", rec)
	}

	// within TTL the cached record is served without a probe
	now = now.Add(4 * time.Minute)
	a.Check(context.Background(), "chat-1", "warden", "UC1")
	if lister.calls != 1 {
		t.Errorf("probe calls = %d, want 1 (cached)", lister.calls)
	}

	// past TTL it re-probes
	now = now.Add(2 * time.Minute)
	a.Check(context.Background(), "chat-1", "warden", "UC1")
	if lister.calls != 2 {
		t.Errorf("probe calls = %d, want 2 (cache expired)", lister.calls)
	}
}

func TestCheckForbiddenAssumesModerator(t *testing.T) {
	now := time.Now()
	lister := &fakeLister{err: &youtubeapi.AuthError{Status: 403, Msg: "forbidden"}}
	a := newTestAuthority(lister, &now)

	rec := a.Check(context.Background(), "chat-1", "warden", "UC1")
	if !rec.IsModerator || rec.IsOwner || rec.Confirmed {
		t.Errorf("forbidden probe should yield assumed moderator, got %+v", rec)
	}
	if rec.Err != AdvisoryUnverified {
		t.Errorf("advisory = %q, want %q", rec.Err, AdvisoryUnverified)
	}

	// assumed status is cached
	a.Check(context.Background(), "chat-1", "warden", "UC1")
	if lister.calls != 1 {
		t.Errorf("probe calls = %d, want 1", lister.calls)
	}
}

func TestCheckOtherErrorNotCached(t *testing.T) {
	now := time.Now()
	lister := &fakeLister{err: errors.New("connection reset")}
	a := newTestAuthority(lister, &now)

	rec := a.Check(context.Background(), "chat-1", "warden", "UC1")
	if rec.IsModerator {
		t.Errorf("transport failure should deny, got %+v", rec)
	}
	if rec.Err == "" {
		t.Error("denied record should carry the error message")
	}

	// denied is not cached: the very next check probes again
	a.Check(context.Background(), "chat-1", "warden", "UC1")
	if lister.calls != 2 {
		t.Errorf("probe calls = %d, want 2 (denied must not stick)", lister.calls)
	}

	// but Current still exposes the last record
	cur, ok := a.Current("chat-1")
	if !ok || cur.IsModerator {
		t.Errorf("Current = %+v ok=%v, want last denied record", cur, ok)
	}
}

func TestConfirmOverwritesAndRefreshesTTL(t *testing.T) {
	now := time.Now()
	lister := &fakeLister{err: &youtubeapi.AuthError{Status: 403, Msg: "forbidden"}}
	a := newTestAuthority(lister, &now)

	a.Check(context.Background(), "chat-1", "warden", "UC1")

	// a successful delete proves moderator status for at least the TTL
	a.Confirm("chat-1", true)
	now = now.Add(4 * time.Minute)
	rec := a.Check(context.Background(), "chat-1", "warden", "UC1")
	if !rec.IsModerator || !rec.Confirmed || rec.Err != "" {
		t.Errorf("confirmed record = %+v", rec)
	}
	if lister.calls != 1 {
		t.Errorf("probe calls = %d, want 1 (Confirm refreshed TTL)", lister.calls)
	}

	// a 403 on a real action revokes immediately
	a.Confirm("chat-1", false)
	cur, _ := a.Current("chat-1")
	if cur.IsModerator {
		t.Error("Confirm(false) should flip isModerator to false immediately")
	}
	if cur.Err == "" {
		t.Error("revoked record should carry a standing advisory")
	}
}

func TestReset(t *testing.T) {
	now := time.Now()
	a := newTestAuthority(&fakeLister{}, &now)
	a.Check(context.Background(), "chat-1", "warden", "UC1")
	a.Reset("chat-1")
	if _, ok := a.Current("chat-1"); ok {
		t.Error("Reset should drop the cached record")
	}
}
