package moderator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onnwee/chat-warden/authority"
	"github.com/onnwee/chat-warden/credpool"
	"github.com/onnwee/chat-warden/spam"
	"github.com/onnwee/chat-warden/telemetry"
	"github.com/onnwee/chat-warden/youtubeapi"
)

const (
	// minPollInterval floors the server-suggested interval.
	minPollInterval = time.Second

	// aiCallsPerCycle bounds AI fallback calls within one poll cycle.
	aiCallsPerCycle = 3
)

// ErrNoSession is returned by operations that require an active or previously
// started session.
var ErrNoSession = errors.New("no session has been started")

// errStale marks a poll cycle whose session was stopped or restarted while
// the cycle was in flight. Its results are discarded.
var errStale = errors.New("stale session generation")

// ChatAPI is the platform surface the orchestrator drives.
type ChatAPI interface {
	ResolveSession(ctx context.Context, rawURL string) (youtubeapi.Broadcast, error)
	FetchPage(ctx context.Context, liveChatID, cursor string) (youtubeapi.Page, error)
	DeleteMessage(ctx context.Context, messageID string) error
	BanUser(ctx context.Context, liveChatID, channelID string, permanent bool) error
}

// AIChecker is the optional remote second-pass classifier.
type AIChecker interface {
	Check(ctx context.Context, text string) (spam.Verdict, error)
}

// CredentialSource is the slice of the credential pool the orchestrator needs:
// a readiness gate at session start and an identity to probe authority with.
type CredentialSource interface {
	Ready() error
	Next() *credpool.BotIdentity
}

// AuditSink persists one log entry out of band. Best effort; errors are the
// sink's problem.
type AuditSink func(ctx context.Context, liveChatID string, e LogEntry)

// Orchestrator runs one moderation session at a time. Starting a new session
// discards any in-flight results from the previous one via a generation token.
type Orchestrator struct {
	api   ChatAPI
	auth  *authority.Authority
	creds CredentialSource

	// Optional hooks; set before the first StartSession.
	AI             AIChecker
	OnSpamDetected func(count int)
	Audit          AuditSink

	log Log

	mu         sync.Mutex
	generation string
	cancel     context.CancelFunc
	running    bool
	broadcast  youtubeapi.Broadcast
	settings   Settings
	cursor     string
	counters   Counters
	startedAt  time.Time
	lastError  string
}

// New builds an orchestrator over the given platform client, authority cache,
// and credential pool.
func New(api ChatAPI, auth *authority.Authority, creds CredentialSource) *Orchestrator {
	return &Orchestrator{api: api, auth: auth, creds: creds}
}

// Status is a point-in-time snapshot of the session for the HTTP surface.
type Status struct {
	Running    bool                    `json:"running"`
	VideoID    string                  `json:"videoId,omitempty"`
	LiveChatID string                  `json:"liveChatId,omitempty"`
	Title      string                  `json:"title,omitempty"`
	StartedAt  time.Time               `json:"startedAt,omitzero"`
	Counters   Counters                `json:"counters"`
	Authority  *authority.StatusRecord `json:"authority,omitempty"`
	LastError  string                  `json:"lastError,omitempty"`
}

// Status reports the current session state. Counters and the log survive a
// stop so the final snapshot remains inspectable until the next start.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	s := Status{
		Running:    o.running,
		VideoID:    o.broadcast.VideoID,
		LiveChatID: o.broadcast.LiveChatID,
		Title:      o.broadcast.Title,
		StartedAt:  o.startedAt,
		Counters:   o.counters,
		LastError:  o.lastError,
	}
	o.mu.Unlock()

	if s.LiveChatID != "" {
		if rec, ok := o.auth.Current(s.LiveChatID); ok {
			s.Authority = &rec
		}
	}
	return s
}

// LogSnapshot returns a copy of the moderation log, newest first.
func (o *Orchestrator) LogSnapshot() []LogEntry { return o.log.Snapshot() }

// ExportLog flattens the current log for download. No network effect.
func (o *Orchestrator) ExportLog() []ExportEntry { return o.log.Export() }

// StartSession resolves the stream URL, probes moderator authority, resets
// per-session state, and launches the poll loop. An already-running session
// is stopped first. Resolution errors (bad URL, not live, auth) propagate
// unchanged; an empty credential pool blocks the start.
func (o *Orchestrator) StartSession(ctx context.Context, rawURL string, settings Settings) error {
	if err := o.creds.Ready(); err != nil {
		return err
	}

	b, err := o.api.ResolveSession(ctx, rawURL)
	if err != nil {
		return err
	}

	var botName, botChannel string
	if id := o.creds.Next(); id != nil {
		botName, botChannel = id.DisplayName, id.ChannelID
	}
	rec := o.auth.Check(ctx, b.LiveChatID, botName, botChannel)
	if settings.anyAutoAction() && !rec.Confirmed {
		slog.Warn("auto-moderation enabled but moderator status is unverified",
			slog.String("live_chat_id", b.LiveChatID),
			slog.String("bot", botName),
			slog.String("advisory", rec.Err))
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	gen := uuid.NewString()

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.generation = gen
	o.cancel = cancel
	o.running = true
	o.broadcast = b
	o.settings = settings
	o.cursor = ""
	o.counters = Counters{}
	o.startedAt = time.Now().UTC()
	o.lastError = ""
	o.mu.Unlock()

	o.log.Reset()
	telemetry.SessionActive.Set(1)
	telemetry.ModerationLogSize.Set(0)
	slog.Info("moderation session started",
		slog.String("video_id", b.VideoID),
		slog.String("live_chat_id", b.LiveChatID),
		slog.String("title", b.Title))

	go o.run(loopCtx, gen)
	return nil
}

// StopSession cancels the poll loop. The log and counters keep their last
// computed values; any in-flight cycle's results are discarded on completion.
func (o *Orchestrator) StopSession() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.generation = uuid.NewString()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	liveChatID := o.broadcast.LiveChatID
	o.mu.Unlock()

	telemetry.SessionActive.Set(0)
	slog.Info("moderation session stopped", slog.String("live_chat_id", liveChatID))
}

// run is the timer loop: one cycle runs to completion before the next is
// scheduled, so cycles never overlap for a session.
func (o *Orchestrator) run(ctx context.Context, gen string) {
	for {
		start := time.Now()
		interval, err := o.pollOnce(ctx, gen)
		telemetry.PollCycleDuration.Observe(time.Since(start).Seconds())

		if errors.Is(err, errStale) || ctx.Err() != nil {
			return
		}
		if err != nil {
			o.fail(gen, err)
			return
		}
		telemetry.PollCyclesTotal.Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// fail terminates the session on a fatal fetch-path error, leaving the reason
// visible through Status.
func (o *Orchestrator) fail(gen string, err error) {
	slog.Error("moderation session aborted", slog.Any("err", err))
	o.mu.Lock()
	if o.generation == gen {
		o.running = false
		o.lastError = err.Error()
		if o.cancel != nil {
			o.cancel()
			o.cancel = nil
		}
		telemetry.SessionActive.Set(0)
	}
	o.mu.Unlock()
}

// pollOnce executes one cycle: fetch, classify, act, then commit the log and
// counter updates as a single transition. Fetch errors are fatal; action and
// AI errors are absorbed within the cycle.
func (o *Orchestrator) pollOnce(ctx context.Context, gen string) (time.Duration, error) {
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return 0, errStale
	}
	b := o.broadcast
	st := o.settings
	cursor := o.cursor
	o.mu.Unlock()

	telemetry.PlatformCallsTotal.Inc()
	page, err := o.api.FetchPage(ctx, b.LiveChatID, cursor)
	if err != nil {
		return 0, err
	}

	interval := page.SuggestedInterval
	if interval < minPollInterval {
		interval = minPollInterval
	}

	if len(page.Messages) == 0 {
		o.mu.Lock()
		if o.generation != gen {
			o.mu.Unlock()
			return 0, errStale
		}
		o.cursor = page.NextCursor
		o.mu.Unlock()
		return interval, nil
	}

	results := o.classify(ctx, st, page.Messages)

	// Actions are skipped while the platform has explicitly proven the bot
	// is not a moderator; unknown or assumed status proceeds (trust, then
	// verify on the action outcome).
	denied := false
	if rec, ok := o.auth.Current(b.LiveChatID); ok && !rec.IsModerator {
		denied = true
	}

	var (
		entries  []LogEntry
		actions  int64
		apiCalls int64 = 1 // the list call
	)
	for i, m := range page.Messages {
		if !results[i].IsSpam {
			continue
		}
		// Page overlap can resurface a message already acted on; do not
		// re-dispatch the action or rewrite its log entry.
		if prior, ok := o.log.Get(m.ID); ok && prior.ActionTaken {
			continue
		}
		e := LogEntry{
			ID:              m.ID,
			Kind:            KindSpamDetected,
			AuthorName:      m.AuthorName,
			AuthorChannelID: m.AuthorChannelID,
			AuthorPhotoURL:  m.AuthorPhotoURL,
			Text:            m.Text,
			Score:           results[i].Score,
			Keywords:        results[i].Keywords,
			DetectedAt:      time.Now().UTC(),
		}
		if !denied && st.anyAutoAction() {
			n, calls := o.applyAutoActions(ctx, b.LiveChatID, st, &e)
			actions += n
			apiCalls += calls
		}
		entries = append(entries, e)
	}

	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return 0, errStale
	}
	o.cursor = page.NextCursor
	newSpam := 0
	for _, e := range entries {
		if o.log.Upsert(e) {
			newSpam++
		}
	}
	o.counters.TotalChat += int64(len(page.Messages))
	o.counters.SpamDetected += int64(newSpam)
	o.counters.ActionsTaken += actions
	o.counters.APICalls += apiCalls
	o.mu.Unlock()

	telemetry.ChatMessagesTotal.Add(float64(len(page.Messages)))
	telemetry.SpamDetectedTotal.Add(float64(newSpam))
	telemetry.ModerationLogSize.Set(float64(o.log.Len()))

	if newSpam > 0 && o.OnSpamDetected != nil {
		o.OnSpamDetected(newSpam)
	}
	if o.Audit != nil {
		for _, e := range entries {
			o.Audit(ctx, b.LiveChatID, e)
		}
	}
	return interval, nil
}

// classify scores every message of a page in order. Messages the heuristic
// did not flag get a sequential AI second pass, capped per cycle. List
// matches are final either way and never reach the AI; AI failures leave the
// heuristic result standing.
func (o *Orchestrator) classify(ctx context.Context, st Settings, msgs []youtubeapi.ChatMessage) []spam.Result {
	cfg := st.spamConfig()
	results := make([]spam.Result, len(msgs))
	aiBudget := aiCallsPerCycle

	for i, m := range msgs {
		r := spam.Classify(m.AuthorName, m.Text, cfg)
		if !r.IsSpam && !r.Listed && st.AIDetection && o.AI != nil && aiBudget > 0 {
			aiBudget--
			telemetry.AICallsTotal.Inc()
			v, err := o.AI.Check(ctx, m.Text)
			switch {
			case err != nil:
				slog.Debug("ai fallback failed", slog.Any("err", err))
			case v.IsSpam && v.Confidence >= spam.MinAIConfidence:
				r = spam.Result{IsSpam: true, Score: v.Confidence, Keywords: []string{"AI:" + v.Reason}}
				telemetry.AIOverridesTotal.Inc()
			}
		}
		results[i] = r
	}
	return results
}
