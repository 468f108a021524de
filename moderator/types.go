// Package moderator drives the moderation pipeline: it polls a live chat,
// classifies messages, dispatches delete/timeout/ban actions, and maintains a
// bounded moderation log plus aggregate counters for one session at a time.
package moderator

import (
	"time"

	"github.com/onnwee/chat-warden/spam"
)

// Kind is a moderation log entry's current state. A spam_detected entry is
// upgraded in place as actions succeed.
type Kind string

const (
	KindSpamDetected Kind = "spam_detected"
	KindDeleted      Kind = "deleted"
	KindTimeout      Kind = "timeout"
	KindBanned       Kind = "banned"
)

// Settings is the host application's moderation configuration, read-only to
// the pipeline. A copy is taken at session start; changing settings requires
// a restart.
type Settings struct {
	AutoDelete   bool `json:"autoDelete"`
	AutoTimeout  bool `json:"autoTimeout"`
	AutoBan      bool `json:"autoBan"`
	SoundEnabled bool `json:"soundEnabled"`
	AIDetection  bool `json:"aiDetection"`

	SpamThreshold   int      `json:"spamThreshold"`
	Whitelist       []string `json:"whitelist"`
	Blacklist       []string `json:"blacklist"`
	CustomSpamWords []string `json:"customSpamWords"`
}

func (s Settings) spamConfig() spam.Config {
	return spam.Config{
		Whitelist:   s.Whitelist,
		Blacklist:   s.Blacklist,
		CustomWords: s.CustomSpamWords,
		Threshold:   s.SpamThreshold,
	}
}

func (s Settings) anyAutoAction() bool {
	return s.AutoDelete || s.AutoTimeout || s.AutoBan
}

// LogEntry is one detected spam message and the action state it ended up in.
type LogEntry struct {
	ID              string    `json:"id"`
	Kind            Kind      `json:"kind"`
	AuthorName      string    `json:"authorName"`
	AuthorChannelID string    `json:"authorChannelId"`
	AuthorPhotoURL  string    `json:"authorPhotoUrl,omitempty"`
	Text            string    `json:"text"`
	Score           int       `json:"score"`
	Keywords        []string  `json:"keywords,omitempty"`
	DetectedAt      time.Time `json:"detectedAt"`
	ActionTaken     bool      `json:"actionTaken"`
}

// Counters are the per-session aggregates. They reset on session start and
// survive session stop so a final snapshot stays inspectable.
type Counters struct {
	TotalChat    int64 `json:"totalChat"`
	SpamDetected int64 `json:"spamDetected"`
	ActionsTaken int64 `json:"actionsTaken"`
	APICalls     int64 `json:"apiCalls"`
}

// ExportEntry is the flattened export shape of one log entry.
type ExportEntry struct {
	Time        time.Time `json:"time"`
	Kind        Kind      `json:"kind"`
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	Score       int       `json:"score"`
	Keywords    []string  `json:"keywords,omitempty"`
	ActionTaken bool      `json:"actionTaken"`
}
