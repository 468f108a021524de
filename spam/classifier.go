// Package spam assigns a deterministic spam score to chat messages given the
// current moderation settings. Detection precedence is strict: author
// whitelist, then author blacklist, then the keyword/pattern heuristic. The
// optional AI fallback (ai.go) is a separate best-effort second pass the
// orchestrator applies to messages the heuristic did not flag.
package spam

import "strings"

// Config carries the settings the classifier depends on. Classification is a
// pure function of (author, text, Config).
type Config struct {
	// Whitelist and Blacklist match case-insensitively as substrings of the
	// author name. Whitelist dominates everything, including blacklist.
	Whitelist []string
	Blacklist []string

	// CustomWords are merged into the heuristic keyword set.
	CustomWords []string

	// Threshold is the heuristic spam cutoff in [0,100].
	Threshold int
}

// Result is the classification outcome for one message.
type Result struct {
	IsSpam   bool
	Score    int
	Keywords []string

	// Listed marks a whitelist or blacklist short-circuit. Listed results are
	// final; later passes (the AI fallback) must not revisit them.
	Listed bool
}

// Classify scores a message. First match wins: a whitelisted author is never
// spam regardless of content, a blacklisted author is always spam regardless
// of content, otherwise the heuristic decides against Config.Threshold.
func Classify(authorName, text string, cfg Config) Result {
	if matchList(authorName, cfg.Whitelist) {
		return Result{IsSpam: false, Score: 0, Listed: true}
	}
	if matchList(authorName, cfg.Blacklist) {
		return Result{IsSpam: true, Score: 100, Keywords: []string{"blacklisted"}, Listed: true}
	}
	score, keywords := scoreText(text, cfg.CustomWords)
	return Result{
		IsSpam:   score >= clamp(cfg.Threshold),
		Score:    score,
		Keywords: keywords,
	}
}

// matchList reports whether any non-empty entry is a case-insensitive
// substring of name.
func matchList(name string, entries []string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && strings.Contains(lower, e) {
			return true
		}
	}
	return false
}

// clamp bounds a score to [0,100].
func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
