package moderator

import "sync"

// maxLogEntries caps the in-memory moderation log. Insertion beyond the cap
// evicts the oldest entries.
const maxLogEntries = 200

// Log is the bounded, newest-first moderation log. Safe for concurrent use:
// the poll loop and operator-driven manual actions both write to it.
type Log struct {
	mu      sync.Mutex
	entries []LogEntry
}

// Upsert inserts or updates an entry keyed by message id and reports whether
// the entry was new. An existing entry absorbs the incoming action state in
// place; a new entry is prepended and the oldest entries are evicted past the
// cap.
func (l *Log) Upsert(e LogEntry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].ID == e.ID {
			l.entries[i].Kind = e.Kind
			l.entries[i].ActionTaken = l.entries[i].ActionTaken || e.ActionTaken
			if e.Score > 0 {
				l.entries[i].Score = e.Score
			}
			if len(e.Keywords) > 0 {
				l.entries[i].Keywords = e.Keywords
			}
			return false
		}
	}

	l.entries = append([]LogEntry{e}, l.entries...)
	if len(l.entries) > maxLogEntries {
		l.entries = l.entries[:maxLogEntries]
	}
	return true
}

// Get returns the entry with the given message id.
func (l *Log) Get(id string) (LogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return LogEntry{}, false
}

// Snapshot returns a copy of the log, newest first.
func (l *Log) Snapshot() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the current log length.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset empties the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Export flattens the current log into the export shape. Pure transform, no
// network effect.
func (l *Log) Export() []ExportEntry {
	snap := l.Snapshot()
	out := make([]ExportEntry, 0, len(snap))
	for _, e := range snap {
		out = append(out, ExportEntry{
			Time:        e.DetectedAt,
			Kind:        e.Kind,
			Author:      e.AuthorName,
			Text:        e.Text,
			Score:       e.Score,
			Keywords:    e.Keywords,
			ActionTaken: e.ActionTaken,
		})
	}
	return out
}
