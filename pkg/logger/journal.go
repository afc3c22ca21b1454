package logger

import (
	"sync"
	"time"
)

// FaultEntry is one user-visible fault. Identical consecutive faults are
// coalesced into a single entry with a count, so a flapping transport does
// not flood the banner.
type FaultEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Journal keeps a bounded in-memory ring of recent warn/error events. The
// API exposes it so the UI can render fault banners without tailing logs.
type Journal struct {
	mu      sync.RWMutex
	entries []FaultEntry
	limit   int
}

func NewJournal(limit int) *Journal {
	if limit <= 0 {
		limit = 100
	}
	return &Journal{limit: limit}
}

// Record appends a fault, coalescing with the newest entry when level and
// message match.
func (j *Journal) Record(level, message string, fields map[string]interface{}) {
	now := time.Now()

	j.mu.Lock()
	defer j.mu.Unlock()

	if n := len(j.entries); n > 0 {
		last := &j.entries[n-1]
		if last.Level == level && last.Message == message {
			last.Count++
			last.LastSeen = now
			return
		}
	}

	j.entries = append(j.entries, FaultEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	})
	if len(j.entries) > j.limit {
		j.entries = j.entries[len(j.entries)-j.limit:]
	}
}

// Recent returns up to n newest entries, newest first.
func (j *Journal) Recent(n int) []FaultEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n <= 0 || n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]FaultEntry, 0, n)
	for i := len(j.entries) - 1; i >= len(j.entries)-n; i-- {
		out = append(out, j.entries[i])
	}
	return out
}

// Clear drops all entries (used on refresh/reset).
func (j *Journal) Clear() {
	j.mu.Lock()
	j.entries = nil
	j.mu.Unlock()
}
