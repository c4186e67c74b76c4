package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one audited session-start request.
type Entry struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	ProviderID  string    `json:"provider_id"`
	UserID      int       `json:"user_id"`
	Token       string    `json:"token"`
	FieldID     string    `json:"field_id"`
	Bounds      string    `json:"bounds,omitempty"`
	HasCallback bool      `json:"has_callback"`
	Flags       string    `json:"flags"`
}

// Line renders the entry as the single-line form used in diagnostic dumps.
func (e Entry) Line() string {
	return fmt.Sprintf("s=%s u=%d a=%s i=%s b=%s hc=%v f=%s",
		e.Token, e.UserID, e.ProviderID, e.FieldID, e.Bounds, e.HasCallback, e.Flags)
}

// Sink persists entries beyond the in-memory ring.
type Sink interface {
	Append(Entry) error
}

const defaultLogSize = 64

// Log is a bounded in-memory ring of the most recent entries. Appends never
// fail and never block on I/O; persistence is a Sink's job.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

func NewLog(max int) *Log {
	if max <= 0 {
		max = defaultLogSize
	}
	return &Log{max: max}
}

// Append fills in the entry's id and timestamp when absent and records it,
// evicting the oldest entry once the ring is full. The completed entry is
// returned so callers can hand the same record to a Sink.
func (l *Log) Append(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	return e
}

// Recent returns up to n entries, newest first. n <= 0 means all retained.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
