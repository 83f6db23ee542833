// Package trajectory keeps the per-stream ball history and derives motion
// from it.
package trajectory

import (
	"encoding/json"
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
)

// Entry is the best ball of one frame. A zero Timestamp means the time is
// unknown and the entry index stands in for it.
type Entry struct {
	Ball      detection.Detection
	Timestamp time.Time
}

// Seconds returns the entry time as unix seconds and false when unknown.
func (e Entry) Seconds() (float64, bool) {
	if e.Timestamp.IsZero() {
		return 0, false
	}
	return float64(e.Timestamp.UnixNano()) / 1e9, true
}

// MarshalJSON flattens the entry to the ball fields plus a unix timestamp
// (null when unknown).
func (e Entry) MarshalJSON() ([]byte, error) {
	var ts *float64
	if s, ok := e.Seconds(); ok {
		ts = &s
	}
	return json.Marshal(struct {
		Ball      detection.Detection `json:"ball"`
		Timestamp *float64            `json:"timestamp"`
	}{e.Ball, ts})
}

// History is a bounded FIFO of entries. It is not safe for concurrent use;
// every stream owns its own History.
type History struct {
	entries []Entry
	limit   int
}

// NewHistory returns an empty history holding at most limit entries. A
// non-positive limit selects the default length.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = utils.BallHistoryLength
	}
	return &History{
		entries: make([]Entry, 0, limit),
		limit:   limit,
	}
}

// Append records the best ball of a frame, evicting the oldest entries once
// the limit is exceeded.
func (h *History) Append(ball detection.Detection, ts time.Time) {
	h.entries = append(h.entries, Entry{Ball: ball, Timestamp: ts})
	if over := len(h.entries) - h.limit; over > 0 {
		copy(h.entries, h.entries[over:])
		h.entries = h.entries[:h.limit]
	}
}

func (h *History) Len() int   { return len(h.entries) }
func (h *History) Limit() int { return h.limit }

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Last returns the newest entry.
func (h *History) Last() (Entry, bool) {
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Reset drops every entry.
func (h *History) Reset() {
	h.entries = h.entries[:0]
}
