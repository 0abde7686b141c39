package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// History is the append-only conversation transcript. Messages keep
// insertion order; there is no edit or delete. Appending several messages
// in one call is atomic, so a user/assistant pair always lands adjacent
// even with concurrent readers.
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// NewHistory creates an empty transcript.
func NewHistory() *History {
	return &History{}
}

// Append stamps each message with an ID and timestamp and adds them to
// the transcript in one critical section. The stamped messages are
// returned in order.
func (h *History) Append(msgs ...Message) []Message {
	now := time.Now()
	stamped := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		stamped[i] = m
	}

	h.mu.Lock()
	h.messages = append(h.messages, stamped...)
	h.mu.Unlock()
	return stamped
}

// Messages returns a copy of the transcript in insertion order.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear empties the transcript, e.g. when a new session starts.
func (h *History) Clear() {
	h.mu.Lock()
	h.messages = nil
	h.mu.Unlock()
}
