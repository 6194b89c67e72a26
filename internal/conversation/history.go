package conversation

import "github.com/ashureev/parla/internal/domain"

// DefaultHistoryLimit bounds the context sent with each model call.
const DefaultHistoryLimit = 10

// Role identifies the speaker of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the rolling conversation context.
type Turn struct {
	Role    Role
	Content string
}

// History is the rolling context of a single session. Only the most recent
// entries are kept; the durable log lives in the store.
// A History is not safe for concurrent use.
type History struct {
	turns []Turn
	limit int
}

// NewHistory returns an empty history keeping at most limit entries.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// HistoryFromMessages rebuilds a history from stored messages in timestamp order.
// Correction messages are skipped.
func HistoryFromMessages(messages []*domain.Message, limit int) *History {
	h := NewHistory(limit)
	for _, m := range messages {
		switch m.Type {
		case domain.MessageUser:
			h.Append(RoleUser, m.Content)
		case domain.MessageBot:
			h.Append(RoleAssistant, m.Content)
		}
	}
	return h
}

// Append adds an entry, dropping the oldest once the limit is exceeded.
func (h *History) Append(role Role, content string) {
	h.turns = append(h.turns, Turn{Role: role, Content: content})
	if over := len(h.turns) - h.limit; over > 0 {
		h.turns = append(h.turns[:0:0], h.turns[over:]...)
	}
}

// Turns returns a copy of the retained entries, oldest first.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of retained entries.
func (h *History) Len() int { return len(h.turns) }
