package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Mode selects which backend handles a send and is recorded on every message.
type Mode string

const (
	ModeGeneral Mode = "general"
	ModeDomain  Mode = "domain"
)

// Older clients tagged messages with the product names of the two backends.
var legacyModes = map[string]Mode{
	"chatgpt": ModeGeneral,
	"alicia":  ModeDomain,
}

func (m Mode) Valid() bool {
	return m == ModeGeneral || m == ModeDomain
}

// ParseMode accepts the canonical names and the legacy tags, case-insensitively.
func ParseMode(s string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if m := Mode(key); m.Valid() {
		return m, nil
	}
	if m, ok := legacyModes[key]; ok {
		return m, nil
	}
	return "", errors.Errorf("unknown mode %q", s)
}

// UnmarshalJSON reads a stored mode tag. Empty and unrecognised tags are read
// as general so one odd message does not cost the whole collection.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseMode(raw)
	if err != nil {
		parsed = ModeGeneral
	}
	*m = parsed
	return nil
}

type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	Mode      Mode      `json:"mode"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy that shares no mutable state with c.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// LastMessage returns the most recent message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}
