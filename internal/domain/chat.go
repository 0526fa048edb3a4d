package domain

import (
	"fmt"
	"time"
)

// Role identifies the author of a chat turn.
type Role string

const (
	// RoleUser marks a message typed by the student or parent.
	RoleUser Role = "user"
	// RoleSystem marks an instruction or welcome message.
	RoleSystem Role = "system"
	// RoleAssistant marks a model-generated reply.
	RoleAssistant Role = "assistant"
)

// ParseRole validates a wire role value.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleSystem, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// ChatTurn is the role/content pair exchanged with the backend and providers.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is a persisted chat message.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn converts the message to its wire shape.
func (m Message) Turn() ChatTurn {
	return ChatTurn{Role: m.Role, Content: m.Content}
}

// DefaultChatTitle is the title a chat carries until it is named.
const DefaultChatTitle = "New Conversation"

// Chat is an ordered conversation owned by the local client.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// History returns the chat messages as wire turns.
func (c *Chat) History() []ChatTurn {
	turns := make([]ChatTurn, 0, len(c.Messages))
	for _, m := range c.Messages {
		turns = append(turns, m.Turn())
	}
	return turns
}

// HasUserTurn reports whether any turn was authored by the user.
func HasUserTurn(turns []ChatTurn) bool {
	for _, t := range turns {
		if t.Role == RoleUser {
			return true
		}
	}
	return false
}

// LastIsUser reports whether the most recent non-system turn is from the user.
func LastIsUser(turns []ChatTurn) bool {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleSystem {
			continue
		}
		return turns[i].Role == RoleUser
	}
	return false
}
