package models

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	PlaceholderTitle = "New Chat"
	maxTitleRunes    = 30
	titleEllipsis    = "..."
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"` // user or assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func NewConversation() *Conversation {
	return &Conversation{
		ID:          uuid.NewString(),
		Title:       PlaceholderTitle,
		Messages:    []Message{},
		LastUpdated: time.Now(),
	}
}

// Clone returns a copy that shares no slice storage with c.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}

// DeriveTitle turns the first user message into a sidebar title.
func DeriveTitle(firstMessage string) string {
	if utf8.RuneCountInString(firstMessage) <= maxTitleRunes {
		return firstMessage
	}
	runes := []rune(firstMessage)
	return string(runes[:maxTitleRunes]) + titleEllipsis
}
