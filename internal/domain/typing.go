package domain

import "time"

// TypingEvent is an ephemeral typing-indicator update. It is never persisted.
type TypingEvent struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	IsTyping       bool      `json:"is_typing"`
	At             time.Time `json:"at"`
}
