package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks locally generated message ids. A message keeps a temp
// id only until the backend confirms it with a persisted one.
const TempIDPrefix = "temp_"

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	Read           bool      `json:"read"`
	Delivered      bool      `json:"delivered"`
	// Client-side only state, never sent over the wire.
	Optimistic bool `json:"-"`
	Failed     bool `json:"-"`
}

// NewTempMessageID generates a provisional id for an optimistic message.
func NewTempMessageID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTemp reports whether the message still carries a locally generated id.
func (m Message) IsTemp() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}
