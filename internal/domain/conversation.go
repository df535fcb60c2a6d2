package domain

import (
	"strings"
	"time"
)

type User struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	AvatarURL       *string `json:"avatar_url,omitempty"`
	NextDestination string  `json:"next_destination,omitempty"`
}

// MessageSummary is the last-message preview shown in the conversation list.
type MessageSummary struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ID             string          `json:"id"`
	CorrelationKey string          `json:"correlation_key"`
	Participants   []User          `json:"participants"`
	LastMessage    *MessageSummary `json:"last_message,omitempty"`
	LastMessageAt  time.Time       `json:"last_message_at"`
	UnreadCount    int             `json:"unread_count"`
	IsOnline       bool            `json:"is_online"`
}

// Persisted reports whether the backend has assigned this conversation an id.
// A placeholder conversation carries only a correlation key.
func (c Conversation) Persisted() bool {
	return c.ID != ""
}

// OtherParticipant returns the participant that is not the local user.
func (c Conversation) OtherParticipant(localUserID string) *User {
	for i := range c.Participants {
		if c.Participants[i].ID != localUserID {
			return &c.Participants[i]
		}
	}
	return nil
}

// NewCorrelationKey derives the deterministic key that ties a placeholder
// conversation to its eventual persisted counterpart. Participant ids are
// sorted so both sides derive the same key.
func NewCorrelationKey(userA, userB string) string {
	u1, u2 := userA, userB
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	return "match_" + u1 + "_" + u2
}

// ParseCorrelationKey extracts the two participant ids from a correlation
// key. Participant ids never contain underscores, so the split is exact.
func ParseCorrelationKey(key string) (user1, user2 string, ok bool) {
	rest, found := strings.CutPrefix(key, "match_")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// PlaceholderConversation synthesizes a client-only conversation so the user
// can start chatting before the backend has persisted one.
func PlaceholderConversation(localUserID string, other User) Conversation {
	return Conversation{
		CorrelationKey: NewCorrelationKey(localUserID, other.ID),
		Participants:   []User{other},
	}
}
