package transport

import (
	"encoding/json"
	"time"

	"github.com/wander-app/wander/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeSubscribe   = "conversation.subscribe"
	EventTypeUnsubscribe = "conversation.unsubscribe"
	EventTypeTypingStart = "typing.start"
	EventTypeTypingStop  = "typing.stop"
	EventTypePing        = "ping"
)

// Event types - Server → Client
const (
	EventTypeMessageNew       = "message.new"
	EventTypeConversationList = "conversation.list"
	EventTypeTyping           = "typing"
	EventTypePresence         = "presence"
	EventTypePong             = "pong"
	EventTypeError            = "error"
)

// Event is the base envelope for all push-stream messages.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type SubscribePayload struct {
	ConversationID string `json:"conversation_id"`
}

type TypingStatePayload struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// --- Server → Client payloads ---

type MessagePayload struct {
	domain.Message
}

type ConversationListPayload struct {
	Conversations []domain.Conversation `json:"conversations"`
}

type TypingPayload struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"` // "online" | "offline"
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates an event envelope with the current timestamp.
func NewEvent(eventType, conversationID string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}
