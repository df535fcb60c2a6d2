package transport

import (
	"context"

	"github.com/wander-app/wander/internal/domain"
)

type SendMessageInput struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	Type           string `json:"type"`
}

type CreateConversationInput struct {
	ParticipantIDs []string         `json:"participants"`
	CorrelationKey string           `json:"correlation_key"`
	InitialMessage SendMessageInput `json:"initial_message"`
}

// Gateway is the wire boundary of the messaging core. Request/response calls
// may fail with network errors; push delivery is at-least-once, possibly
// duplicated and possibly out of order. The core stays correct under those
// conditions, the gateway does not have to dedup.
type Gateway interface {
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, input SendMessageInput) (*domain.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) error
	CreateOrGetConversation(ctx context.Context, userID, otherUserID string) (string, error)
	CreateConversationWithInitialMessage(ctx context.Context, input CreateConversationInput) (*domain.Conversation, error)

	// Channel membership for the per-conversation push stream.
	Join(conversationID string) error
	Leave(conversationID string) error

	StartTyping(conversationID, userID string) error
	StopTyping(conversationID, userID string) error

	// Push handlers. Each may be set at most once, before the first event
	// is delivered; handlers are invoked from the gateway's read loop.
	OnMessage(handler func(domain.Message))
	OnTyping(handler func(domain.TypingEvent))
	OnConversations(handler func([]domain.Conversation))
	OnPresence(handler func(userID string, online bool))
}
