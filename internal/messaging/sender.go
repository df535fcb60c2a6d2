package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wander-app/wander/internal/domain"
	"github.com/wander-app/wander/internal/transport"
)

// SendCoordinator implements optimistic sends: the provisional message is
// inserted before the transport call starts, so the UI renders it with zero
// latency, and the push feed's canonical copy collapses it later.
type SendCoordinator struct {
	gateway     transport.Gateway
	session     *Session
	userID      string
	callTimeout time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	onError func(error)
}

func NewSendCoordinator(gateway transport.Gateway, session *Session, userID string, callTimeout time.Duration, log zerolog.Logger) *SendCoordinator {
	return &SendCoordinator{
		gateway:     gateway,
		session:     session,
		userID:      userID,
		callTimeout: callTimeout,
		log:         log.With().Str("component", "sender").Logger(),
	}
}

func (c *SendCoordinator) SetOnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Send synthesizes a provisional message, inserts it into the session and
// dispatches the transport call in the background. It never blocks.
func (c *SendCoordinator) Send(conversationID, content, msgType string) domain.Message {
	temp := domain.Message{
		ID:             domain.NewTempMessageID(),
		ConversationID: conversationID,
		SenderID:       c.userID,
		Content:        content,
		Type:           msgType,
		Timestamp:      time.Now(),
		Optimistic:     true,
	}
	c.session.AppendOptimistic(temp)
	go c.Dispatch(temp)
	return temp
}

// Dispatch performs the transport call for an already-inserted provisional
// message. On failure the entry is flagged terminally failed; there is no
// automatic retry, the user resends by hand.
func (c *SendCoordinator) Dispatch(temp domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	defer cancel()

	_, err := c.gateway.SendMessage(ctx, transport.SendMessageInput{
		ConversationID: temp.ConversationID,
		SenderID:       temp.SenderID,
		Content:        temp.Content,
		Type:           temp.Type,
	})
	if err != nil {
		c.session.MarkFailed(temp.ID)
		c.emitError(&TransportError{Op: "send message", Err: err})
		return
	}
	// On success nothing replaces the provisional entry here: the canonical
	// message arrives on the push feed and the reducer collapses it.
}

func (c *SendCoordinator) emitError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
