package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wander-app/wander/internal/domain"
	"github.com/wander-app/wander/internal/transport"
)

// Promotion turns a client-only placeholder conversation into a
// backend-persisted one without losing in-flight messages. The first send
// creates the conversation together with its initial message; later sends
// during the unpersisted window are buffered. The persisted conversation
// surfaces through a directory refresh whose correlation key matches the
// placeholder, at which point the caller completes the swap.
type Promotion struct {
	gateway     transport.Gateway
	session     *Session
	userID      string
	callTimeout time.Duration
	log         zerolog.Logger

	mu          sync.Mutex
	placeholder *domain.Conversation
	creating    bool
	pending     []domain.Message
	onError     func(error)
}

func NewPromotion(gateway transport.Gateway, session *Session, userID string, callTimeout time.Duration, log zerolog.Logger) *Promotion {
	return &Promotion{
		gateway:     gateway,
		session:     session,
		userID:      userID,
		callTimeout: callTimeout,
		log:         log.With().Str("component", "promotion").Logger(),
	}
}

func (p *Promotion) SetOnError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

// Start synthesizes a placeholder conversation for a chat with another user.
func (p *Promotion) Start(other domain.User) domain.Conversation {
	conv := domain.PlaceholderConversation(p.userID, other)

	p.mu.Lock()
	p.placeholder = &conv
	p.creating = false
	p.pending = nil
	p.mu.Unlock()

	return conv
}

// Abandon drops the placeholder, e.g. when the user navigates away.
func (p *Promotion) Abandon() {
	p.mu.Lock()
	p.placeholder = nil
	p.creating = false
	p.pending = nil
	p.mu.Unlock()
}

// Active reports whether a placeholder is awaiting promotion.
func (p *Promotion) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.placeholder != nil
}

// Send handles a send while the conversation is still unpersisted. The first
// send issues the create call carrying the message as initial content; any
// further sends are buffered until promotion completes. Returns false without
// touching the session when no placeholder is active anymore, so the caller
// can re-route through the persisted send path instead of stranding the
// message.
func (p *Promotion) Send(content, msgType string) (domain.Message, bool) {
	temp := domain.Message{
		ID:         domain.NewTempMessageID(),
		SenderID:   p.userID,
		Content:    content,
		Type:       msgType,
		Timestamp:  time.Now(),
		Optimistic: true,
	}

	p.mu.Lock()
	if p.placeholder == nil {
		p.mu.Unlock()
		return domain.Message{}, false
	}
	buffered := p.creating
	if buffered {
		p.pending = append(p.pending, temp)
	} else {
		p.creating = true
	}
	placeholder := *p.placeholder
	p.mu.Unlock()

	p.session.AppendOptimistic(temp)
	if !buffered {
		go p.create(placeholder, temp)
	}
	return temp, true
}

// Match finds the persisted counterpart of the placeholder in a fresh
// conversation list, or nil.
func (p *Promotion) Match(convs []domain.Conversation) *domain.Conversation {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.placeholder == nil {
		return nil
	}
	for i := range convs {
		if convs[i].Persisted() && convs[i].CorrelationKey == p.placeholder.CorrelationKey {
			conv := convs[i]
			return &conv
		}
	}
	return nil
}

// Complete finishes the promotion and drains the buffered sends. The caller
// re-homes them under the persisted id and dispatches each one.
func (p *Promotion) Complete() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending := p.pending
	p.placeholder = nil
	p.creating = false
	p.pending = nil
	return pending
}

func (p *Promotion) create(placeholder domain.Conversation, first domain.Message) {
	participants := []string{p.userID}
	for _, u := range placeholder.Participants {
		participants = append(participants, u.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.callTimeout)
	defer cancel()

	_, err := p.gateway.CreateConversationWithInitialMessage(ctx, transport.CreateConversationInput{
		ParticipantIDs: participants,
		CorrelationKey: placeholder.CorrelationKey,
		InitialMessage: transport.SendMessageInput{
			SenderID: first.SenderID,
			Content:  first.Content,
			Type:     first.Type,
		},
	})
	if err != nil {
		// Recoverable: the session stays bound to the placeholder and the
		// next send retries the create.
		p.mu.Lock()
		p.creating = false
		p.mu.Unlock()
		p.session.MarkFailed(first.ID)
		p.emitError(&TransportError{Op: "create conversation", Err: err})
		return
	}
	// Promotion completes when the directory surfaces the persisted
	// conversation under the placeholder's correlation key.
}

func (p *Promotion) emitError(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
