package messaging

import (
	"context"
	"sync"

	"github.com/wander-app/wander/internal/domain"
	"github.com/wander-app/wander/internal/transport"
)

// fakeGateway is an in-memory transport.Gateway for exercising the messaging
// core without a backend. Handlers are invoked synchronously from the push*
// helpers, mirroring the real gateway's read loop.
type fakeGateway struct {
	mu sync.Mutex

	conversations []domain.Conversation
	messages      map[string][]domain.Message

	listConvErr error
	listMsgErr  error
	sendErr     error
	createErr   error

	// listMessagesGate, when set, is received from before ListMessages
	// returns. Lets tests hold a page fetch in flight.
	listMessagesGate chan struct{}

	listConvCalls int
	sent          []transport.SendMessageInput
	created       []transport.CreateConversationInput
	getOrCreate   [][2]string
	markedRead    []string
	joins         []string
	leaves        []string
	typingStarts  []string
	typingStops   []string

	onMessage       func(domain.Message)
	onTyping        func(domain.TypingEvent)
	onConversations func([]domain.Conversation)
	onPresence      func(userID string, online bool)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{messages: make(map[string][]domain.Message)}
}

func (f *fakeGateway) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listConvCalls++
	if f.listConvErr != nil {
		return nil, f.listConvErr
	}
	return append([]domain.Conversation(nil), f.conversations...), nil
}

func (f *fakeGateway) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	f.mu.Lock()
	gate := f.listMessagesGate
	err := f.listMsgErr
	page := append([]domain.Message(nil), f.messages[conversationID]...)
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, input transport.SendMessageInput) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, input)
	msg := domain.Message{
		ID:             "srv_" + input.Content,
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		Content:        input.Content,
		Type:           input.Type,
	}
	return &msg, nil
}

func (f *fakeGateway) MarkRead(ctx context.Context, conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, conversationID)
	return nil
}

func (f *fakeGateway) CreateOrGetConversation(ctx context.Context, userID, otherUserID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getOrCreate = append(f.getOrCreate, [2]string{userID, otherUserID})
	return "", nil
}

func (f *fakeGateway) CreateConversationWithInitialMessage(ctx context.Context, input transport.CreateConversationInput) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, input)
	conv := domain.Conversation{ID: "conv_created", CorrelationKey: input.CorrelationKey}
	return &conv, nil
}

func (f *fakeGateway) Join(conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, conversationID)
	return nil
}

func (f *fakeGateway) Leave(conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, conversationID)
	return nil
}

func (f *fakeGateway) StartTyping(conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingStarts = append(f.typingStarts, conversationID)
	return nil
}

func (f *fakeGateway) StopTyping(conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingStops = append(f.typingStops, conversationID)
	return nil
}

func (f *fakeGateway) OnMessage(handler func(domain.Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage = handler
}

func (f *fakeGateway) OnTyping(handler func(domain.TypingEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTyping = handler
}

func (f *fakeGateway) OnConversations(handler func([]domain.Conversation)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConversations = handler
}

func (f *fakeGateway) OnPresence(handler func(userID string, online bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPresence = handler
}

// --- push helpers ---

func (f *fakeGateway) pushMessage(msg domain.Message) {
	f.mu.Lock()
	handler := f.onMessage
	f.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func (f *fakeGateway) pushTyping(ev domain.TypingEvent) {
	f.mu.Lock()
	handler := f.onTyping
	f.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

func (f *fakeGateway) pushConversations(convs []domain.Conversation) {
	f.mu.Lock()
	handler := f.onConversations
	f.mu.Unlock()
	if handler != nil {
		handler(convs)
	}
}

// --- call log snapshots ---

func (f *fakeGateway) sentInputs() []transport.SendMessageInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.SendMessageInput(nil), f.sent...)
}

func (f *fakeGateway) createdInputs() []transport.CreateConversationInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.CreateConversationInput(nil), f.created...)
}

func (f *fakeGateway) joinLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joins...)
}

func (f *fakeGateway) leaveLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.leaves...)
}

func (f *fakeGateway) typingStartLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.typingStarts...)
}

func (f *fakeGateway) typingStopLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.typingStops...)
}

func (f *fakeGateway) getOrCreateLog() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.getOrCreate...)
}

func (f *fakeGateway) markedReadLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markedRead...)
}

func (f *fakeGateway) listConversationCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listConvCalls
}

func (f *fakeGateway) setConversations(convs []domain.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = convs
}

func (f *fakeGateway) setMessages(conversationID string, msgs []domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[conversationID] = msgs
}

var _ transport.Gateway = (*fakeGateway)(nil)
