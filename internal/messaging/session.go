package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wander-app/wander/internal/domain"
	"github.com/wander-app/wander/internal/transport"
)

// Session owns the canonical message list and the channel subscription for
// the currently open conversation. Nothing else mutates the list; push
// events, optimistic inserts and page fetches all funnel through here so the
// ordering and dedup invariants hold.
type Session struct {
	gateway     transport.Gateway
	userID      string
	callTimeout time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	conv     *domain.Conversation
	joined   string
	gen      uint64
	messages []domain.Message

	onMessages func([]domain.Message)
	onError    func(error)
}

func NewSession(gateway transport.Gateway, userID string, callTimeout time.Duration, log zerolog.Logger) *Session {
	return &Session{
		gateway:     gateway,
		userID:      userID,
		callTimeout: callTimeout,
		log:         log.With().Str("component", "session").Logger(),
	}
}

func (s *Session) SetOnMessages(fn func([]domain.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessages = fn
}

func (s *Session) SetOnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Conversation returns a copy of the bound conversation, or nil.
func (s *Session) Conversation() *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return nil
	}
	conv := *s.conv
	return &conv
}

// Messages returns a snapshot of the canonical message list.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

// Bind switches the session to a conversation: leave the previous channel,
// join the new one, mark it read and request the initial message page. The
// generation counter makes results of in-flight calls for the previous
// conversation inert once they resolve.
func (s *Session) Bind(conv domain.Conversation) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.leaveLocked()
	s.conv = &conv
	s.messages = nil
	if conv.Persisted() {
		s.joinLocked(conv.ID)
	}
	s.mu.Unlock()
	s.notify()

	if conv.Persisted() {
		go s.loadInitialPage(gen, conv.ID)
		go s.markRead(conv.ID)
	}
}

// Close unbinds the session and leaves its channel.
func (s *Session) Close() {
	s.mu.Lock()
	s.gen++
	s.leaveLocked()
	s.conv = nil
	s.messages = nil
	s.mu.Unlock()
	s.notify()
}

// Promote atomically swaps a placeholder binding to its persisted
// counterpart: re-home messages sent during the unpersisted window, join the
// channel under the new id and fetch the authoritative page. Returns false
// when the session is no longer bound to the matching placeholder.
func (s *Session) Promote(persisted domain.Conversation) bool {
	s.mu.Lock()
	if s.conv == nil || s.conv.Persisted() || s.conv.CorrelationKey != persisted.CorrelationKey {
		s.mu.Unlock()
		return false
	}
	s.gen++
	gen := s.gen
	for i := range s.messages {
		if s.messages[i].ConversationID == "" {
			s.messages[i].ConversationID = persisted.ID
		}
	}
	s.conv = &persisted
	s.joinLocked(persisted.ID)
	s.mu.Unlock()
	s.notify()

	go s.loadInitialPage(gen, persisted.ID)
	go s.markRead(persisted.ID)
	return true
}

// HandleMessage feeds a push event into the canonical list. Events that do
// not target the bound conversation are dropped; that covers both stale
// deliveries after a switch and duplicates of already-applied messages.
func (s *Session) HandleMessage(msg domain.Message) {
	s.mu.Lock()
	if s.conv == nil || !s.conv.Persisted() || msg.ConversationID != s.conv.ID {
		s.mu.Unlock()
		return
	}
	s.messages = Apply(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

// AppendOptimistic inserts a provisional message for the bound conversation.
// An entry without a conversation id adopts the bound one, so a message
// inserted just after promotion still lands under the persisted id.
func (s *Session) AppendOptimistic(msg domain.Message) {
	s.mu.Lock()
	if s.conv == nil {
		s.mu.Unlock()
		return
	}
	if msg.ConversationID == "" {
		msg.ConversationID = s.conv.ID
	}
	s.messages = AppendOptimistic(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

// MarkFailed flags a provisional message as terminally failed.
func (s *Session) MarkFailed(messageID string) {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Failed = true
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// joinLocked enforces the single-subscription invariant. A second join
// without a leave is a programming error, not a recoverable runtime state.
func (s *Session) joinLocked(conversationID string) {
	if s.joined != "" {
		panic("messaging: channel join while still joined to " + s.joined)
	}
	if err := s.gateway.Join(conversationID); err != nil {
		s.log.Warn().Err(err).Str("conversation", conversationID).Msg("join failed")
	}
	s.joined = conversationID
}

func (s *Session) leaveLocked() {
	if s.joined == "" {
		return
	}
	if err := s.gateway.Leave(s.joined); err != nil {
		s.log.Warn().Err(err).Str("conversation", s.joined).Msg("leave failed")
	}
	s.joined = ""
}

func (s *Session) loadInitialPage(gen uint64, conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()

	page, err := s.gateway.ListMessages(ctx, conversationID)
	if err != nil {
		s.emitError(&TransportError{Op: "list messages", Err: err})
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		// Conversation switched while the fetch was in flight.
		s.mu.Unlock()
		return
	}
	s.messages = ApplyPage(s.messages, page)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) markRead(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()

	if err := s.gateway.MarkRead(ctx, conversationID, s.userID); err != nil {
		s.emitError(&TransportError{Op: "mark read", Err: err})
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onMessages
	snapshot := append([]domain.Message(nil), s.messages...)
	s.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

func (s *Session) emitError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
