package messaging

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wander-app/wander/internal/domain"
	"github.com/wander-app/wander/internal/transport"
	"github.com/wander-app/wander/pkg/validator"
)

const (
	defaultTypingTimeout   = 3 * time.Second
	defaultRefreshDebounce = time.Second
	defaultCallTimeout     = 10 * time.Second
)

type Options struct {
	TypingTimeout   time.Duration
	RefreshDebounce time.Duration
	CallTimeout     time.Duration
	Logger          zerolog.Logger
}

// Messenger is the outward-facing surface of the messaging core, the only
// thing the UI layer talks to. It wires the directory, session, typing
// controller, send coordinator and promotion together over one gateway.
type Messenger struct {
	gateway transport.Gateway
	userID  string
	log     zerolog.Logger

	directory *Directory
	session   *Session
	typing    *TypingController
	sender    *SendCoordinator
	promotion *Promotion

	callTimeout time.Duration

	mu              sync.Mutex
	onConversations func([]domain.Conversation)
	onTypingUsers   func([]string)
	onError         func(error)
}

func New(gateway transport.Gateway, userID string, opts Options) *Messenger {
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = defaultTypingTimeout
	}
	if opts.RefreshDebounce <= 0 {
		opts.RefreshDebounce = defaultRefreshDebounce
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	log := opts.Logger.With().Str("component", "messenger").Logger()

	m := &Messenger{
		gateway:     gateway,
		userID:      userID,
		log:         log,
		callTimeout: opts.CallTimeout,
	}
	m.session = NewSession(gateway, userID, opts.CallTimeout, opts.Logger)
	m.directory = NewDirectory(gateway, userID, opts.RefreshDebounce, opts.CallTimeout, opts.Logger)
	m.typing = NewTypingController(gateway, userID, opts.TypingTimeout, opts.Logger)
	m.sender = NewSendCoordinator(gateway, m.session, userID, opts.CallTimeout, opts.Logger)
	m.promotion = NewPromotion(gateway, m.session, userID, opts.CallTimeout, opts.Logger)

	m.session.SetOnError(m.emitError)
	m.directory.SetOnError(m.emitError)
	m.sender.SetOnError(m.emitError)
	m.promotion.SetOnError(m.emitError)

	m.directory.SetOnUpdate(m.handleDirectoryUpdate)
	m.typing.SetOnChange(m.handleTypingChange)

	return m
}

// Open registers the push handlers and loads the initial conversation list.
func (m *Messenger) Open() {
	m.gateway.OnMessage(func(msg domain.Message) {
		m.session.HandleMessage(msg)
		// A new message anywhere may move conversations in the sidebar.
		m.directory.ScheduleRefresh()
	})
	m.gateway.OnTyping(m.typing.HandleRemote)
	m.gateway.OnConversations(m.directory.SetList)
	m.gateway.OnPresence(m.directory.HandlePresence)

	go m.directory.Refresh()
}

// Close tears the core down: leave the active channel, stop timers.
func (m *Messenger) Close() {
	m.CloseConversation()
	m.directory.Close()
	m.typing.Reset()
}

// OpenConversation binds the session to a conversation by id or by
// correlation key. An unknown correlation key starts the placeholder flow so
// the user can chat before the backend has the conversation.
func (m *Messenger) OpenConversation(idOrKey string) error {
	conv := m.directory.Get(idOrKey)
	if conv == nil {
		conv = m.directory.FindByCorrelationKey(idOrKey)
	}
	if conv != nil {
		m.bind(*conv)
		return nil
	}

	u1, u2, ok := domain.ParseCorrelationKey(idOrKey)
	if !ok {
		return ErrConversationNotFound
	}
	otherID := u1
	if otherID == m.userID {
		otherID = u2
	}
	other := domain.User{ID: otherID}
	// A bare key carries no profile; reuse what the directory knows about
	// this user so the placeholder renders a name, not an id.
	if known := m.directory.FindParticipant(otherID); known != nil {
		other = *known
	}
	m.StartConversation(other)
	return nil
}

// StartConversation opens a chat with another user, e.g. "message this
// person" from a profile. If the directory already has the conversation it
// is reused; otherwise the session binds to a placeholder that promotes once
// the backend confirms.
func (m *Messenger) StartConversation(other domain.User) domain.Conversation {
	key := domain.NewCorrelationKey(m.userID, other.ID)
	if existing := m.directory.FindByCorrelationKey(key); existing != nil {
		m.bind(*existing)
		return *existing
	}

	placeholder := m.promotion.Start(other)
	m.session.Bind(placeholder)

	// Opportunistic resolve: if the backend can create (or already has) the
	// conversation, the scheduled refresh surfaces it and promotion follows.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.callTimeout)
		defer cancel()
		if _, err := m.gateway.CreateOrGetConversation(ctx, m.userID, other.ID); err != nil {
			m.emitError(&TransportError{Op: "create or get conversation", Err: err})
			return
		}
		m.directory.ScheduleRefresh()
	}()

	return placeholder
}

// CloseConversation unbinds the active conversation, if any.
func (m *Messenger) CloseConversation() {
	if conv := m.session.Conversation(); conv != nil && conv.Persisted() {
		m.typing.Stop(conv.ID)
	}
	m.promotion.Abandon()
	m.session.Close()
}

// Send sends a message in the active conversation, optimistically.
func (m *Messenger) Send(content, msgType string) error {
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if errs := validator.ValidateMessage(content, msgType); errs.HasErrors() {
		return errs
	}
	content = strings.TrimSpace(content)

	// A directory update on the gateway's read loop may complete the
	// promotion between the snapshot and the unpersisted branch; in that
	// case the promotion rejects the send and the re-read sees the
	// persisted conversation.
	for {
		conv := m.session.Conversation()
		if conv == nil {
			return ErrNoActiveConversation
		}
		if conv.Persisted() {
			m.typing.Stop(conv.ID)
			m.sender.Send(conv.ID, content, msgType)
			break
		}
		if _, ok := m.promotion.Send(content, msgType); ok {
			break
		}
	}

	m.directory.ScheduleRefresh()
	return nil
}

// OnTypingChange feeds raw input-box changes into the typing state machine.
func (m *Messenger) OnTypingChange(text string) {
	conv := m.session.Conversation()
	if conv == nil || !conv.Persisted() {
		return
	}
	if strings.TrimSpace(text) == "" {
		m.typing.Stop(conv.ID)
		return
	}
	m.typing.Keystroke(conv.ID)
}

// Search filters the conversation list without mutating it.
func (m *Messenger) Search(query string) []domain.Conversation {
	return m.directory.Search(query)
}

func (m *Messenger) Conversations() []domain.Conversation {
	return m.directory.Conversations()
}

func (m *Messenger) Messages() []domain.Message {
	return m.session.Messages()
}

// TypingUsers returns who is typing in the active conversation.
func (m *Messenger) TypingUsers() []string {
	conv := m.session.Conversation()
	if conv == nil || !conv.Persisted() {
		return nil
	}
	return m.typing.TypingUsers(conv.ID)
}

// --- observers ---

func (m *Messenger) SetOnConversations(fn func([]domain.Conversation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConversations = fn
}

func (m *Messenger) SetOnMessages(fn func([]domain.Message)) {
	m.session.SetOnMessages(fn)
}

func (m *Messenger) SetOnTypingUsers(fn func([]string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTypingUsers = fn
}

func (m *Messenger) SetOnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// --- internal plumbing ---

// handleDirectoryUpdate is the single funnel for fresh conversation lists,
// from the push stream and from re-fetches alike. Promotion completes here:
// the refreshed list is where the persisted counterpart first appears.
func (m *Messenger) handleDirectoryUpdate(convs []domain.Conversation) {
	if persisted := m.promotion.Match(convs); persisted != nil {
		// Promote before draining the buffer: once the promotion rejects a
		// send, the session is already bound to the persisted conversation.
		if !m.session.Promote(*persisted) {
			m.log.Debug().Str("conversation", persisted.ID).Msg("promotion arrived after session moved on")
		}
		// Buffered sends reach the backend either way; the user already
		// committed them.
		for _, msg := range m.promotion.Complete() {
			msg.ConversationID = persisted.ID
			go m.sender.Dispatch(msg)
		}
	}

	m.mu.Lock()
	fn := m.onConversations
	m.mu.Unlock()
	if fn != nil {
		fn(convs)
	}
}

func (m *Messenger) handleTypingChange(conversationID string, users []string) {
	conv := m.session.Conversation()
	if conv == nil || conv.ID != conversationID {
		return
	}
	m.mu.Lock()
	fn := m.onTypingUsers
	m.mu.Unlock()
	if fn != nil {
		fn(users)
	}
}

func (m *Messenger) emitError(err error) {
	m.log.Warn().Err(err).Msg("surfacing error")
	m.mu.Lock()
	fn := m.onError
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (m *Messenger) bind(conv domain.Conversation) {
	if prev := m.session.Conversation(); prev != nil && prev.Persisted() {
		m.typing.Stop(prev.ID)
	}
	m.promotion.Abandon()
	m.session.Bind(conv)
}
