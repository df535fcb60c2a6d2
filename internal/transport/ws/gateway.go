package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/wander-app/wander/internal/config"
	"github.com/wander-app/wander/internal/domain"
	"github.com/wander-app/wander/internal/transport"
)

const (
	writeWait         = 10 * time.Second
	pingInterval      = 30 * time.Second
	dialTimeout       = 10 * time.Second
	maxMessageSize    = 65536
	sendBufSize       = 256
	maxReconnectTries = 5
)

// Gateway implements transport.Gateway over a WebSocket push stream and an
// HTTP request/response API, the two halves of the messaging backend.
type Gateway struct {
	api    *apiClient
	log    zerolog.Logger
	wsURL  string
	token  string
	userID string

	// joined tracks active channel subscriptions so they can be replayed
	// after a reconnect.
	mu     sync.RWMutex
	joined map[string]struct{}

	onMessage       func(domain.Message)
	onTyping        func(domain.TypingEvent)
	onConversations func([]domain.Conversation)
	onPresence      func(userID string, online bool)

	connMu sync.RWMutex
	conn   *websocket.Conn

	send chan []byte
	done chan struct{}
}

var _ transport.Gateway = (*Gateway)(nil)

// Dial connects the gateway and starts its read/write pumps. The local user
// identity is taken from the auth token's subject claim.
func Dial(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Gateway, error) {
	userID, err := IdentityFromToken(cfg.AuthToken)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		api:    newAPIClient(cfg.APIBaseURL, cfg.AuthToken, cfg.CallTimeout),
		log:    log.With().Str("component", "ws-gateway").Logger(),
		wsURL:  cfg.WSURL,
		token:  cfg.AuthToken,
		userID: userID,
		joined: make(map[string]struct{}),
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}

	if err := g.connect(ctx); err != nil {
		return nil, err
	}
	go g.run()

	return g, nil
}

// LocalUserID returns the user id derived from the auth token.
func (g *Gateway) LocalUserID() string {
	return g.userID
}

// Close shuts down the push stream. Request/response calls still work after
// Close; only push delivery stops.
func (g *Gateway) Close() {
	close(g.done)
	g.connMu.RLock()
	conn := g.conn
	g.connMu.RUnlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// --- request/response half, delegated to the HTTP API ---

func (g *Gateway) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return g.api.ListConversations(ctx, userID)
}

func (g *Gateway) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	return g.api.ListMessages(ctx, conversationID)
}

func (g *Gateway) SendMessage(ctx context.Context, input transport.SendMessageInput) (*domain.Message, error) {
	return g.api.SendMessage(ctx, input)
}

func (g *Gateway) MarkRead(ctx context.Context, conversationID, userID string) error {
	return g.api.MarkRead(ctx, conversationID, userID)
}

func (g *Gateway) CreateOrGetConversation(ctx context.Context, userID, otherUserID string) (string, error) {
	return g.api.CreateOrGetConversation(ctx, userID, otherUserID)
}

func (g *Gateway) CreateConversationWithInitialMessage(ctx context.Context, input transport.CreateConversationInput) (*domain.Conversation, error) {
	return g.api.CreateConversationWithInitialMessage(ctx, input)
}

// --- push half ---

func (g *Gateway) Join(conversationID string) error {
	g.mu.Lock()
	g.joined[conversationID] = struct{}{}
	g.mu.Unlock()
	return g.enqueueEvent(transport.EventTypeSubscribe, conversationID, transport.SubscribePayload{ConversationID: conversationID})
}

func (g *Gateway) Leave(conversationID string) error {
	g.mu.Lock()
	delete(g.joined, conversationID)
	g.mu.Unlock()
	return g.enqueueEvent(transport.EventTypeUnsubscribe, conversationID, transport.SubscribePayload{ConversationID: conversationID})
}

func (g *Gateway) StartTyping(conversationID, userID string) error {
	return g.enqueueEvent(transport.EventTypeTypingStart, conversationID, transport.TypingStatePayload{UserID: userID, IsTyping: true})
}

func (g *Gateway) StopTyping(conversationID, userID string) error {
	return g.enqueueEvent(transport.EventTypeTypingStop, conversationID, transport.TypingStatePayload{UserID: userID, IsTyping: false})
}

func (g *Gateway) OnMessage(handler func(domain.Message)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onMessage = handler
}

func (g *Gateway) OnTyping(handler func(domain.TypingEvent)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTyping = handler
}

func (g *Gateway) OnConversations(handler func([]domain.Conversation)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onConversations = handler
}

func (g *Gateway) OnPresence(handler func(userID string, online bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onPresence = handler
}

func (g *Gateway) enqueueEvent(eventType, conversationID string, payload any) error {
	evt, err := transport.NewEvent(eventType, conversationID, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	select {
	case g.send <- data:
		return nil
	default:
		return fmt.Errorf("ws send buffer full, dropping %s", eventType)
	}
}

func (g *Gateway) connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, g.wsURL+"?token="+url.QueryEscape(g.token), nil)
	if err != nil {
		return fmt.Errorf("dialing ws: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	g.connMu.Lock()
	g.conn = conn
	g.connMu.Unlock()
	return nil
}

// run owns the connection lifecycle: pump until the connection drops, then
// reconnect with exponential backoff and replay channel subscriptions.
func (g *Gateway) run() {
	for {
		stop := make(chan struct{})
		go g.writePump(stop)
		g.readPump()
		close(stop)

		select {
		case <-g.done:
			return
		default:
		}

		if err := g.reconnect(); err != nil {
			g.log.Error().Err(err).Msg("reconnect failed, push stream closed")
			return
		}
		g.log.Info().Msg("reconnected")
	}
}

func (g *Gateway) reconnect() error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second

	op := func() error {
		select {
		case <-g.done:
			return backoff.Permanent(context.Canceled)
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		return g.connect(ctx)
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, maxReconnectTries)); err != nil {
		return err
	}

	g.rejoinAll()
	return nil
}

func (g *Gateway) rejoinAll() {
	g.mu.RLock()
	ids := make([]string, 0, len(g.joined))
	for id := range g.joined {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	for _, id := range ids {
		if err := g.enqueueEvent(transport.EventTypeSubscribe, id, transport.SubscribePayload{ConversationID: id}); err != nil {
			g.log.Warn().Err(err).Str("conversation", id).Msg("rejoin failed")
		}
	}
}

// readPump reads events from the WebSocket until the connection fails.
func (g *Gateway) readPump() {
	g.connMu.RLock()
	conn := g.conn
	g.connMu.RUnlock()

	for {
		var event transport.Event
		if err := wsjson.Read(context.Background(), conn, &event); err != nil {
			if websocket.CloseStatus(err) != -1 {
				g.log.Info().Msg("connection closed")
			} else {
				g.log.Warn().Err(err).Msg("read error")
			}
			return
		}
		g.dispatch(&event)
	}
}

// writePump writes queued events to the WebSocket and keeps the connection
// alive with pings.
func (g *Gateway) writePump(stop chan struct{}) {
	g.connMu.RLock()
	conn := g.conn
	g.connMu.RUnlock()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-g.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				g.log.Warn().Err(err).Msg("write error")
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				g.log.Warn().Err(err).Msg("ping error")
				return
			}

		case <-stop:
			return

		case <-g.done:
			return
		}
	}
}

// dispatch routes a server event to the registered handler.
func (g *Gateway) dispatch(event *transport.Event) {
	g.mu.RLock()
	onMessage := g.onMessage
	onTyping := g.onTyping
	onConversations := g.onConversations
	onPresence := g.onPresence
	g.mu.RUnlock()

	switch event.Type {
	case transport.EventTypeMessageNew:
		if onMessage == nil {
			return
		}
		var p transport.MessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			g.log.Warn().Err(err).Msg("bad message.new payload")
			return
		}
		if p.ConversationID == "" {
			p.ConversationID = event.ConversationID
		}
		onMessage(p.Message)

	case transport.EventTypeConversationList:
		if onConversations == nil {
			return
		}
		var p transport.ConversationListPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			g.log.Warn().Err(err).Msg("bad conversation.list payload")
			return
		}
		onConversations(p.Conversations)

	case transport.EventTypeTyping:
		if onTyping == nil {
			return
		}
		var p transport.TypingPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			g.log.Warn().Err(err).Msg("bad typing payload")
			return
		}
		onTyping(domain.TypingEvent{
			ConversationID: event.ConversationID,
			UserID:         p.UserID,
			IsTyping:       p.IsTyping,
			At:             time.Unix(event.Timestamp, 0),
		})

	case transport.EventTypePresence:
		if onPresence == nil {
			return
		}
		var p transport.PresencePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return
		}
		onPresence(p.UserID, p.Status == "online")

	case transport.EventTypePong:
		// keepalive, nothing to do

	case transport.EventTypeError:
		var p transport.ErrorPayload
		if err := json.Unmarshal(event.Payload, &p); err == nil {
			g.log.Warn().Str("code", p.Code).Str("message", p.Message).Msg("server error event")
		}

	default:
		g.log.Debug().Str("type", event.Type).Msg("unknown event type")
	}
}
