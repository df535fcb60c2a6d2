package messaging

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wander-app/wander/internal/domain"
	"github.com/wander-app/wander/internal/transport"
)

// TypingController converts raw keystrokes into rate-limited typing events:
// one typing.start per burst, one typing.stop when the burst ends, either on
// explicit send or after the inactivity window. It also tracks which remote
// users are currently typing per conversation.
type TypingController struct {
	gateway transport.Gateway
	userID  string
	timeout time.Duration
	log     zerolog.Logger

	mu sync.Mutex
	// local maps conversation id -> active typing burst.
	local  map[string]*typingBurst
	remote map[string]map[string]struct{}

	onChange func(conversationID string, users []string)
}

// typingBurst identifies one continuous local typing burst. The expiry
// callback only acts if its burst is still the one in the map, so a
// keystroke landing at the expiry instant cannot be swallowed by the dying
// burst's callback.
type typingBurst struct {
	timer *time.Timer
}

func NewTypingController(gateway transport.Gateway, userID string, timeout time.Duration, log zerolog.Logger) *TypingController {
	return &TypingController{
		gateway: gateway,
		userID:  userID,
		timeout: timeout,
		log:     log.With().Str("component", "typing").Logger(),
		local:   make(map[string]*typingBurst),
		remote:  make(map[string]map[string]struct{}),
	}
}

func (c *TypingController) SetOnChange(fn func(conversationID string, users []string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Keystroke records local typing activity. The first keystroke of a burst
// emits typing.start; every further one only resets the inactivity timer.
func (c *TypingController) Keystroke(conversationID string) {
	c.mu.Lock()
	if b, ok := c.local[conversationID]; ok && b.timer.Reset(c.timeout) {
		c.mu.Unlock()
		return
	}
	// No burst, or the timer already fired and its expiry callback is in
	// flight. Either way a fresh burst starts here; a superseded callback
	// finds a different burst in the map and stays silent.
	b := &typingBurst{}
	b.timer = time.AfterFunc(c.timeout, func() {
		c.expire(conversationID, b)
	})
	c.local[conversationID] = b
	c.mu.Unlock()

	if err := c.gateway.StartTyping(conversationID, c.userID); err != nil {
		c.log.Warn().Err(err).Msg("start typing failed")
	}
}

// expire ends a burst from its inactivity timer. A burst that has been
// replaced or explicitly stopped in the meantime is left alone.
func (c *TypingController) expire(conversationID string, b *typingBurst) {
	c.mu.Lock()
	if c.local[conversationID] != b {
		c.mu.Unlock()
		return
	}
	delete(c.local, conversationID)
	c.mu.Unlock()

	if err := c.gateway.StopTyping(conversationID, c.userID); err != nil {
		c.log.Warn().Err(err).Msg("stop typing failed")
	}
}

// Stop ends the current typing burst, if any, and emits typing.stop.
func (c *TypingController) Stop(conversationID string) {
	c.mu.Lock()
	b, ok := c.local[conversationID]
	if ok {
		b.timer.Stop()
		delete(c.local, conversationID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if err := c.gateway.StopTyping(conversationID, c.userID); err != nil {
		c.log.Warn().Err(err).Msg("stop typing failed")
	}
}

// HandleRemote applies a pushed typing event. Events echoing the local user
// are dropped; the transport may loop our own typing.start back to us.
func (c *TypingController) HandleRemote(ev domain.TypingEvent) {
	if ev.UserID == c.userID {
		return
	}

	c.mu.Lock()
	set := c.remote[ev.ConversationID]
	if ev.IsTyping {
		if set == nil {
			set = make(map[string]struct{})
			c.remote[ev.ConversationID] = set
		}
		set[ev.UserID] = struct{}{}
	} else if set != nil {
		delete(set, ev.UserID)
		if len(set) == 0 {
			delete(c.remote, ev.ConversationID)
		}
	}
	users := usersLocked(set)
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(ev.ConversationID, users)
	}
}

// TypingUsers returns the remote users currently typing in a conversation.
func (c *TypingController) TypingUsers(conversationID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return usersLocked(c.remote[conversationID])
}

// Reset stops all local bursts and clears remote state.
func (c *TypingController) Reset() {
	c.mu.Lock()
	active := make([]string, 0, len(c.local))
	for id, b := range c.local {
		b.timer.Stop()
		active = append(active, id)
	}
	c.local = make(map[string]*typingBurst)
	c.remote = make(map[string]map[string]struct{})
	c.mu.Unlock()

	for _, id := range active {
		if err := c.gateway.StopTyping(id, c.userID); err != nil {
			c.log.Warn().Err(err).Msg("stop typing failed")
		}
	}
}

func usersLocked(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	users := make([]string, 0, len(set))
	for id := range set {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}
