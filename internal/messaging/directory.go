package messaging

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/wander-app/wander/internal/domain"
	"github.com/wander-app/wander/internal/transport"
)

// Directory owns the live list of the user's conversations. It is fed by the
// transport's conversation stream and by an opportunistic, debounced re-fetch
// after any local mutation, which absorbs backend-side updates the push
// stream has not emitted yet.
type Directory struct {
	gateway     transport.Gateway
	userID      string
	debounce    time.Duration
	callTimeout time.Duration
	log         zerolog.Logger

	mu            sync.Mutex
	conversations []domain.Conversation
	refreshTimer  *time.Timer
	closed        bool
	onUpdate      func([]domain.Conversation)
	onError       func(error)

	sf singleflight.Group
}

func NewDirectory(gateway transport.Gateway, userID string, debounce, callTimeout time.Duration, log zerolog.Logger) *Directory {
	return &Directory{
		gateway:     gateway,
		userID:      userID,
		debounce:    debounce,
		callTimeout: callTimeout,
		log:         log.With().Str("component", "directory").Logger(),
	}
}

func (d *Directory) SetOnUpdate(fn func([]domain.Conversation)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUpdate = fn
}

func (d *Directory) SetOnError(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = fn
}

// Refresh fetches the conversation list now. Concurrent callers share one
// in-flight fetch.
func (d *Directory) Refresh() {
	_, err, _ := d.sf.Do("refresh", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), d.callTimeout)
		defer cancel()

		convs, err := d.gateway.ListConversations(ctx, d.userID)
		if err != nil {
			return nil, err
		}
		d.SetList(convs)
		return nil, nil
	})
	if err != nil {
		d.emitError(&TransportError{Op: "list conversations", Err: err})
	}
}

// ScheduleRefresh arms (or re-arms) the debounced re-fetch. After Close it
// is a no-op; late push events must not revive the timer.
func (d *Directory) ScheduleRefresh() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.refreshTimer != nil {
		d.refreshTimer.Reset(d.debounce)
		return
	}
	d.refreshTimer = time.AfterFunc(d.debounce, d.Refresh)
}

// SetList replaces the canonical conversation list. Used both by Refresh and
// by the transport's conversation stream.
func (d *Directory) SetList(convs []domain.Conversation) {
	sorted := append([]domain.Conversation(nil), convs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastMessageAt.After(sorted[j].LastMessageAt)
	})

	d.mu.Lock()
	d.conversations = sorted
	fn := d.onUpdate
	snapshot := append([]domain.Conversation(nil), sorted...)
	d.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Conversations returns a snapshot of the canonical list.
func (d *Directory) Conversations() []domain.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Conversation(nil), d.conversations...)
}

// Get returns the conversation with the given id, or nil.
func (d *Directory) Get(id string) *domain.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.conversations {
		if d.conversations[i].ID == id {
			conv := d.conversations[i]
			return &conv
		}
	}
	return nil
}

// FindByCorrelationKey returns the conversation matching a correlation key,
// or nil.
func (d *Directory) FindByCorrelationKey(key string) *domain.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.conversations {
		if d.conversations[i].CorrelationKey == key {
			conv := d.conversations[i]
			return &conv
		}
	}
	return nil
}

// FindParticipant returns the profile of a user appearing in any known
// conversation, or nil.
func (d *Directory) FindParticipant(userID string) *domain.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.conversations {
		for j := range d.conversations[i].Participants {
			if d.conversations[i].Participants[j].ID == userID {
				user := d.conversations[i].Participants[j]
				return &user
			}
		}
	}
	return nil
}

// Search filters conversations by participant name and last-message content,
// case-insensitive. The canonical list is never mutated.
func (d *Directory) Search(query string) []domain.Conversation {
	query = strings.ToLower(strings.TrimSpace(query))
	convs := d.Conversations()
	if query == "" {
		return convs
	}

	var out []domain.Conversation
	for _, conv := range convs {
		if other := conv.OtherParticipant(d.userID); other != nil {
			if strings.Contains(strings.ToLower(other.Name), query) {
				out = append(out, conv)
				continue
			}
		}
		if conv.LastMessage != nil && strings.Contains(strings.ToLower(conv.LastMessage.Content), query) {
			out = append(out, conv)
		}
	}
	return out
}

// HandlePresence applies a presence push event to the best-effort online
// flag of conversations involving that user.
func (d *Directory) HandlePresence(userID string, online bool) {
	d.mu.Lock()
	changed := false
	for i := range d.conversations {
		for _, participant := range d.conversations[i].Participants {
			if participant.ID == userID {
				if d.conversations[i].IsOnline != online {
					d.conversations[i].IsOnline = online
					changed = true
				}
				break
			}
		}
	}
	fn := d.onUpdate
	snapshot := append([]domain.Conversation(nil), d.conversations...)
	d.mu.Unlock()

	if changed && fn != nil {
		fn(snapshot)
	}
}

// Close stops the pending debounced refresh and rejects further scheduling.
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.refreshTimer != nil {
		d.refreshTimer.Stop()
		d.refreshTimer = nil
	}
}

func (d *Directory) emitError(err error) {
	d.mu.Lock()
	fn := d.onError
	d.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
