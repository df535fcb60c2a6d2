package messaging

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wander-app/wander/internal/domain"
)

func TestTypingBurstEmitsSingleStart(t *testing.T) {
	fake := newFakeGateway()
	c := NewTypingController(fake, "u1", time.Hour, zerolog.Nop())

	for i := 0; i < 5; i++ {
		c.Keystroke("conv_1")
	}

	require.Equal(t, []string{"conv_1"}, fake.typingStartLog())
	require.Empty(t, fake.typingStopLog())
}

func TestTypingStopsAfterInactivity(t *testing.T) {
	fake := newFakeGateway()
	c := NewTypingController(fake, "u1", 20*time.Millisecond, zerolog.Nop())

	c.Keystroke("conv_1")

	require.Eventually(t, func() bool {
		return len(fake.typingStopLog()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"conv_1"}, fake.typingStartLog())
}

func TestTypingKeystrokeExtendsBurst(t *testing.T) {
	fake := newFakeGateway()
	c := NewTypingController(fake, "u1", 60*time.Millisecond, zerolog.Nop())

	c.Keystroke("conv_1")
	time.Sleep(40 * time.Millisecond)
	c.Keystroke("conv_1")
	time.Sleep(40 * time.Millisecond)

	// The second keystroke reset the timer, so no stop has fired yet.
	require.Empty(t, fake.typingStopLog())
	require.Equal(t, []string{"conv_1"}, fake.typingStartLog())
	c.Stop("conv_1")
}

func TestTypingExplicitStopEndsBurst(t *testing.T) {
	fake := newFakeGateway()
	c := NewTypingController(fake, "u1", time.Hour, zerolog.Nop())

	c.Keystroke("conv_1")
	c.Stop("conv_1")
	c.Stop("conv_1") // no burst anymore, must not emit again

	require.Equal(t, []string{"conv_1"}, fake.typingStopLog())
}

func TestTypingSupersededExpiryDoesNotEndNewBurst(t *testing.T) {
	fake := newFakeGateway()
	c := NewTypingController(fake, "u1", time.Hour, zerolog.Nop())

	c.Keystroke("conv_1")
	c.mu.Lock()
	stale := c.local["conv_1"]
	c.mu.Unlock()

	// The burst ends and a new one starts before the old expiry callback
	// gets to run.
	c.Stop("conv_1")
	c.Keystroke("conv_1")
	c.expire("conv_1", stale)

	require.Equal(t, []string{"conv_1"}, fake.typingStopLog())
	require.Equal(t, []string{"conv_1", "conv_1"}, fake.typingStartLog())

	// The live burst still ends normally.
	c.Stop("conv_1")
	require.Len(t, fake.typingStopLog(), 2)
}

func TestTypingStopWithoutBurstIsNoop(t *testing.T) {
	fake := newFakeGateway()
	c := NewTypingController(fake, "u1", time.Hour, zerolog.Nop())

	c.Stop("conv_1")

	require.Empty(t, fake.typingStopLog())
}

func TestTypingRemoteSelfEchoDropped(t *testing.T) {
	fake := newFakeGateway()
	c := NewTypingController(fake, "u1", time.Hour, zerolog.Nop())

	c.HandleRemote(domain.TypingEvent{ConversationID: "conv_1", UserID: "u1", IsTyping: true})

	require.Empty(t, c.TypingUsers("conv_1"))
}

func TestTypingRemoteAddAndRemove(t *testing.T) {
	fake := newFakeGateway()
	c := NewTypingController(fake, "u1", time.Hour, zerolog.Nop())

	var mu sync.Mutex
	var last []string
	c.SetOnChange(func(conversationID string, users []string) {
		mu.Lock()
		last = users
		mu.Unlock()
	})

	c.HandleRemote(domain.TypingEvent{ConversationID: "conv_1", UserID: "u3", IsTyping: true})
	c.HandleRemote(domain.TypingEvent{ConversationID: "conv_1", UserID: "u2", IsTyping: true})
	require.Equal(t, []string{"u2", "u3"}, c.TypingUsers("conv_1"))

	c.HandleRemote(domain.TypingEvent{ConversationID: "conv_1", UserID: "u3", IsTyping: false})
	require.Equal(t, []string{"u2"}, c.TypingUsers("conv_1"))
	mu.Lock()
	require.Equal(t, []string{"u2"}, last)
	mu.Unlock()
}

func TestTypingRemoteIsScopedPerConversation(t *testing.T) {
	fake := newFakeGateway()
	c := NewTypingController(fake, "u1", time.Hour, zerolog.Nop())

	c.HandleRemote(domain.TypingEvent{ConversationID: "conv_1", UserID: "u2", IsTyping: true})

	require.Empty(t, c.TypingUsers("conv_2"))
}

func TestTypingResetStopsActiveBursts(t *testing.T) {
	fake := newFakeGateway()
	c := NewTypingController(fake, "u1", time.Hour, zerolog.Nop())

	c.Keystroke("conv_1")
	c.HandleRemote(domain.TypingEvent{ConversationID: "conv_1", UserID: "u2", IsTyping: true})
	c.Reset()

	require.Equal(t, []string{"conv_1"}, fake.typingStopLog())
	require.Empty(t, c.TypingUsers("conv_1"))
}
