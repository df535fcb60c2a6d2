package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCorrelationKeyIsOrderIndependent(t *testing.T) {
	require.Equal(t, NewCorrelationKey("alice", "bob"), NewCorrelationKey("bob", "alice"))
	require.Equal(t, "match_alice_bob", NewCorrelationKey("bob", "alice"))
}

func TestParseCorrelationKey(t *testing.T) {
	tests := []struct {
		key   string
		u1    string
		u2    string
		valid bool
	}{
		{"match_alice_bob", "alice", "bob", true},
		{"match_u1_u2", "u1", "u2", true},
		{"match_alice", "", "", false},
		{"match__bob", "", "", false},
		{"conv_123", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		u1, u2, ok := ParseCorrelationKey(tt.key)
		require.Equal(t, tt.valid, ok, tt.key)
		require.Equal(t, tt.u1, u1, tt.key)
		require.Equal(t, tt.u2, u2, tt.key)
	}
}

func TestPlaceholderConversation(t *testing.T) {
	conv := PlaceholderConversation("alice", User{ID: "bob", Name: "Bob"})

	require.False(t, conv.Persisted())
	require.Equal(t, "match_alice_bob", conv.CorrelationKey)
	require.Len(t, conv.Participants, 1)
	require.Equal(t, "bob", conv.Participants[0].ID)
}

func TestOtherParticipant(t *testing.T) {
	conv := Conversation{Participants: []User{{ID: "alice"}, {ID: "bob", Name: "Bob"}}}

	other := conv.OtherParticipant("alice")
	require.NotNil(t, other)
	require.Equal(t, "bob", other.ID)

	require.Nil(t, Conversation{}.OtherParticipant("alice"))
}
