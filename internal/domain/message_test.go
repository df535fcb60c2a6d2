package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTempMessageID(t *testing.T) {
	id := NewTempMessageID()
	require.True(t, Message{ID: id}.IsTemp())
	require.NotEqual(t, id, NewTempMessageID())
}

func TestIsTemp(t *testing.T) {
	require.True(t, Message{ID: "temp_abc"}.IsTemp())
	require.False(t, Message{ID: "srv_abc"}.IsTemp())
	require.False(t, Message{}.IsTemp())
}
