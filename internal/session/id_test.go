package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	id, err := NewSessionID()
	require.NoError(t, err)

	parts := strings.Split(id, "_")
	require.Len(t, parts, 3)
	assert.Equal(t, "sess", parts[0])
	assert.Len(t, parts[2], 8)
}

func TestNewSessionIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewSessionID()
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
