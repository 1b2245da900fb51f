package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch_IsTargeted(t *testing.T) {
	open := &Match{UserID: 1}
	assert.False(t, open.IsTargeted())

	opponent := int64(2)
	targeted := &Match{UserID: 1, OpponentID: &opponent}
	assert.True(t, targeted.IsTargeted())
}

func TestMatch_IsParticipant(t *testing.T) {
	opponent := int64(2)
	m := &Match{UserID: 1, OpponentID: &opponent}

	assert.True(t, m.IsParticipant(1))
	assert.True(t, m.IsParticipant(2))
	assert.False(t, m.IsParticipant(3))

	open := &Match{UserID: 1}
	assert.True(t, open.IsParticipant(1))
	assert.False(t, open.IsParticipant(2))
}

func TestMatch_OtherParticipant(t *testing.T) {
	opponent := int64(2)
	m := &Match{UserID: 1, OpponentID: &opponent}

	assert.Equal(t, int64(2), m.OtherParticipant(1))
	assert.Equal(t, int64(1), m.OtherParticipant(2))
}

func TestIsTerminal(t *testing.T) {
	terminal := []string{StatusDeclined, StatusCancelled, StatusStalemate, StatusSurrendered, StatusWon}
	for _, status := range terminal {
		assert.True(t, IsTerminal(status), status)
	}
	assert.False(t, IsTerminal(StatusInvite))
	assert.False(t, IsTerminal(StatusInProgress))
	assert.False(t, IsTerminal("unknown"))
}
