package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dastari/sidereal-v3/internal/simcore"
)

func TestInputHistory_AppendBounded(t *testing.T) {
	var history InputHistory
	for tick := uint64(1); tick <= InputHistoryCapacity+10; tick++ {
		history.Append(InputHistoryEntry{Tick: tick, Input: simcore.InputSnapshot{ThrustForward: true}})
	}

	assert.Equal(t, InputHistoryCapacity, history.Len())
	oldest, ok := history.Oldest()
	require.True(t, ok)
	assert.Equal(t, uint64(11), oldest.Tick, "oldest entries drop first")
}

func TestInputHistory_PruneThrough(t *testing.T) {
	var history InputHistory
	for tick := uint64(1); tick <= 10; tick++ {
		history.Append(InputHistoryEntry{Tick: tick})
	}

	history.PruneThrough(6)
	assert.Equal(t, 4, history.Len())
	oldest, _ := history.Oldest()
	assert.Equal(t, uint64(7), oldest.Tick)

	history.PruneThrough(100)
	assert.Equal(t, 0, history.Len())
}

func TestInputHistory_After(t *testing.T) {
	var history InputHistory
	for tick := uint64(1); tick <= 5; tick++ {
		history.Append(InputHistoryEntry{Tick: tick})
	}

	replay := history.After(3)
	require.Len(t, replay, 2)
	assert.Equal(t, uint64(4), replay[0].Tick)
	assert.Equal(t, uint64(5), replay[1].Tick)
}

func TestInputHistory_Clear(t *testing.T) {
	var history InputHistory
	history.Append(InputHistoryEntry{Tick: 1})
	history.Clear()
	assert.Equal(t, 0, history.Len())
	_, ok := history.Oldest()
	assert.False(t, ok)
}
