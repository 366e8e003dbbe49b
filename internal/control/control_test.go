package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchClampsAndInvokesHandler(t *testing.T) {
	r := NewRegistry()
	var got int
	r.Register("swellpedal1", func(v int) { got = v })

	require.NoError(t, r.Dispatch("swellpedal1", 200))
	assert.Equal(t, 127, got)

	require.NoError(t, r.Dispatch("swellpedal1", -5))
	assert.Equal(t, 0, got)
}

func TestDispatchUnknownNameErrors(t *testing.T) {
	r := NewRegistry()
	err := r.Dispatch("nope", 10)
	assert.Error(t, err)
}

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue()
	events := []Event{
		{Kind: KeyOn, Manual: 0, Key: 36},
		{Kind: KeyOn, Manual: 1, Key: 5},
		{Kind: KeyOff, Manual: 0, Key: 36},
	}
	for _, ev := range events {
		require.True(t, q.Push(ev))
	}

	var got []Event
	q.Drain(func(ev Event) { got = append(got, ev) })

	assert.Equal(t, events, got)
}

func TestQueueRejectsPushPastCapacity(t *testing.T) {
	q := NewQueue()
	for i := 0; i < queueCapacity; i++ {
		require.True(t, q.Push(Event{Kind: KeyOn, Key: i % 61}))
	}
	assert.False(t, q.Push(Event{Kind: KeyOn, Key: 1}))
}

func TestQueueEmptyPopReturnsFalse(t *testing.T) {
	q := NewQueue()
	_, ok := q.Pop()
	assert.False(t, ok)
}
