package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(sub *Subscription) []Event {
	var out []Event
	for evt := range sub.C {
		out = append(out, evt)
	}
	return out
}

func TestPublishAssignsIncreasingSeq(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()

	for i := 0; i < 3; i++ {
		_, err := b.Publish(Event{Type: TypeTextDelta, Text: "x"})
		require.NoError(t, err)
	}
	_, err := b.Publish(Event{Type: TypeConversationEnded})
	require.NoError(t, err)

	got := collect(sub)
	require.Len(t, got, 4)
	for i, evt := range got {
		assert.Equal(t, uint64(i+1), evt.Seq)
	}
	assert.Equal(t, TypeConversationEnded, got[3].Type)
}

func TestConcurrentPublishersSeqUnique(t *testing.T) {
	b := NewSizedBus(2048, 2048)
	sub := b.Subscribe()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := b.Publish(Event{Type: TypeTextDelta})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	_, err := b.Publish(Event{Type: TypeConversationEnded})
	require.NoError(t, err)

	got := collect(sub)
	require.Len(t, got, 401)
	seen := make(map[uint64]bool)
	var last uint64
	for _, evt := range got {
		assert.False(t, seen[evt.Seq], "seq reused")
		seen[evt.Seq] = true
		assert.Greater(t, evt.Seq, last)
		last = evt.Seq
	}
}

func TestLateSubscriberSeesOnlyNewEvents(t *testing.T) {
	b := NewBus()
	_, err := b.Publish(Event{Type: TypeTextDelta, Text: "early"})
	require.NoError(t, err)

	sub := b.Subscribe()
	_, err = b.Publish(Event{Type: TypeTextDelta, Text: "late"})
	require.NoError(t, err)
	_, err = b.Publish(Event{Type: TypeConversationEnded})
	require.NoError(t, err)

	got := collect(sub)
	require.Len(t, got, 2)
	assert.Equal(t, "late", got[0].Text)
}

func TestSubscribeAfterReplays(t *testing.T) {
	b := NewBus()
	for i := 0; i < 5; i++ {
		_, err := b.Publish(Event{Type: TypeTextDelta})
		require.NoError(t, err)
	}

	sub, err := b.SubscribeAfter(2)
	require.NoError(t, err)
	_, err = b.Publish(Event{Type: TypeConversationEnded})
	require.NoError(t, err)

	got := collect(sub)
	require.Len(t, got, 4) // seq 3,4,5 replayed + terminal
	assert.Equal(t, uint64(3), got[0].Seq)
}

func TestSubscribeAfterGapDetected(t *testing.T) {
	b := NewSizedBus(8, 4)
	for i := 0; i < 10; i++ {
		_, err := b.Publish(Event{Type: TypeTextDelta})
		require.NoError(t, err)
	}
	// Window now holds seq 7..10; asking for events after 2 is a gap.
	_, err := b.SubscribeAfter(2)
	assert.Error(t, err)

	sub, err := b.SubscribeAfter(6)
	require.NoError(t, err)
	sub.Cancel()
}

func TestSlowSubscriberDroppedNotProducer(t *testing.T) {
	b := NewSizedBus(2, 64)
	slow := b.Subscribe()

	// Overflow the 2-slot buffer without draining.
	for i := 0; i < 5; i++ {
		_, err := b.Publish(Event{Type: TypeTextDelta})
		require.NoError(t, err)
	}
	assert.False(t, b.Closed(), "producer must not be blocked or closed")

	// The subscriber gets its buffered events, then the disconnect marker,
	// then a closed channel.
	got := collect(slow)
	require.Len(t, got, 3)
	assert.Equal(t, TypeTextDelta, got[0].Type)
	assert.Equal(t, TypeTextDelta, got[1].Type)
	assert.Equal(t, TypeSubscriberDropped, got[2].Type)
}

func TestDroppedSubscriberDoesNotReceiveLaterEvents(t *testing.T) {
	b := NewSizedBus(1, 64)
	slow := b.Subscribe()

	_, err := b.Publish(Event{Type: TypeTextDelta, Text: "first"})
	require.NoError(t, err)
	_, err = b.Publish(Event{Type: TypeTextDelta, Text: "second"})
	require.NoError(t, err)
	_, err = b.Publish(Event{Type: TypeConversationEnded})
	require.NoError(t, err)

	got := collect(slow)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, TypeSubscriberDropped, got[1].Type)
}

func TestPublishAfterTerminalRejected(t *testing.T) {
	b := NewBus()
	_, err := b.Publish(Event{Type: TypeConversationEnded, Reason: "done"})
	require.NoError(t, err)

	_, err = b.Publish(Event{Type: TypeTextDelta})
	assert.Error(t, err)
	assert.True(t, b.Closed())
}

func TestSubscribeOnClosedBus(t *testing.T) {
	b := NewBus()
	_, err := b.Publish(Event{Type: TypeConversationEnded})
	require.NoError(t, err)

	sub := b.Subscribe()
	_, open := <-sub.C
	assert.False(t, open)
	sub.Cancel() // must not panic
}

func TestCancelIdempotent(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	sub.Cancel()
	sub.Cancel()
	_, err := b.Publish(Event{Type: TypeTextDelta})
	assert.NoError(t, err)
}
