package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	c := NewConversation("c1")
	for i := 0; i < 5; i++ {
		msg, err := c.Append(Message{Role: RoleUser, Content: "hi"})
		require.NoError(t, err)
		assert.Equal(t, i, msg.Seq)
	}
	msgs := c.Messages()
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].Seq, msgs[i-1].Seq)
	}
}

func TestSeqNeverReusedUnderConcurrentReaders(t *testing.T) {
	c := NewConversation("c1")
	var wg sync.WaitGroup
	// Readers snapshot while the single writer appends.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				msgs := c.Messages()
				for k := 1; k < len(msgs); k++ {
					if msgs[k].Seq != msgs[k-1].Seq+1 {
						t.Error("sequence gap observed")
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		_, err := c.Append(Message{Role: RoleAssistant})
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestTerminalStatusIsFinal(t *testing.T) {
	c := NewConversation("c1")
	require.NoError(t, c.SetStatus(StatusAwaitingModel))
	require.NoError(t, c.SetStatus(StatusCancelled))

	assert.Error(t, c.SetStatus(StatusCompleted))
	assert.Error(t, c.SetStatus(StatusRunning))
	assert.Equal(t, StatusCancelled, c.Status())

	_, err := c.Append(Message{Role: RoleUser})
	assert.Error(t, err)
}

func TestCallStatusTransitions(t *testing.T) {
	assert.True(t, CallPending.CanTransition(CallRunning))
	assert.True(t, CallPending.CanTransition(CallCancelled))
	assert.True(t, CallRunning.CanTransition(CallSucceeded))
	assert.True(t, CallRunning.CanTransition(CallFailed))
	assert.True(t, CallRunning.CanTransition(CallCancelled))

	// Never backward.
	assert.False(t, CallRunning.CanTransition(CallPending))
	assert.False(t, CallSucceeded.CanTransition(CallRunning))
	assert.False(t, CallCancelled.CanTransition(CallSucceeded))
	assert.False(t, CallPending.CanTransition(CallSucceeded))
}

func TestAdvanceCallStatusUpdatesStoredMessage(t *testing.T) {
	c := NewConversation("c1")
	stored, err := c.Append(Message{Role: RoleAssistant, ToolCalls: []ToolCall{
		{ToolCallID: "call_1", Name: "execute_command", Status: CallPending},
	}})
	require.NoError(t, err)

	require.NoError(t, c.AdvanceCallStatus(stored.Seq, "call_1", CallRunning))
	require.NoError(t, c.AdvanceCallStatus(stored.Seq, "call_1", CallSucceeded))

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, CallSucceeded, msgs[0].ToolCalls[0].Status)

	// Never backward, and unknown targets are rejected.
	assert.Error(t, c.AdvanceCallStatus(stored.Seq, "call_1", CallRunning))
	assert.Error(t, c.AdvanceCallStatus(stored.Seq, "call_2", CallRunning))
	assert.Error(t, c.AdvanceCallStatus(stored.Seq+1, "call_1", CallRunning))
}

func TestMessagesSnapshotIsolatedFromCallUpdates(t *testing.T) {
	c := NewConversation("c1")
	stored, err := c.Append(Message{Role: RoleAssistant, ToolCalls: []ToolCall{
		{ToolCallID: "call_1", Name: "read_file", Status: CallPending},
	}})
	require.NoError(t, err)

	before := c.Messages()
	require.NoError(t, c.AdvanceCallStatus(stored.Seq, "call_1", CallRunning))

	assert.Equal(t, CallPending, before[0].ToolCalls[0].Status)
	assert.Equal(t, CallRunning, c.Messages()[0].ToolCalls[0].Status)
}

func TestSeedOnlyOnEmpty(t *testing.T) {
	c := NewConversation("c1")
	require.NoError(t, c.Seed([]Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
	}))
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, 0, msgs[0].Seq)
	assert.Equal(t, 1, msgs[1].Seq)

	assert.Error(t, c.Seed([]Message{{Role: RoleUser}}))
}

func TestTraceRoundTrip(t *testing.T) {
	c := NewConversation("c1")
	_, err := c.Append(Message{Role: RoleUser, Content: "list files in /tmp"})
	require.NoError(t, err)
	_, err = c.Append(Message{Role: RoleAssistant, ToolCalls: []ToolCall{
		{ToolCallID: "call_1", Name: "execute_command", Args: map[string]interface{}{"command": "ls /tmp"}},
	}})
	require.NoError(t, err)
	_, err = c.Append(Message{Role: RoleTool, Content: "a.txt", ToolCalls: []ToolCall{{ToolCallID: "call_1", Name: "execute_command"}}})
	require.NoError(t, err)

	data, err := c.Snapshot().Encode()
	require.NoError(t, err)

	decoded, ok := DecodeTrace(data)
	require.True(t, ok)

	restored := NewConversation("c2")
	require.NoError(t, restored.Seed(decoded.Messages))
	assert.Equal(t, c.Messages(), restored.Messages())
}

func TestDecodeTraceRejectsPlainText(t *testing.T) {
	_, ok := DecodeTrace([]byte("explain this error"))
	assert.False(t, ok)
	_, ok = DecodeTrace([]byte(`{"foo": 1}`))
	assert.False(t, ok)
}
