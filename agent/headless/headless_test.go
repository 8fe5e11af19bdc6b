package headless

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/liveeadmin/shai/agent"
	"github.com/liveeadmin/shai/config"
	"github.com/liveeadmin/shai/events"
	"github.com/liveeadmin/shai/llm"
	"github.com/liveeadmin/shai/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent() *agent.Agent {
	conv := session.NewConversation("headless-test")
	bus := events.NewBus()
	cfg := agent.Config{
		TurnBudget:  4,
		ToolTimeout: time.Second,
		Retry:       config.Retry{MaxRetries: 1, BackoffBase: time.Millisecond},
	}
	return agent.New(cfg, conv, bus, &llm.MockClient{}, nil, agent.ModeAuto, nil)
}

func TestRunPromptFromStdin(t *testing.T) {
	a := newTestAgent()
	var out, errOut bytes.Buffer

	err := Run(context.Background(), a, Options{
		In:     strings.NewReader("what is in /tmp"),
		Out:    &out,
		ErrOut: &errOut,
	})
	require.NoError(t, err)

	assert.Contains(t, errOut.String(), "mock reply to: what is in /tmp")
	assert.Contains(t, errOut.String(), "[done] completed")
	assert.Empty(t, out.String(), "no trace without the trace flag")
}

func TestRunEmitsTrace(t *testing.T) {
	a := newTestAgent()
	var out bytes.Buffer

	err := Run(context.Background(), a, Options{
		Prompt:    "hello",
		In:        strings.NewReader(""),
		Out:       &out,
		ErrOut:    nil,
		EmitTrace: true,
	})
	require.NoError(t, err)

	trace, ok := session.DecodeTrace(out.Bytes())
	require.True(t, ok)
	assert.Equal(t, session.StatusCompleted, trace.Status)
	require.Len(t, trace.Messages, 2)
	assert.Equal(t, session.RoleUser, trace.Messages[0].Role)
	assert.Equal(t, session.RoleAssistant, trace.Messages[1].Role)
}

// A trace piped back in reconstructs the same message sequence as context for
// the next turn.
func TestRunTraceRoundTrip(t *testing.T) {
	first := newTestAgent()
	var firstOut bytes.Buffer
	require.NoError(t, Run(context.Background(), first, Options{
		Prompt:    "turn one",
		In:        strings.NewReader(""),
		Out:       &firstOut,
		EmitTrace: true,
	}))

	second := newTestAgent()
	var secondOut bytes.Buffer
	require.NoError(t, Run(context.Background(), second, Options{
		Prompt:    "turn two",
		In:        bytes.NewReader(firstOut.Bytes()),
		Out:       &secondOut,
		EmitTrace: true,
	}))

	trace, ok := session.DecodeTrace(secondOut.Bytes())
	require.True(t, ok)
	require.Len(t, trace.Messages, 4)

	firstTrace, _ := session.DecodeTrace(firstOut.Bytes())
	for i, msg := range firstTrace.Messages {
		assert.Equal(t, msg.Role, trace.Messages[i].Role)
		assert.Equal(t, msg.Content, trace.Messages[i].Content)
		assert.Equal(t, i, trace.Messages[i].Seq)
	}
}

func TestRunTraceRequiresPrompt(t *testing.T) {
	first := newTestAgent()
	var firstOut bytes.Buffer
	require.NoError(t, Run(context.Background(), first, Options{
		Prompt:    "turn one",
		In:        strings.NewReader(""),
		Out:       &firstOut,
		EmitTrace: true,
	}))

	second := newTestAgent()
	err := Run(context.Background(), second, Options{
		In:  bytes.NewReader(firstOut.Bytes()),
		Out: &bytes.Buffer{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt argument is required")
}

func TestRunNoInput(t *testing.T) {
	a := newTestAgent()
	err := Run(context.Background(), a, Options{
		In:  strings.NewReader("   "),
		Out: &bytes.Buffer{},
	})
	require.Error(t, err)
}
