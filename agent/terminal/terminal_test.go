package terminal

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
	conv := session.NewConversation("term-test")
	bus := events.NewBus()
	cfg := agent.Config{
		TurnBudget:  4,
		ToolTimeout: time.Second,
		Retry:       config.Retry{MaxRetries: 1, BackoffBase: time.Millisecond},
	}
	return agent.New(cfg, conv, bus, &llm.MockClient{}, nil, agent.ModeAuto, nil)
}

func TestTerminalRunWithInitialPrompt(t *testing.T) {
	a := newTestAgent()
	var out bytes.Buffer
	term := New(a, strings.NewReader(""), &out, VerbosityNone)

	err := term.Run(context.Background(), "hello there")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "shai: mock reply to: hello there")
	assert.Equal(t, session.StatusCompleted, a.Conversation().Status())
}

func TestTerminalQuitCommand(t *testing.T) {
	a := newTestAgent()
	var out bytes.Buffer
	term := New(a, strings.NewReader("first question\n/quit\n"), &out, VerbosityNone)

	err := term.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "mock reply to: first question")
	assert.Equal(t, session.StatusCompleted, a.Conversation().Status())
}

func TestTerminalSkipsBlankLines(t *testing.T) {
	a := newTestAgent()
	var out bytes.Buffer
	term := New(a, strings.NewReader("\n   \n/exit\n"), &out, VerbosityNone)

	require.NoError(t, term.Run(context.Background(), ""))
	assert.NotContains(t, out.String(), "mock reply")
}

func TestPromptApprover(t *testing.T) {
	call := session.ToolCall{ToolCallID: "call_1", Name: "execute_command"}

	var out bytes.Buffer
	approve := PromptApprover(strings.NewReader("y\n"), &out)
	assert.True(t, approve(call))
	assert.Contains(t, out.String(), "execute_command")

	deny := PromptApprover(strings.NewReader("n\n"), &out)
	assert.False(t, deny(call))
}
