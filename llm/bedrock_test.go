package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTool is a minimal tool for exercising the request builders.
type stubTool struct {
	name        string
	description string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.description }

func (s *stubTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return "stub result", nil
}

func TestConvertMessagesToBedrockFormat(t *testing.T) {
	result, _ := convertMessagesToBedrockFormat([]session.Message{
		{Role: session.RoleUser, Content: "Hello, world!"},
	})
	require.Len(t, result, 1)
	assert.Equal(t, "user", result[0]["role"])

	result, _ = convertMessagesToBedrockFormat([]session.Message{
		{Role: session.RoleAssistant, Content: "Hello! How can I help you?"},
	})
	require.Len(t, result, 1)
	assert.Equal(t, "assistant", result[0]["role"])

	result, _ = convertMessagesToBedrockFormat([]session.Message{
		{
			Role: session.RoleAssistant,
			ToolCalls: []session.ToolCall{
				{
					ToolCallID: "call_1",
					Name:       "test_tool",
					Args:       map[string]interface{}{"param1": "value1"},
				},
			},
		},
	})
	require.Len(t, result, 1)

	// Tool results go back to the model as user messages.
	result, _ = convertMessagesToBedrockFormat([]session.Message{
		{
			Role:    session.RoleTool,
			Content: "Tool result",
			ToolCalls: []session.ToolCall{
				{ToolCallID: "call_1", Name: "test_tool"},
			},
		},
	})
	require.Len(t, result, 1)
	assert.Equal(t, "user", result[0]["role"])
}

func TestConvertMessagesToBedrockFormatSystemPrompt(t *testing.T) {
	result, system := convertMessagesToBedrockFormat([]session.Message{
		{Role: session.RoleSystem, Content: "be terse"},
		{Role: session.RoleUser, Content: "hi"},
	})
	require.Len(t, result, 1)
	assert.Equal(t, "be terse", system)
}

func TestCreateBedrockRequest(t *testing.T) {
	messages := []map[string]interface{}{
		{
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "text", "text": "Hello!"},
			},
		},
	}

	body, err := createBedrockRequest(messages, "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, body)

	body, err = createBedrockRequest(messages, "system prompt", []tools.Tool{
		&stubTool{name: "test_tool", description: "A test tool"},
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "system prompt", decoded["system"])
	assert.Len(t, decoded["tools"], 1)
}

func TestProcessBedrockResponse(t *testing.T) {
	body := []byte(`{
		"content": [
			{"type": "text", "text": "Running the tool."},
			{"type": "tool_use", "id": "toolu_1", "name": "test_tool", "input": {"path": "a.txt"}}
		]
	}`)

	msg, err := processBedrockResponse(body)
	require.NoError(t, err)
	assert.Equal(t, session.RoleAssistant, msg.Role)
	assert.Equal(t, "Running the tool.", msg.Content)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "toolu_1", msg.ToolCalls[0].ToolCallID)
	assert.Equal(t, "test_tool", msg.ToolCalls[0].Name)
}

func TestProcessBedrockResponseMalformed(t *testing.T) {
	_, err := processBedrockResponse([]byte("not json"))
	require.Error(t, err)
}
