package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
)

// AnthropicClient is a client for the Anthropic API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a new AnthropicClient.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicClient(ctx context.Context, modelName string) (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicClient{
		client: &client,
		model:  modelName,
	}, nil
}

// Chat sends a chat request to the Anthropic API.
func (a *AnthropicClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	anthropicMessages, systemPrompt := convertMessagesToAnthropicMessages(messages)
	anthropicTools := convertToolsToAnthropicTools(availableTools)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages:  anthropicMessages,
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	params.Tools = make([]anthropic.ToolUnionParam, len(anthropicTools))
	for i, toolParam := range anthropicTools {
		params.Tools[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Anthropic")
	}

	return processAnthropicResponse(resp)
}

// convertMessagesToAnthropicMessages converts our internal message format to Anthropic's format.
func convertMessagesToAnthropicMessages(messages []session.Message) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case session.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				var contentItems []anthropic.ContentBlockParamUnion
				for _, tc := range msg.ToolCalls {
					argsBytes, err := json.Marshal(tc.Args)
					if err != nil {
						continue
					}

					contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							Type:  "tool_use",
							ID:    tc.ToolCallID,
							Name:  tc.Name,
							Input: argsBytes,
						}})
				}

				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: contentItems,
				})
			} else if msg.Content != "" {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{{
						OfText: &anthropic.TextBlockParam{
							Text: msg.Content,
						},
					}},
				})
			}
		case session.RoleTool:
			if len(msg.ToolCalls) > 0 {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleUser,
					Content: []anthropic.ContentBlockParamUnion{{
						OfToolResult: &anthropic.ToolResultBlockParam{
							ToolUseID: msg.ToolCalls[0].ToolCallID,
							Content: []anthropic.ToolResultBlockParamContentUnion{{
								OfText: &anthropic.TextBlockParam{
									Text: msg.Content,
								},
							}},
						},
					},
					}})
			}
		case session.RoleSystem:
			// The last system message wins.
			systemPrompt = msg.Content
		}
	}

	return anthropicMessages, systemPrompt
}

// convertToolsToAnthropicTools converts our Tool interface to Anthropic's tool format.
func convertToolsToAnthropicTools(ts []tools.Tool) []anthropic.ToolParam {
	if len(ts) == 0 {
		return nil
	}

	var anthropicTools []anthropic.ToolParam
	for _, t := range ts {
		schema := t.Schema()
		props, _ := schema["properties"].(map[string]interface{})
		if props == nil {
			props = map[string]interface{}{}
		}
		var required []string
		if r, ok := schema["required"].([]string); ok {
			required = r
		}
		anthropicTools = append(anthropicTools, anthropic.ToolParam{
			Name:        t.Name(),
			Description: anthropic.String(t.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   required,
			},
		})
	}
	return anthropicTools
}

// processAnthropicResponse converts an Anthropic API response into our internal session.Message format.
func processAnthropicResponse(resp *anthropic.Message) (*session.Message, error) {
	if len(resp.Content) == 0 {
		return &session.Message{Role: session.RoleAssistant, Content: ""}, nil
	}

	var responseContent string
	var toolCalls []session.ToolCall

	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			responseContent += c.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal(c.Input, &args); err != nil {
				return nil, errors.WithKind(errors.KindMalformedUpstreamResponse,
					errors.Wrapf(err, "failed to unmarshal tool call input"))
			}

			toolCalls = append(toolCalls, session.ToolCall{
				ToolCallID: c.ID,
				Name:       c.Name,
				Args:       args,
			})
		}
	}

	return &session.Message{
		Role:      session.RoleAssistant,
		Content:   responseContent,
		ToolCalls: toolCalls,
	}, nil
}
