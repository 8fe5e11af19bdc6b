package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient is a client for the OpenAI Chat Completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAIClient. It requires the OPENAI_API_KEY environment variable to be set.
// It also supports OPENAI_BASE_URL for custom API endpoints.
func NewOpenAIClient(ctx context.Context, modelName string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The v2 SDK uses functional options for configuration.
	c := openai.NewClient(options...)
	// The &c is required, do not replace and just use c
	return &OpenAIClient{client: &c, model: modelName}, nil
}

// Chat sends a chat request to OpenAI and converts the response into our internal session.Message format.
func (o *OpenAIClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	chatMessages := convertMessagesToOpenaiContent(messages)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: chatMessages,
		Tools:    convertToolsToOpenAITools(availableTools),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}

	return processOpenaiResponse(resp)
}

// processOpenaiResponse converts an OpenAI API response into our internal session.Message format.
func processOpenaiResponse(resp *openai.ChatCompletion) (*session.Message, error) {
	if len(resp.Choices) == 0 {
		return &session.Message{Role: session.RoleAssistant, Content: ""}, nil
	}

	choice := resp.Choices[0].Message

	// If the model requests tool calls, the ToolCalls field will be present.
	if len(choice.ToolCalls) > 0 {
		var sessToolCalls []session.ToolCall
		for _, tc := range choice.ToolCalls {
			var toolArgs map[string]interface{}
			// Arguments are a JSON string; we expect it to be a flat map of arguments.
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &toolArgs); err != nil {
				return nil, errors.WithKind(errors.KindMalformedUpstreamResponse,
					errors.Wrapf(err, "failed to unmarshal function call arguments from OpenAI"))
			}
			sessToolCalls = append(sessToolCalls, session.ToolCall{
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
				Args:       toolArgs,
			})
		}
		return &session.Message{
			Role:      session.RoleAssistant,
			Content:   choice.Content,
			ToolCalls: sessToolCalls,
		}, nil
	}

	return &session.Message{Role: session.RoleAssistant, Content: choice.Content}, nil
}

// convertMessagesToOpenaiContent converts our internal message format to OpenAI's.
func convertMessagesToOpenaiContent(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case session.RoleAssistant:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				var toolCalls []openai.ChatCompletionMessageToolCallUnion
				for _, tc := range msg.ToolCalls {
					argsBytes, err := json.Marshal(tc.Args)
					if err != nil {
						fmt.Printf("Warning: could not marshal tool call arguments for %s: %v. Skipping function call in history.\n", tc.Name, err)
						continue
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnion{
						ID:   tc.ToolCallID,
						Type: "function",
						Function: openai.ChatCompletionMessageFunctionToolCallFunction{
							Name:      tc.Name,
							Arguments: string(argsBytes),
						},
					})
				}
				assistantMessage.ToolCalls = toolCalls
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case session.RoleTool:
			// A tool result message must name exactly one originating call.
			if len(msg.ToolCalls) != 1 {
				fmt.Printf("Warning: tool message is malformed; expected exactly one ToolCall to identify the function name, but found %d. Skipping.\n", len(msg.ToolCalls))
				continue
			}
			chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.ToolCalls[0].ToolCallID))
		case session.RoleUser:
			fallthrough
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

// convertToolsToOpenAITools converts our Tool interface to the OpenAI Tool format.
func convertToolsToOpenAITools(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		params := openai.FunctionParameters(t.Schema())

		toolParam := openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  params,
		})
		openAITools = append(openAITools, toolParam)
	}
	return openAITools
}
