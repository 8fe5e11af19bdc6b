package llm

import (
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
	"google.golang.org/api/option"
)

// GeminiClient is a client for the Google Gemini API.
type GeminiClient struct {
	model *genai.GenerativeModel
}

// NewGeminiClient creates a new GeminiClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiClient(ctx context.Context, modelName string) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	model := client.GenerativeModel(modelName)

	return &GeminiClient{
		model: model,
	}, nil
}

// Chat sends a chat request to the Gemini API.
func (g *GeminiClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	history, systemPrompt := convertMessagesToGeminiContent(messages)
	if len(history) == 0 {
		return nil, errors.New("no messages to send to Gemini")
	}

	if systemPrompt != "" {
		g.model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	g.model.Tools = convertToolsToGeminiTools(availableTools)

	// The last message is the new prompt.
	lastMessage := history[len(history)-1]

	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, lastMessage.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}

	return processGeminiResponse(resp)
}

// convertMessagesToGeminiContent converts our internal message format to Gemini's.
func convertMessagesToGeminiContent(messages []session.Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			systemPrompt = msg.Content
		case session.RoleAssistant:
			parts := []genai.Part{}
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{
					Name: tc.Name,
					Args: map[string]interface{}{"args": tc.Args},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case session.RoleTool:
			if len(msg.ToolCalls) != 1 {
				continue
			}
			contents = append(contents, &genai.Content{
				Role: "function",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     msg.ToolCalls[0].Name,
					Response: map[string]interface{}{"output": msg.Content},
				}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	return contents, systemPrompt
}

// convertToolsToGeminiTools converts our Tool interface to Gemini's FunctionDeclaration format.
// Gemini models are more reliable when the whole argument map is nested under a single
// "args" key, so the declared schema wraps the tool's own schema one level down.
func convertToolsToGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration

	for _, tool := range ts {
		fd := &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"args": {
						Type:        genai.TypeObject,
						Description: "Arguments for the function call, as a map.",
					},
				},
				Required: []string{"args"},
			},
		}
		funcDecls = append(funcDecls, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

// processGeminiResponse converts a Gemini API response into our internal session.Message format.
// Function calls are returned as pending tool calls, not executed here; Gemini does not
// assign call ids, so we generate them.
func processGeminiResponse(resp *genai.GenerateContentResponse) (*session.Message, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.WithKind(errors.KindMalformedUpstreamResponse,
			errors.New("received an empty response from Gemini"))
	}

	content := resp.Candidates[0].Content
	var responseContent string
	var toolCalls []session.ToolCall

	for _, part := range content.Parts {
		switch v := part.(type) {
		case genai.Text:
			responseContent += string(v)
		case genai.FunctionCall:
			// As declared in convertToolsToGeminiTools, the real arguments
			// are nested under the "args" key.
			toolArgs, ok := v.Args["args"].(map[string]interface{})
			if !ok {
				return nil, errors.WithKind(errors.KindMalformedUpstreamResponse,
					errors.New("invalid arguments for tool '%s', expected a map under 'args' key", v.Name))
			}
			toolCalls = append(toolCalls, session.ToolCall{
				ToolCallID: "call_" + uuid.NewString(),
				Name:       v.Name,
				Args:       toolArgs,
			})
		default:
			return nil, errors.WithKind(errors.KindMalformedUpstreamResponse,
				errors.New("unsupported part type in Gemini response: %T", v))
		}
	}

	return &session.Message{
		Role:      session.RoleAssistant,
		Content:   responseContent,
		ToolCalls: toolCalls,
	}, nil
}
