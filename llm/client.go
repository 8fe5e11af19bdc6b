// Package llm is the provider gateway: a uniform capability interface over
// the supported language-model backends (Anthropic, OpenAI, Gemini, Bedrock)
// plus retry/classification glue for their failure modes.
package llm

import (
	"context"
	"fmt"

	"github.com/liveeadmin/shai/config"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
)

// Client is the interface for interacting with a language-model backend.
// Implementations translate between the internal message format and the
// vendor wire format; callers never see vendor types.
type Client interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// NewClient builds the provider named in cfg. An unknown or empty provider
// yields the mock client, which is useful for offline runs and tests.
func NewClient(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.LLMClient {
	case "anthropic":
		return NewAnthropicClient(ctx, cfg.Model)
	case "openai":
		return NewOpenAIClient(ctx, cfg.Model)
	case "gemini":
		return NewGeminiClient(ctx, cfg.Model)
	case "bedrock":
		return NewBedrockClient(ctx, cfg.Model)
	case "", "mock":
		return &MockClient{}, nil
	}
	return nil, errors.New("unknown llm provider '%s'", cfg.LLMClient)
}

// MockClient is a provider stand-in that parrots the last user message.
type MockClient struct{}

func (m *MockClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == session.RoleUser {
			last = messages[i].Content
			break
		}
	}
	return &session.Message{
		Role:    session.RoleAssistant,
		Content: fmt.Sprintf("mock reply to: %s", last),
	}, nil
}
