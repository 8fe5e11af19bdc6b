package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
)

// BedrockClient is a client for the Anthropic models on AWS Bedrock.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
	region  string
}

// NewBedrockClient creates a new BedrockClient.
// It requires AWS credentials to be configured in the environment.
func NewBedrockClient(ctx context.Context, modelID string) (*BedrockClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	client := bedrockruntime.NewFromConfig(cfg)

	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	return &BedrockClient{
		client:  client,
		modelID: modelID,
		region:  region,
	}, nil
}

// Chat sends a chat request to the Anthropic model via AWS Bedrock.
func (b *BedrockClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	anthropicMessages, systemPrompt := convertMessagesToBedrockFormat(messages)

	requestBody, err := createBedrockRequest(anthropicMessages, systemPrompt, availableTools)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Bedrock request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	return processBedrockResponse(resp.Body)
}

// convertMessagesToBedrockFormat converts our internal message format to the
// Anthropic JSON body used by Bedrock's InvokeModel API.
func convertMessagesToBedrockFormat(messages []session.Message) ([]map[string]interface{}, string) {
	var anthropicMessages []map[string]interface{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			anthropicMessages = append(anthropicMessages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "text",
						"text": msg.Content,
					},
				},
			})
		case session.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				var toolUses []map[string]interface{}
				for _, tc := range msg.ToolCalls {
					toolUses = append(toolUses, map[string]interface{}{
						"type":  "tool_use",
						"id":    tc.ToolCallID,
						"name":  tc.Name,
						"input": tc.Args,
					})
				}

				anthropicMessages = append(anthropicMessages, map[string]interface{}{
					"role":    "assistant",
					"content": toolUses,
				})
			} else if msg.Content != "" {
				anthropicMessages = append(anthropicMessages, map[string]interface{}{
					"role": "assistant",
					"content": []map[string]interface{}{
						{
							"type": "text",
							"text": msg.Content,
						},
					},
				})
			}
		case session.RoleTool:
			if len(msg.ToolCalls) > 0 {
				anthropicMessages = append(anthropicMessages, map[string]interface{}{
					"role": "user",
					"content": []map[string]interface{}{
						{
							"type":        "tool_result",
							"tool_use_id": msg.ToolCalls[0].ToolCallID,
							"content":     msg.Content,
						},
					},
				})
			}
		case session.RoleSystem:
			systemPrompt = msg.Content
		}
	}

	return anthropicMessages, systemPrompt
}

// createBedrockRequest creates the request body for Anthropic models on Bedrock.
func createBedrockRequest(messages []map[string]interface{}, systemPrompt string, availableTools []tools.Tool) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          messages,
	}

	if systemPrompt != "" {
		request["system"] = systemPrompt
	}

	if len(availableTools) > 0 {
		var toolDefs []map[string]interface{}
		for _, tool := range availableTools {
			toolDefs = append(toolDefs, map[string]interface{}{
				"name":         tool.Name(),
				"description":  tool.Description(),
				"input_schema": tool.Schema(),
			})
		}
		request["tools"] = toolDefs
	}

	return json.Marshal(request)
}

// processBedrockResponse converts a Bedrock API response into our internal session.Message format.
func processBedrockResponse(body []byte) (*session.Message, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.WithKind(errors.KindMalformedUpstreamResponse,
			errors.Wrapf(err, "failed to unmarshal Bedrock response"))
	}

	if errMsg, ok := response["error"]; ok {
		return nil, errors.New("Bedrock API error: %v", errMsg)
	}

	content, ok := response["content"]
	if !ok {
		return &session.Message{Role: session.RoleAssistant, Content: ""}, nil
	}

	contentArray, ok := content.([]interface{})
	if !ok {
		return nil, errors.WithKind(errors.KindMalformedUpstreamResponse,
			errors.New("unexpected content format in Bedrock response"))
	}

	var responseContent string
	var toolCalls []session.ToolCall
	toolCallIDCounter := 0

	for _, item := range contentArray {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		itemType, ok := itemMap["type"].(string)
		if !ok {
			continue
		}

		switch itemType {
		case "text":
			if text, ok := itemMap["text"].(string); ok {
				responseContent += text
			}
		case "tool_use":
			if name, ok := itemMap["name"].(string); ok {
				if input, ok := itemMap["input"].(map[string]interface{}); ok {
					id := fmt.Sprintf("call_%d_%s", toolCallIDCounter, name)
					if toolID, ok := itemMap["id"].(string); ok {
						id = toolID
					}

					toolCalls = append(toolCalls, session.ToolCall{
						ToolCallID: id,
						Name:       name,
						Args:       input,
					})
					toolCallIDCounter++
				}
			}
		}
	}

	return &session.Message{
		Role:      session.RoleAssistant,
		Content:   responseContent,
		ToolCalls: toolCalls,
	}, nil
}
