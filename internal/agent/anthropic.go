package agent

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/aicell-lab/hypha-agents-sub001/internal/log"
)

// AnthropicClient implements Client with the Anthropic SDK. The SDK
// reads ANTHROPIC_API_KEY from the environment.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

var _ Client = (*AnthropicClient)(nil)

// NewAnthropicClient creates a client for the given model.
func NewAnthropicClient(model string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(),
		model:  model,
	}
}

// Complete sends one completion request and accumulates the streamed
// response into a Response.
func (c *AnthropicClient) Complete(ctx context.Context, system string, msgs []Message, tools []ToolDef) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		Messages:  convertMessages(msgs),
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	stream := c.client.Messages.NewStreaming(ctx, params)

	var currentToolID string
	var currentToolName string
	var currentToolInput string
	var response Response

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart()
			if block.ContentBlock.Type == "tool_use" {
				currentToolID = block.ContentBlock.ID
				currentToolName = block.ContentBlock.Name
				currentToolInput = ""
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta()
			switch delta.Delta.Type {
			case "text_delta":
				response.Content += delta.Delta.Text
			case "input_json_delta":
				currentToolInput += delta.Delta.PartialJSON
			}

		case "content_block_stop":
			if currentToolID != "" && currentToolName != "" {
				response.ToolCalls = append(response.ToolCalls, ToolCall{
					ID:    currentToolID,
					Name:  currentToolName,
					Input: currentToolInput,
				})
				currentToolID = ""
				currentToolName = ""
				currentToolInput = ""
			}

		case "message_delta":
			msgDelta := event.AsMessageDelta()
			response.StopReason = string(msgDelta.Delta.StopReason)
		}
	}

	if err := stream.Err(); err != nil {
		log.Logger().Warn("anthropic completion failed", zap.Error(err))
		return nil, err
	}

	return &response, nil
}

func convertMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					var input any
					if tc.Input != "" {
						if err := json.Unmarshal([]byte(tc.Input), &input); err != nil {
							input = tc.Input
						}
					} else {
						input = map[string]any{}
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
				}
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			} else {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			}
		default:
			if msg.ToolResult != nil {
				out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(
					msg.ToolResult.ToolCallID,
					msg.ToolResult.Content,
					msg.ToolResult.IsError,
				)))
			} else {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	return out
}

func convertTools(tools []ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{}
		if properties, ok := t.InputSchema["properties"]; ok {
			inputSchema.Properties = properties
		}
		if required, ok := t.InputSchema["required"].([]string); ok {
			inputSchema.Required = required
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: inputSchema,
			},
		})
	}
	return out
}
