// Package agent drives the autonomous loop that asks a language model
// for the next action and runs code actions through the notebook's
// execution entry point, feeding output back into the model's next turn.
package agent

import "context"

// ToolDef describes one tool offered to the model.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input string // raw JSON
}

// ToolResult is the outcome of a tool invocation, fed back to the model.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Message is one conversation entry sent to the model.
type Message struct {
	Role       string // "user" or "assistant"
	Content    string
	ToolCalls  []ToolCall  // assistant messages only
	ToolResult *ToolResult // user messages only
}

// Response is one completion from the model.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string // "end_turn", "tool_use", "max_tokens"
}

// Client is the minimal LLM surface the loop needs.
type Client interface {
	Complete(ctx context.Context, system string, msgs []Message, tools []ToolDef) (*Response, error)
}
