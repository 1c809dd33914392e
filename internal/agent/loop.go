package agent

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/aicell-lab/hypha-agents-sub001/internal/cell"
	"github.com/aicell-lab/hypha-agents-sub001/internal/log"
	"github.com/aicell-lab/hypha-agents-sub001/internal/notebook"
)

const defaultMaxTurns = 20

const systemPrompt = `You are a data analysis assistant working inside a computational notebook.
You can execute code with the run_code tool. The kernel is persistent:
variables defined in one call remain available in later calls. The kernel
language is starlark (a python dialect without imports). Use print() to
produce output. Keep code cells small and inspect results between steps.`

// runCodeTool is the single tool exposed to the model: execute code in
// the notebook kernel and read back its output.
var runCodeTool = ToolDef{
	Name:        "run_code",
	Description: "Execute code in the notebook kernel and return its output as plain text.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "The code to execute.",
			},
			"cell_id": map[string]any{
				"type":        "string",
				"description": "Optional id of an existing cell to update and re-run instead of creating a new one.",
			},
		},
		"required": []string{"code"},
	},
}

// Result is returned by Loop.Run upon completion.
type Result struct {
	Content    string
	Turns      int
	StopReason string // "end_turn", "max_turns", "cancelled"
}

// Loop drives the agent conversation: model turn -> run_code -> feed
// output back -> repeat. It only ever touches the notebook through the
// Manager's public entry points, so the single-flight execution
// invariant holds for agent-driven runs too.
type Loop struct {
	Client   Client
	Notebook *notebook.Manager
	MaxTurns int

	// parentID is the user cell that triggered the current run; cells
	// the agent creates link back to it.
	parentID string
}

// Run appends the question as a user cell and loops until the model
// stops calling tools, the turn cap is hit, or the context is cancelled.
func (l *Loop) Run(ctx context.Context, question string) (*Result, error) {
	maxTurns := l.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	l.parentID = l.Notebook.AddCell(cell.TypeMarkdown, question, cell.RoleUser, notebook.AddOptions{})

	system, msgs := buildConversation(l.Notebook.History())

	for turn := 0; turn < maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return &Result{Turns: turn, StopReason: "cancelled"}, ctx.Err()
		default:
		}

		resp, err := l.Client.Complete(ctx, system, msgs, []ToolDef{runCodeTool})
		if err != nil {
			return nil, err
		}

		if resp.Content != "" {
			l.Notebook.AddCell(cell.TypeMarkdown, resp.Content, cell.RoleAssistant, notebook.AddOptions{
				ParentID: l.parentID,
			})
		}
		msgs = append(msgs, Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			return &Result{Content: resp.Content, Turns: turn + 1, StopReason: "end_turn"}, nil
		}

		for _, tc := range resp.ToolCalls {
			result := l.execToolCall(ctx, tc)
			msgs = append(msgs, Message{Role: "user", ToolResult: result})
		}
	}

	return &Result{Turns: maxTurns, StopReason: "max_turns"}, nil
}

func (l *Loop) execToolCall(ctx context.Context, tc ToolCall) *ToolResult {
	if tc.Name != runCodeTool.Name {
		return &ToolResult{ToolCallID: tc.ID, Content: "Unknown tool: " + tc.Name, IsError: true}
	}

	var input struct {
		Code   string `json:"code"`
		CellID string `json:"cell_id"`
	}
	if err := json.Unmarshal([]byte(tc.Input), &input); err != nil {
		return &ToolResult{ToolCallID: tc.ID, Content: "Invalid run_code input: " + err.Error(), IsError: true}
	}

	summary := l.RunCode(ctx, tc.ID, input.Code, input.CellID)
	return &ToolResult{
		ToolCallID: tc.ID,
		Content:    summary,
		IsError:    strings.HasPrefix(summary, "Error:"),
	}
}

// RunCode either updates an existing cell or creates a new
// assistant-authored code cell, executes it through the cell store, and
// returns a plain-text result summary for the next model turn.
func (l *Loop) RunCode(ctx context.Context, completionID, code, cellID string) string {
	log.Logger().Debug("agent run_code",
		zap.String("completion", completionID),
		zap.String("cell", cellID),
	)

	runID := cellID
	if runID != "" {
		if !l.Notebook.UpdateCellContent(runID, code) {
			return "Error: cell " + runID + " not found"
		}
	} else {
		runID = l.Notebook.AddCell(cell.TypeCode, code, cell.RoleAssistant, notebook.AddOptions{
			ParentID: l.parentID,
		})
	}

	return l.Notebook.ExecuteCell(ctx, runID)
}

// buildConversation maps notebook history onto model messages.
// System-role cells are folded into the system prompt; thinking cells
// were already excluded by the projection.
func buildConversation(history []notebook.HistoryMessage) (string, []Message) {
	system := systemPrompt
	msgs := make([]Message, 0, len(history))

	for _, h := range history {
		switch h.Role {
		case "system":
			system += "\n\n" + h.Content
		case "assistant":
			msgs = append(msgs, Message{Role: "assistant", Content: h.Content})
		default:
			msgs = append(msgs, Message{Role: "user", Content: h.Content})
		}
	}
	return system, msgs
}
