// Package executor turns "run this cell" into kernel calls with correct
// sequencing and bookkeeping, independent of any UI. The coordinator
// assumes single-flight: the cell store serializes calls into it.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aicell-lab/hypha-agents-sub001/internal/cell"
	"github.com/aicell-lab/hypha-agents-sub001/internal/kernel"
	"github.com/aicell-lab/hypha-agents-sub001/internal/log"
	"github.com/aicell-lab/hypha-agents-sub001/internal/output"
)

// Store is the slice of the cell store the coordinator needs. All
// mutations go through it so the store can apply its own locking.
type Store interface {
	// Cell returns a snapshot of the cell, or false if it doesn't exist.
	Cell(id string) (cell.Cell, bool)

	SetExecutionState(id string, st cell.ExecState)
	SetExecutionCount(id string, n int)
	ClearOutput(id string)
	AppendOutput(id string, item output.Item)
}

// Coordinator owns the global execution counter and maps one cell run
// onto one kernel execute call.
type Coordinator struct {
	session *kernel.Session
	store   Store
	timeout time.Duration

	mu      sync.Mutex
	counter int
}

// New wires a coordinator to a kernel session and a cell store.
// timeout <= 0 uses the kernel default.
func New(session *kernel.Session, store Store, timeout time.Duration) *Coordinator {
	return &Coordinator{
		session: session,
		store:   store,
		timeout: timeout,
	}
}

// Session exposes the kernel session handle for lifecycle operations
// (connect/restart/reset). Only the cell store should hold a Coordinator.
func (c *Coordinator) Session() *kernel.Session {
	return c.session
}

// NextExecutionCount assigns the next counter value. Counts are strictly
// increasing for the life of the coordinator and never reused.
func (c *Coordinator) NextExecutionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return c.counter
}

// ResetCounter restarts counting from 1 (used after a kernel state
// reset or restart). Historical cells keep their counts.
func (c *Coordinator) ResetCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter = 0
}

// ResumeCounter sets the counter so the next assigned count is next.
// Used when loading a persisted notebook (next = max observed + 1).
// The counter only moves forward.
func (c *Coordinator) ResumeCounter(next int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next-1 > c.counter {
		c.counter = next - 1
	}
}

// ExecuteCell runs one cell against the kernel and returns a plain-text
// summary of the run suitable for feeding back into a conversation. It
// never panics or returns a Go error: a missing cell, a failed run, a
// timeout, and an abort all come back as readable text, with the
// failure recorded on the cell itself.
func (c *Coordinator) ExecuteCell(ctx context.Context, id string) string {
	cl, ok := c.store.Cell(id)
	if !ok {
		return fmt.Sprintf("Error: cell %s not found", id)
	}
	if !cell.IsRunnable(&cl) {
		return fmt.Sprintf("Error: cell %s is not a code cell", id)
	}

	count := c.NextExecutionCount()
	c.store.SetExecutionState(id, cell.StateRunning)
	c.store.SetExecutionCount(id, count)
	c.store.ClearOutput(id)

	start := time.Now()
	res := c.session.Execute(ctx, cl.Content, kernel.Callbacks{
		OnOutput: func(item output.Item) {
			c.store.AppendOutput(id, item)
		},
		OnClear: func() {
			c.store.ClearOutput(id)
		},
	}, c.timeout)

	state := cell.StateSuccess
	if res.Failed {
		state = cell.StateError
	}
	c.store.SetExecutionState(id, state)
	log.LogRun(id, count, time.Since(start), !res.Failed)

	return Summarize(res)
}

// Summarize renders an execution result as plain text for conversation
// history and CLI output. The result is bounded.
func Summarize(res *kernel.ExecResult) string {
	if len(res.Items) == 0 {
		if res.Failed {
			return "Code execution failed with no output."
		}
		return "Code executed successfully (no output)."
	}

	var sb strings.Builder
	for _, item := range res.Items {
		switch item.Kind {
		case output.KindDisplayHTML, output.KindDisplaySVG:
			fmt.Fprintf(&sb, "[%s]\n%s\n", item.Kind, item.ShortContent)
		case output.KindDisplayImage:
			fmt.Fprintf(&sb, "[%s: %d bytes]\n", item.Kind, len(item.Content))
		default:
			sb.WriteString(item.Content)
			if !strings.HasSuffix(item.Content, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return output.Truncate(strings.TrimRight(sb.String(), "\n"))
}
