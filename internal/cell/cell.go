// Package cell defines the notebook cell data model: the canonical unit
// of notebook content shared by the kernel executor, the cell store, and
// the agent loop.
package cell

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aicell-lab/hypha-agents-sub001/internal/output"
)

// Type is the kind of content a cell holds.
type Type string

const (
	TypeCode     Type = "code"
	TypeMarkdown Type = "markdown"
	TypeThinking Type = "thinking"
)

// Role governs default visibility and whether a cell participates in
// conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleThinking  Role = "thinking"
)

// ExecState is the execution lifecycle state of a code cell.
type ExecState string

const (
	StateIdle    ExecState = "idle"
	StateRunning ExecState = "running"
	StateSuccess ExecState = "success"
	StateError   ExecState = "error"
)

// Metadata holds per-cell flags and linkage.
type Metadata struct {
	// CodeHidden / OutputHidden are UI visibility flags persisted with the cell.
	CodeHidden   bool `json:"codeHidden,omitempty"`
	OutputHidden bool `json:"outputHidden,omitempty"`

	// Parent is the id of the cell that logically produced this one,
	// e.g. an assistant code cell links back to the user message that
	// triggered it. Deleting the parent orphans the child; it does not
	// cascade unless DeleteCellWithChildren is used.
	Parent string `json:"parent,omitempty"`

	// CommitStatus records whether a human has accepted a generated cell.
	CommitStatus string `json:"commitStatus,omitempty"`

	Trusted bool `json:"trusted,omitempty"`
}

// Cell is a single notebook unit. The id is immutable once created;
// content is mutable; output is append-only while the cell is running
// and replaced wholesale between runs.
type Cell struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	ExecutionState ExecState `json:"executionState"`

	// ExecutionCount is assigned the moment a code cell starts running
	// and is never reused or decremented. Zero means "never run".
	ExecutionCount int `json:"executionCount,omitempty"`

	Output   []output.Item `json:"output,omitempty"`
	Metadata Metadata      `json:"metadata,omitempty"`
}

// New creates a cell with a fresh id and idle execution state.
func New(typ Type, content string, role Role) *Cell {
	return &Cell{
		ID:             NewID(),
		Type:           typ,
		Role:           role,
		Content:        content,
		ExecutionState: StateIdle,
	}
}

// NewID returns a new ULID cell identifier. ULIDs sort by creation time,
// which keeps persisted notebooks diff-friendly.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IsRunnable reports whether the cell can be sent to a kernel.
func IsRunnable(c *Cell) bool {
	return c != nil && c.Type == TypeCode
}

// IsSystemRole reports whether the role is the system role.
func IsSystemRole(r Role) bool {
	return r == RoleSystem
}

// IsThinking reports whether a cell is internal scratch content that is
// excluded from conversation history and from persisted notebooks on load.
func IsThinking(c *Cell) bool {
	return c.Role == RoleThinking || c.Type == TypeThinking
}
