package notebook

import (
	"time"

	"github.com/aicell-lab/hypha-agents-sub001/internal/cell"
)

// Metadata describes a persisted notebook.
type Metadata struct {
	ID         string    `json:"id,omitempty"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	KernelSpec string    `json:"kernelSpec,omitempty"`
	FilePath   string    `json:"filePath,omitempty"`
	CellCount  int       `json:"cellCount"`
}

// Document is the persisted notebook shape: metadata plus the ordered
// cell array, including execution counts, states, and output.
type Document struct {
	Metadata Metadata    `json:"metadata"`
	Cells    []cell.Cell `json:"cells"`
}

// NextExecutionCount computes the resumed execution counter for a loaded
// notebook: max observed count + 1.
func (d *Document) NextExecutionCount() int {
	max := 0
	for i := range d.Cells {
		if d.Cells[i].ExecutionCount > max {
			max = d.Cells[i].ExecutionCount
		}
	}
	return max + 1
}

// dropThinking removes thinking-role cells; loading a notebook never
// resurrects internal scratch content.
func (d *Document) dropThinking() {
	kept := d.Cells[:0]
	for i := range d.Cells {
		if cell.IsThinking(&d.Cells[i]) {
			continue
		}
		kept = append(kept, d.Cells[i])
	}
	d.Cells = kept
}
