package notebook

import "github.com/aicell-lab/hypha-agents-sub001/internal/cell"

// HistoryMessage is one entry of the conversation context fed to the
// agent loop.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConvertCellsToHistory projects cells onto conversation history. It is
// a pure, order-preserving filter/map: thinking cells are excluded and
// nothing is mutated.
func ConvertCellsToHistory(cells []cell.Cell) []HistoryMessage {
	history := make([]HistoryMessage, 0, len(cells))
	for i := range cells {
		c := &cells[i]
		if cell.IsThinking(c) {
			continue
		}
		history = append(history, HistoryMessage{
			Role:    string(c.Role),
			Content: c.Content,
		})
	}
	return history
}
