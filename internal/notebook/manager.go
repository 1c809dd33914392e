// Package notebook owns the ordered cell list and is the single entry
// point other layers use to mutate cells or trigger execution. It
// serializes execution requests so the kernel session's single-flight
// invariant holds end to end, for human and agent callers alike.
package notebook

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aicell-lab/hypha-agents-sub001/internal/cell"
	"github.com/aicell-lab/hypha-agents-sub001/internal/executor"
	"github.com/aicell-lab/hypha-agents-sub001/internal/kernel"
	"github.com/aicell-lab/hypha-agents-sub001/internal/output"
)

// Options configures a Manager.
type Options struct {
	// ExecuteTimeout bounds each cell run. Zero uses the kernel default.
	ExecuteTimeout time.Duration

	// Connect are the options passed to the kernel on connect/restart.
	Connect kernel.ConnectOptions
}

// AddOptions control cell insertion. The zero value appends at the end
// with a store-assigned id.
type AddOptions struct {
	// AfterID inserts the new cell immediately after the named cell.
	// Empty or unknown ids append at the end.
	AfterID string

	// ParentID links the new cell to the cell that logically produced it.
	ParentID string

	// ID forces an explicit cell id, used when a completion must be
	// correlated back to a pre-created cell. Empty assigns a fresh id.
	ID string
}

// RunResult is one entry of a RunAllCells pass.
type RunResult struct {
	CellID  string
	Summary string
	Failed  bool
}

// Manager is the single mutable source of truth for one notebook's
// cells. One Manager owns exactly one kernel session; switching
// notebooks means discarding the manager and its session together.
type Manager struct {
	mu       sync.RWMutex
	cells    []*cell.Cell
	activeID string
	meta     Metadata

	coord       *executor.Coordinator
	runGate     *semaphore.Weighted
	connectOpts kernel.ConnectOptions

	abortMu  sync.Mutex
	abortRun context.CancelFunc
}

// NewManager wires a manager to a kernel session. The session handle is
// owned by the manager's coordinator from here on; no other component
// may call its Execute.
func NewManager(session *kernel.Session, opts Options) *Manager {
	m := &Manager{
		runGate:     semaphore.NewWeighted(1),
		connectOpts: opts.Connect,
	}
	m.coord = executor.New(session, m, opts.ExecuteTimeout)
	return m
}

// --- Cell mutations ---

// AddCell inserts a cell and returns its id. Insertion preserves
// document order; AfterID places the cell immediately following the
// named cell, otherwise it goes at the end.
func (m *Manager) AddCell(typ cell.Type, content string, role cell.Role, opts AddOptions) string {
	c := cell.New(typ, content, role)
	if opts.ID != "" {
		c.ID = opts.ID
	}
	c.Metadata.Parent = opts.ParentID

	m.mu.Lock()
	defer m.mu.Unlock()

	pos := len(m.cells)
	if opts.AfterID != "" {
		if i := m.indexOf(opts.AfterID); i >= 0 {
			pos = i + 1
		}
	}

	m.cells = append(m.cells, nil)
	copy(m.cells[pos+1:], m.cells[pos:])
	m.cells[pos] = c

	m.activeID = c.ID
	return c.ID
}

// UpdateCellContent replaces a cell's source text.
func (m *Manager) UpdateCellContent(id, content string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.get(id); c != nil {
		c.Content = content
		return true
	}
	return false
}

// DeleteCell removes one cell. Cells whose metadata.parent pointed at it
// are orphaned, not deleted.
func (m *Manager) DeleteCell(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *Manager) deleteLocked(id string) bool {
	i := m.indexOf(id)
	if i < 0 {
		return false
	}
	m.cells = append(m.cells[:i], m.cells[i+1:]...)

	for _, c := range m.cells {
		if c.Metadata.Parent == id {
			c.Metadata.Parent = ""
		}
	}

	if m.activeID == id {
		m.activeID = ""
		if len(m.cells) > 0 {
			if i >= len(m.cells) {
				i = len(m.cells) - 1
			}
			m.activeID = m.cells[i].ID
		}
	}
	return true
}

// DeleteCellWithChildren removes a cell and every cell whose parent
// chain resolves to it.
func (m *Manager) DeleteCellWithChildren(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(id) < 0 {
		return false
	}

	doomed := map[string]bool{id: true}
	// Children may appear before their parent in document order, so
	// sweep until the set stops growing.
	for {
		grew := false
		for _, c := range m.cells {
			if c.Metadata.Parent != "" && doomed[c.Metadata.Parent] && !doomed[c.ID] {
				doomed[c.ID] = true
				grew = true
			}
		}
		if !grew {
			break
		}
	}

	kept := m.cells[:0]
	for _, c := range m.cells {
		if !doomed[c.ID] {
			kept = append(kept, c)
		}
	}
	m.cells = kept

	if doomed[m.activeID] {
		m.activeID = ""
		if len(m.cells) > 0 {
			m.activeID = m.cells[len(m.cells)-1].ID
		}
	}
	return true
}

// MoveCellUp swaps the cell with its predecessor. No-op at the top.
func (m *Manager) MoveCellUp(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i <= 0 {
		return false
	}
	m.cells[i-1], m.cells[i] = m.cells[i], m.cells[i-1]
	return true
}

// MoveCellDown swaps the cell with its successor. No-op at the bottom.
func (m *Manager) MoveCellDown(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 || i >= len(m.cells)-1 {
		return false
	}
	m.cells[i], m.cells[i+1] = m.cells[i+1], m.cells[i]
	return true
}

// ChangeCellType converts a cell between code/markdown/thinking.
func (m *Manager) ChangeCellType(id string, typ cell.Type) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.get(id); c != nil {
		c.Type = typ
		return true
	}
	return false
}

// UpdateCellRole changes a cell's conversation role.
func (m *Manager) UpdateCellRole(id string, role cell.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.get(id); c != nil {
		c.Role = role
		return true
	}
	return false
}

// ToggleCodeVisibility flips the code-hidden flag.
func (m *Manager) ToggleCodeVisibility(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.get(id); c != nil {
		c.Metadata.CodeHidden = !c.Metadata.CodeHidden
		return true
	}
	return false
}

// ToggleOutputVisibility flips the output-hidden flag.
func (m *Manager) ToggleOutputVisibility(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.get(id); c != nil {
		c.Metadata.OutputHidden = !c.Metadata.OutputHidden
		return true
	}
	return false
}

// SetActiveCell moves the active-cell cursor.
func (m *Manager) SetActiveCell(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexOf(id) < 0 {
		return false
	}
	m.activeID = id
	return true
}

// ActiveCellID returns the active-cell cursor (may be empty).
func (m *Manager) ActiveCellID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeID
}

// Cells returns an ordered snapshot of all cells.
func (m *Manager) Cells() []cell.Cell {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]cell.Cell, len(m.cells))
	for i, c := range m.cells {
		out[i] = *c
	}
	return out
}

// History projects the current cells onto conversation history.
func (m *Manager) History() []HistoryMessage {
	return ConvertCellsToHistory(m.Cells())
}

// --- Execution ---

// ExecuteCell runs one cell through the coordinator. Requests are
// serialized: a call made while another run is in flight waits for the
// in-flight run to settle before starting. The returned summary is
// always produced, error or not.
func (m *Manager) ExecuteCell(ctx context.Context, id string) string {
	if err := m.runGate.Acquire(ctx, 1); err != nil {
		return "Error: execution not started: " + err.Error()
	}
	defer m.runGate.Release(1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.setAbort(cancel)
	defer m.setAbort(nil)

	return m.coord.ExecuteCell(runCtx, id)
}

func (m *Manager) setAbort(cancel context.CancelFunc) {
	m.abortMu.Lock()
	m.abortRun = cancel
	m.abortMu.Unlock()
}

// InterruptExecution aborts the in-flight run, if any, and issues a
// best-effort kernel interrupt. The aborted cell is marked error with
// an aborted note rather than left running.
func (m *Manager) InterruptExecution(ctx context.Context) {
	m.abortMu.Lock()
	cancel := m.abortRun
	m.abortMu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.coord.Session().Interrupt(ctx)
}

// RunAllCells runs every code cell top to bottom, continuing past
// individual failures.
func (m *Manager) RunAllCells(ctx context.Context) []RunResult {
	m.mu.RLock()
	ids := make([]string, 0, len(m.cells))
	for _, c := range m.cells {
		if cell.IsRunnable(c) {
			ids = append(ids, c.ID)
		}
	}
	m.mu.RUnlock()

	results := make([]RunResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		summary := m.ExecuteCell(ctx, id)
		c, _ := m.Cell(id)
		results = append(results, RunResult{
			CellID:  id,
			Summary: summary,
			Failed:  c.ExecutionState == cell.StateError,
		})
	}
	return results
}

// ClearAllOutputs discards every cell's output and run state.
func (m *Manager) ClearAllOutputs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cells {
		c.Output = nil
		if c.ExecutionState != cell.StateRunning {
			c.ExecutionState = cell.StateIdle
		}
	}
}

// ClearRunningState forces any cell stuck in running back to idle. Used
// as a crash-recovery sweep after a kernel restart.
func (m *Manager) ClearRunningState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cells {
		if c.ExecutionState == cell.StateRunning {
			c.ExecutionState = cell.StateIdle
		}
	}
}

// --- Kernel lifecycle ---

// ConnectKernel establishes the kernel connection (idempotent).
func (m *Manager) ConnectKernel(ctx context.Context) error {
	return m.coord.Session().Connect(ctx, m.connectOpts)
}

// RestartKernel aborts any in-flight run, discards the connection and
// reconnects, and restarts the execution counter at 1. Callers should
// follow up with ClearRunningState.
func (m *Manager) RestartKernel(ctx context.Context) error {
	m.abortMu.Lock()
	cancel := m.abortRun
	m.abortMu.Unlock()
	if cancel != nil {
		// Stale callbacks from the previous kernel generation must not
		// mutate state belonging to the new one.
		cancel()
	}

	if err := m.coord.Session().Restart(ctx, m.connectOpts); err != nil {
		return err
	}
	m.coord.ResetCounter()
	return nil
}

// ResetKernelState clears user-defined globals in the kernel and resets
// the execution counter. Historical cells keep their counts.
func (m *Manager) ResetKernelState(ctx context.Context) error {
	if err := m.coord.Session().ResetState(ctx); err != nil {
		return err
	}
	m.coord.ResetCounter()
	return nil
}

// ShutdownKernel tears the session down. The manager must not be used
// for execution afterwards.
func (m *Manager) ShutdownKernel(ctx context.Context) {
	m.coord.Session().Shutdown(ctx)
}

// KernelStatus returns the session's current state machine state.
func (m *Manager) KernelStatus() kernel.Status {
	return m.coord.Session().Status()
}

// SubscribeKernelStatus registers a synchronous kernel status observer.
func (m *Manager) SubscribeKernelStatus(fn func(kernel.Status)) {
	m.coord.Session().Subscribe(fn)
}

// --- Persistence ---

// LoadDocument replaces the manager's cells with the document's
// (thinking cells already filtered by the store) and resumes the
// execution counter at max observed + 1.
func (m *Manager) LoadDocument(doc *Document) {
	m.mu.Lock()
	m.meta = doc.Metadata
	m.cells = make([]*cell.Cell, len(doc.Cells))
	for i := range doc.Cells {
		c := doc.Cells[i]
		m.cells[i] = &c
	}
	m.activeID = ""
	if len(m.cells) > 0 {
		m.activeID = m.cells[len(m.cells)-1].ID
	}
	m.mu.Unlock()

	m.coord.ResumeCounter(doc.NextExecutionCount())
}

// Document snapshots the notebook for persistence.
func (m *Manager) Document() *Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc := &Document{Metadata: m.meta}
	doc.Cells = make([]cell.Cell, len(m.cells))
	for i, c := range m.cells {
		doc.Cells[i] = *c
	}
	doc.Metadata.CellCount = len(doc.Cells)
	return doc
}

// SetTitle updates the notebook title.
func (m *Manager) SetTitle(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta.Title = title
}

// --- executor.Store implementation ---

// Cell returns a snapshot of one cell.
func (m *Manager) Cell(id string) (cell.Cell, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c := m.get(id); c != nil {
		return *c, true
	}
	return cell.Cell{}, false
}

// SetExecutionState updates a cell's run state.
func (m *Manager) SetExecutionState(id string, st cell.ExecState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.get(id); c != nil {
		c.ExecutionState = st
	}
}

// SetExecutionCount records the count assigned at run start.
func (m *Manager) SetExecutionCount(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.get(id); c != nil {
		c.ExecutionCount = n
	}
}

// ClearOutput discards a cell's output list.
func (m *Manager) ClearOutput(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.get(id); c != nil {
		c.Output = nil
	}
}

// AppendOutput appends one item in arrival order. Only the coordinator
// calls this, and only for the single running cell.
func (m *Manager) AppendOutput(id string, item output.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.get(id); c != nil {
		c.Output = append(c.Output, item)
	}
}

var _ executor.Store = (*Manager)(nil)

// --- internal helpers (callers hold m.mu) ---

func (m *Manager) indexOf(id string) int {
	for i, c := range m.cells {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) get(id string) *cell.Cell {
	if i := m.indexOf(id); i >= 0 {
		return m.cells[i]
	}
	return nil
}
