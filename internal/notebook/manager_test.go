package notebook_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aicell-lab/hypha-agents-sub001/internal/cell"
	"github.com/aicell-lab/hypha-agents-sub001/internal/kernel"
	"github.com/aicell-lab/hypha-agents-sub001/internal/notebook"
)

func newTestManager(t *testing.T, fake *kernel.FakeBackend) *notebook.Manager {
	t.Helper()
	session := kernel.NewSession(fake, 0)
	m := notebook.NewManager(session, notebook.Options{ExecuteTimeout: time.Second})
	if err := m.ConnectKernel(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return m
}

func cellIDs(cells []cell.Cell) []string {
	ids := make([]string, len(cells))
	for i, c := range cells {
		ids[i] = c.ID
	}
	return ids
}

func TestAddCell_OrderAndCursor(t *testing.T) {
	m := newTestManager(t, &kernel.FakeBackend{})

	a := m.AddCell(cell.TypeCode, "a", cell.RoleUser, notebook.AddOptions{})
	b := m.AddCell(cell.TypeCode, "b", cell.RoleUser, notebook.AddOptions{})
	mid := m.AddCell(cell.TypeMarkdown, "between", cell.RoleUser, notebook.AddOptions{AfterID: a})

	ids := cellIDs(m.Cells())
	want := []string{a, mid, b}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
	if m.ActiveCellID() != mid {
		t.Errorf("active = %q, want the last inserted cell", m.ActiveCellID())
	}
}

func TestAddCell_ExplicitID(t *testing.T) {
	m := newTestManager(t, &kernel.FakeBackend{})

	id := m.AddCell(cell.TypeCode, "x", cell.RoleAssistant, notebook.AddOptions{ID: "fixed-id"})

	if id != "fixed-id" {
		t.Errorf("id = %q, want the forced id", id)
	}
}

func TestDeleteCell_OrphansChildren(t *testing.T) {
	m := newTestManager(t, &kernel.FakeBackend{})

	parent := m.AddCell(cell.TypeMarkdown, "question", cell.RoleUser, notebook.AddOptions{})
	child := m.AddCell(cell.TypeCode, "answer", cell.RoleAssistant, notebook.AddOptions{ParentID: parent})

	if !m.DeleteCell(parent) {
		t.Fatal("delete failed")
	}

	cells := m.Cells()
	if len(cells) != 1 || cells[0].ID != child {
		t.Fatalf("cells = %v, want only the child", cellIDs(cells))
	}
	if cells[0].Metadata.Parent != "" {
		t.Errorf("child parent = %q, want orphaned", cells[0].Metadata.Parent)
	}
}

func TestDeleteCellWithChildren_Cascades(t *testing.T) {
	m := newTestManager(t, &kernel.FakeBackend{})

	// Child placed before its parent in document order: the sweep must
	// still find it.
	parent := m.AddCell(cell.TypeMarkdown, "q", cell.RoleUser, notebook.AddOptions{})
	child := m.AddCell(cell.TypeCode, "c", cell.RoleAssistant, notebook.AddOptions{ParentID: parent, AfterID: ""})
	grand := m.AddCell(cell.TypeCode, "g", cell.RoleAssistant, notebook.AddOptions{ParentID: child})
	m.MoveCellUp(grand)
	m.MoveCellUp(grand)
	keeper := m.AddCell(cell.TypeMarkdown, "keep", cell.RoleUser, notebook.AddOptions{})

	if !m.DeleteCellWithChildren(parent) {
		t.Fatal("delete failed")
	}

	cells := m.Cells()
	if len(cells) != 1 || cells[0].ID != keeper {
		t.Fatalf("cells = %v, want only the unrelated cell", cellIDs(cells))
	}
}

func TestMoveCell_Boundaries(t *testing.T) {
	m := newTestManager(t, &kernel.FakeBackend{})

	a := m.AddCell(cell.TypeCode, "a", cell.RoleUser, notebook.AddOptions{})
	b := m.AddCell(cell.TypeCode, "b", cell.RoleUser, notebook.AddOptions{})

	if m.MoveCellUp(a) {
		t.Error("moving the first cell up should be a no-op")
	}
	if m.MoveCellDown(b) {
		t.Error("moving the last cell down should be a no-op")
	}
	if !m.MoveCellDown(a) {
		t.Fatal("move down failed")
	}
	ids := cellIDs(m.Cells())
	if ids[0] != b || ids[1] != a {
		t.Errorf("order = %v, want [b a]", ids)
	}
}

func TestExecuteCell_RecordsOutputAndState(t *testing.T) {
	fake := &kernel.FakeBackend{
		Scripts: map[string][]kernel.Event{
			"print(1+1)": {
				kernel.StreamEvent(kernel.StreamStdout, "2\n"),
				kernel.CompleteEvent(),
			},
		},
	}
	m := newTestManager(t, fake)
	id := m.AddCell(cell.TypeCode, "print(1+1)", cell.RoleUser, notebook.AddOptions{})

	summary := m.ExecuteCell(context.Background(), id)

	if summary != "2" {
		t.Errorf("summary = %q", summary)
	}
	c, _ := m.Cell(id)
	if c.ExecutionState != cell.StateSuccess || c.ExecutionCount != 1 {
		t.Errorf("cell = state %q count %d", c.ExecutionState, c.ExecutionCount)
	}
	if len(c.Output) != 1 || c.Output[0].Content != "2\n" {
		t.Errorf("output = %+v", c.Output)
	}
}

func TestExecuteCell_SingleFlight(t *testing.T) {
	fake := &kernel.FakeBackend{Gate: make(chan struct{})}
	m := newTestManager(t, fake)

	first := m.AddCell(cell.TypeCode, "first()", cell.RoleUser, notebook.AddOptions{})
	second := m.AddCell(cell.TypeCode, "second()", cell.RoleUser, notebook.AddOptions{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.ExecuteCell(context.Background(), first)
	}()

	// Wait for the first run to reach the backend.
	deadline := time.Now().Add(time.Second)
	for len(fake.ExecutedCodes()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first run never reached the backend")
		}
		time.Sleep(time.Millisecond)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.ExecuteCell(context.Background(), second)
	}()

	// The second run must queue behind the gate, not start.
	time.Sleep(20 * time.Millisecond)
	if codes := fake.ExecutedCodes(); len(codes) != 1 {
		t.Fatalf("backend saw %v while the first run was in flight", codes)
	}

	close(fake.Gate)
	wg.Wait()

	codes := fake.ExecutedCodes()
	if len(codes) != 2 || codes[0] != "first()" || codes[1] != "second()" {
		t.Errorf("codes = %v, want serialized order", codes)
	}
	a, _ := m.Cell(first)
	b, _ := m.Cell(second)
	if a.ExecutionCount >= b.ExecutionCount {
		t.Errorf("counts = %d, %d, want strictly increasing", a.ExecutionCount, b.ExecutionCount)
	}
}

func TestInterruptExecution_AbortsInFlightRun(t *testing.T) {
	fake := &kernel.FakeBackend{Gate: make(chan struct{})}
	m := newTestManager(t, fake)
	id := m.AddCell(cell.TypeCode, "long()", cell.RoleUser, notebook.AddOptions{})

	done := make(chan string, 1)
	go func() { done <- m.ExecuteCell(context.Background(), id) }()

	deadline := time.Now().Add(time.Second)
	for len(fake.ExecutedCodes()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("run never reached the backend")
		}
		time.Sleep(time.Millisecond)
	}

	m.InterruptExecution(context.Background())

	select {
	case summary := <-done:
		if !strings.Contains(summary, "AbortedExecution") {
			t.Errorf("summary = %q, want abort note", summary)
		}
	case <-time.After(time.Second):
		t.Fatal("interrupted run never settled")
	}

	c, _ := m.Cell(id)
	if c.ExecutionState != cell.StateError {
		t.Errorf("state = %q, want error", c.ExecutionState)
	}
	if m.KernelStatus() != kernel.StatusIdle {
		t.Errorf("kernel status = %q, want idle after abort", m.KernelStatus())
	}
}

func TestRunAllCells_ContinuesPastFailures(t *testing.T) {
	fake := &kernel.FakeBackend{
		Scripts: map[string][]kernel.Event{
			"bad": {
				kernel.ErrorEvent("RuntimeError", "nope", nil),
				kernel.CompleteEvent(),
			},
		},
	}
	m := newTestManager(t, fake)

	m.AddCell(cell.TypeCode, "good1", cell.RoleUser, notebook.AddOptions{})
	m.AddCell(cell.TypeMarkdown, "skip me", cell.RoleUser, notebook.AddOptions{})
	m.AddCell(cell.TypeCode, "bad", cell.RoleUser, notebook.AddOptions{})
	m.AddCell(cell.TypeCode, "good2", cell.RoleUser, notebook.AddOptions{})

	results := m.RunAllCells(context.Background())

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3 (markdown skipped)", len(results))
	}
	if results[0].Failed || !results[1].Failed || results[2].Failed {
		t.Errorf("failure pattern = %v %v %v, want only the middle run failed",
			results[0].Failed, results[1].Failed, results[2].Failed)
	}
}

func TestClearAllOutputs(t *testing.T) {
	fake := &kernel.FakeBackend{
		Scripts: map[string][]kernel.Event{
			"print('x')": {
				kernel.StreamEvent(kernel.StreamStdout, "x\n"),
				kernel.CompleteEvent(),
			},
		},
	}
	m := newTestManager(t, fake)
	id := m.AddCell(cell.TypeCode, "print('x')", cell.RoleUser, notebook.AddOptions{})
	m.ExecuteCell(context.Background(), id)

	m.ClearAllOutputs()

	c, _ := m.Cell(id)
	if len(c.Output) != 0 {
		t.Errorf("output = %+v, want cleared", c.Output)
	}
	if c.ExecutionState != cell.StateIdle {
		t.Errorf("state = %q, want idle", c.ExecutionState)
	}
	if c.ExecutionCount != 1 {
		t.Errorf("count = %d, historical counts must survive a clear", c.ExecutionCount)
	}
}

func TestHistory_ExcludesThinking(t *testing.T) {
	m := newTestManager(t, &kernel.FakeBackend{})

	m.AddCell(cell.TypeMarkdown, "question", cell.RoleUser, notebook.AddOptions{})
	m.AddCell(cell.TypeThinking, "scratch", cell.RoleThinking, notebook.AddOptions{})
	m.AddCell(cell.TypeMarkdown, "answer", cell.RoleAssistant, notebook.AddOptions{})

	history := m.History()

	if len(history) != 2 {
		t.Fatalf("history = %+v, want 2 entries", history)
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("roles = %q %q", history[0].Role, history[1].Role)
	}
}

func TestLoadDocument_ResumesCounter(t *testing.T) {
	m := newTestManager(t, &kernel.FakeBackend{})

	ran := cell.New(cell.TypeCode, "old", cell.RoleUser)
	ran.ExecutionCount = 5
	doc := &notebook.Document{
		Metadata: notebook.Metadata{Title: "restored"},
		Cells:    []cell.Cell{*ran},
	}
	m.LoadDocument(doc)

	id := m.AddCell(cell.TypeCode, "new", cell.RoleUser, notebook.AddOptions{})
	m.ExecuteCell(context.Background(), id)

	c, _ := m.Cell(id)
	if c.ExecutionCount != 6 {
		t.Errorf("count = %d, want 6 (max observed + 1)", c.ExecutionCount)
	}
}

func TestRestartKernel_ResetsCounter(t *testing.T) {
	m := newTestManager(t, &kernel.FakeBackend{})
	id := m.AddCell(cell.TypeCode, "x = 1", cell.RoleUser, notebook.AddOptions{})

	m.ExecuteCell(context.Background(), id)
	m.ExecuteCell(context.Background(), id)

	if err := m.RestartKernel(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	m.ClearRunningState()

	m.ExecuteCell(context.Background(), id)
	c, _ := m.Cell(id)
	if c.ExecutionCount != 1 {
		t.Errorf("count after restart = %d, want 1", c.ExecutionCount)
	}
}

func TestResetKernelState_RunsSnippetAndResetsCounter(t *testing.T) {
	fake := &kernel.FakeBackend{Reset: "reset_state()"}
	m := newTestManager(t, fake)
	id := m.AddCell(cell.TypeCode, "x = 1", cell.RoleUser, notebook.AddOptions{})
	m.ExecuteCell(context.Background(), id)

	if err := m.ResetKernelState(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}

	codes := fake.ExecutedCodes()
	if codes[len(codes)-1] != "reset_state()" {
		t.Errorf("codes = %v, want trailing reset snippet", codes)
	}

	m.ExecuteCell(context.Background(), id)
	c, _ := m.Cell(id)
	if c.ExecutionCount != 1 {
		t.Errorf("count after reset = %d, want 1", c.ExecutionCount)
	}
}

func TestDocument_Snapshot(t *testing.T) {
	m := newTestManager(t, &kernel.FakeBackend{})
	m.SetTitle("analysis")
	m.AddCell(cell.TypeCode, "x = 1", cell.RoleUser, notebook.AddOptions{})

	doc := m.Document()

	if doc.Metadata.Title != "analysis" {
		t.Errorf("title = %q", doc.Metadata.Title)
	}
	if doc.Metadata.CellCount != 1 || len(doc.Cells) != 1 {
		t.Errorf("cell count = %d / %d", doc.Metadata.CellCount, len(doc.Cells))
	}

	// Snapshot is detached from the live notebook.
	doc.Cells[0].Content = "mutated"
	c, _ := m.Cell(doc.Cells[0].ID)
	if c.Content != "x = 1" {
		t.Error("document snapshot must not alias live cells")
	}
}

func TestToggleVisibility(t *testing.T) {
	m := newTestManager(t, &kernel.FakeBackend{})
	id := m.AddCell(cell.TypeCode, "x", cell.RoleUser, notebook.AddOptions{})

	m.ToggleCodeVisibility(id)
	m.ToggleOutputVisibility(id)

	c, _ := m.Cell(id)
	if !c.Metadata.CodeHidden || !c.Metadata.OutputHidden {
		t.Errorf("metadata = %+v, want both hidden", c.Metadata)
	}
}
