package kernel

import (
	"context"
	"sync"
)

// FakeBackend is a scripted in-memory backend for tests.
//
// Usage:
//
//	fake := &kernel.FakeBackend{
//	    Scripts: map[string][]kernel.Event{
//	        "print(1+1)": {kernel.StreamEvent(kernel.StreamStdout, "2\n"), kernel.CompleteEvent()},
//	    },
//	}
//
// Executions with no script complete immediately with no output.
// Set Gate to hold executions open until the channel is closed (used to
// exercise single-flight behavior).
type FakeBackend struct {
	// Scripts maps code strings to the events to replay, in order.
	Scripts map[string][]Event

	// ConnectErr is returned by Connect when set.
	ConnectErr error

	// ExecuteErr is returned by Execute when set.
	ExecuteErr error

	// InfoErr makes the kernel-info probe fail when set.
	InfoErr error

	// KernelInfo is returned by Info (zero value is fine).
	KernelInfo Info

	// Gate, when non-nil, blocks each execution until closed.
	Gate chan struct{}

	// Reset is the snippet returned by ResetSnippet.
	Reset string

	mu          sync.Mutex
	connected   bool
	Executed    []string // codes received by Execute, in order
	Interrupted int      // number of Interrupt calls
	Shutdowns   int      // number of Shutdown calls
}

var _ Backend = (*FakeBackend)(nil)

func (f *FakeBackend) Connect(ctx context.Context, _ ConnectOptions) error {
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *FakeBackend) Execute(ctx context.Context, _ string, code string) (<-chan Event, error) {
	f.mu.Lock()
	connected := f.connected
	f.Executed = append(f.Executed, code)
	script := f.Scripts[code]
	f.mu.Unlock()

	if f.ExecuteErr != nil {
		return nil, f.ExecuteErr
	}
	if !connected {
		return nil, ErrConnect
	}

	ch := make(chan Event)
	go func() {
		defer close(ch)
		if f.Gate != nil {
			select {
			case <-f.Gate:
			case <-ctx.Done():
				return
			}
		}
		sawComplete := false
		for _, ev := range script {
			select {
			case ch <- ev:
				sawComplete = ev.Type == EventComplete
			case <-ctx.Done():
				return
			}
			if sawComplete {
				return
			}
		}
		select {
		case ch <- CompleteEvent():
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (f *FakeBackend) Interrupt(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Interrupted++
	return nil
}

func (f *FakeBackend) Info(context.Context) (Info, error) {
	if f.InfoErr != nil {
		return Info{}, f.InfoErr
	}
	return f.KernelInfo, nil
}

func (f *FakeBackend) ResetSnippet() string { return f.Reset }

func (f *FakeBackend) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Shutdowns++
	f.connected = false
	return nil
}

// ExecutedCodes returns a copy of the codes received so far.
func (f *FakeBackend) ExecutedCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Executed))
	copy(out, f.Executed)
	return out
}
