// Package kernel manages the connection to one code execution backend:
// connect, execute, interrupt, restart, reset, shutdown, plus a status
// state machine observers can subscribe to.
//
// A single Session is shared by all cells in one notebook. The Session
// does not queue: callers (the execution coordinator and cell store)
// guarantee only one Execute is in flight at a time.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aicell-lab/hypha-agents-sub001/internal/log"
	"github.com/aicell-lab/hypha-agents-sub001/internal/output"
)

// Status is the session state machine state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusBusy     Status = "busy"
	StatusError    Status = "error"
)

const (
	// DefaultStartupTimeout bounds the wait for backend readiness.
	DefaultStartupTimeout = 120 * time.Second

	// DefaultExecuteTimeout bounds a single execute call.
	DefaultExecuteTimeout = 10 * time.Minute

	resetTimeout = 30 * time.Second
)

// Callbacks receives streamed results during an execute call.
// All callbacks are invoked from the calling goroutine, in event order.
type Callbacks struct {
	// OnOutput receives each normalized output item as it arrives.
	OnOutput func(output.Item)

	// OnClear is invoked when the backend requests a clear-output.
	OnClear func()

	// OnStatus receives coarse status strings: "running", "completed",
	// "error", "timeout", "aborted".
	OnStatus func(status string)
}

// ExecResult is the resolved outcome of one execute call. Execute never
// returns an error: failures are folded into Items and the flags so the
// caller always gets the output history.
type ExecResult struct {
	Items    []output.Item
	Failed   bool
	TimedOut bool
	Aborted  bool
}

// Session owns the connection to one execution backend. It is created
// on first use, torn down and recreated on restart, and never shared
// across notebooks.
type Session struct {
	backend        Backend
	startupTimeout time.Duration

	mu        sync.Mutex
	status    Status
	observers []func(Status)
	connected bool
	info      *Info
}

// NewSession wraps a backend. startupTimeout <= 0 uses the default.
func NewSession(backend Backend, startupTimeout time.Duration) *Session {
	if startupTimeout <= 0 {
		startupTimeout = DefaultStartupTimeout
	}
	return &Session{
		backend:        backend,
		startupTimeout: startupTimeout,
		status:         StatusIdle,
	}
}

// Subscribe registers an observer notified synchronously on every status
// transition.
func (s *Session) Subscribe(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Status returns the current state machine state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// KernelInfo returns the backend-reported facts gathered during Connect,
// or nil if the probe failed or Connect has not succeeded yet.
func (s *Session) KernelInfo() *Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	if s.status == st {
		s.mu.Unlock()
		return
	}
	s.status = st
	observers := make([]func(Status), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	log.LogKernelStatus(string(st))
	for _, fn := range observers {
		fn(st)
	}
}

// Connect establishes the backend connection. It is idempotent: calling
// it while already connected and ready returns immediately. Readiness
// must be observed within the startup timeout.
func (s *Session) Connect(ctx context.Context, opts ConnectOptions) error {
	s.mu.Lock()
	if s.connected && s.status != StatusError {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.setStatus(StatusStarting)

	ctx, cancel := context.WithTimeout(ctx, s.startupTimeout)
	defer cancel()

	if err := s.backend.Connect(ctx, opts); err != nil {
		s.setStatus(StatusError)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrStartupTimeout, s.startupTimeout)
		}
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}

	// One introspection call. Failure is logged but never fails Connect.
	if info, err := s.backend.Info(ctx); err != nil {
		log.Logger().Warn("kernel info probe failed", zap.Error(err))
	} else {
		s.mu.Lock()
		s.info = &info
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.setStatus(StatusIdle)
	return nil
}

// Execute sends one code string to the backend and resolves once the
// backend signals completion or the call is aborted or timed out.
// Callers are responsible for serialization; the session does not queue.
//
// Empty or whitespace-only code short-circuits to "completed" without
// contacting the backend. On timeout a synthetic stderr item is emitted
// and the status transitions to error, but the underlying remote
// computation is not claimed to have stopped. Context cancellation is
// treated as an advisory abort: Interrupt is issued and the result is
// marked Aborted.
func (s *Session) Execute(ctx context.Context, code string, cb Callbacks, timeout time.Duration) *ExecResult {
	res := &ExecResult{}

	if strings.TrimSpace(code) == "" {
		notifyStatus(cb, "completed")
		return res
	}
	if timeout <= 0 {
		timeout = DefaultExecuteTimeout
	}

	s.setStatus(StatusBusy)
	notifyStatus(cb, "running")

	requestID := uuid.NewString()
	events, err := s.backend.Execute(ctx, requestID, code)
	if err != nil {
		emit(res, cb, output.New(output.KindError, fmt.Sprintf("failed to start execution: %v", err)))
		res.Failed = true
		s.setStatus(StatusError)
		notifyStatus(cb, "error")
		return res
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok || ev.Type == EventComplete {
				return s.finish(res, cb)
			}
			s.handleEvent(ev, res, cb)

		case <-timer.C:
			emit(res, cb, output.New(output.KindStderr, fmt.Sprintf(
				"ExecutionTimeout: no completion after %s; the remote computation may still be running", timeout)))
			res.Failed = true
			res.TimedOut = true
			s.setStatus(StatusError)
			notifyStatus(cb, "timeout")
			return res

		case <-ctx.Done():
			s.Interrupt(context.Background())
			emit(res, cb, output.New(output.KindStderr,
				"AbortedExecution: run interrupted before completion; side effects may still have occurred"))
			res.Failed = true
			res.Aborted = true
			s.setStatus(StatusIdle)
			notifyStatus(cb, "aborted")
			return res
		}
	}
}

func (s *Session) finish(res *ExecResult, cb Callbacks) *ExecResult {
	// A failed run is a normal outcome: the session stays usable.
	s.setStatus(StatusIdle)
	if res.Failed {
		notifyStatus(cb, "error")
	} else {
		notifyStatus(cb, "completed")
	}
	return res
}

func (s *Session) handleEvent(ev Event, res *ExecResult, cb Callbacks) {
	switch ev.Type {
	case EventStream:
		kind := output.KindStdout
		if ev.Stream == StreamStderr {
			kind = output.KindStderr
			res.Failed = true
		}
		emit(res, cb, output.New(kind, ev.Text))

	case EventDisplay:
		if item, ok := displayItem(ev.Data); ok {
			emit(res, cb, item)
		}

	case EventError:
		res.Failed = true
		emit(res, cb, output.New(output.KindError, formatError(ev)))

	case EventClearOutput:
		res.Items = nil
		if cb.OnClear != nil {
			cb.OnClear()
		}

	case EventInputRequest:
		// Interactive input is not supported; surface as a note.
		res.Failed = true
		emit(res, cb, output.New(output.KindStderr,
			"input requested: interactive input is not supported in this environment"))
	}
}

// displayMimes lists recognized display mime types, richest first.
var displayMimes = []struct {
	mime string
	kind output.Kind
}{
	{"text/html", output.KindDisplayHTML},
	{"image/png", output.KindDisplayImage},
	{"image/jpeg", output.KindDisplayImage},
	{"image/svg+xml", output.KindDisplaySVG},
	{"text/plain", output.KindStdout},
}

// displayItem picks the richest available representation of display data.
func displayItem(data map[string]string) (output.Item, bool) {
	for _, m := range displayMimes {
		if payload, ok := data[m.mime]; ok {
			return output.NewWithAttrs(m.kind, payload, map[string]string{"mime": m.mime}), true
		}
	}
	return output.Item{}, false
}

func formatError(ev Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", ev.Ename, ev.Evalue)
	if len(ev.Traceback) > 0 {
		sb.WriteString("\n")
		sb.WriteString(strings.Join(ev.Traceback, "\n"))
	}
	return sb.String()
}

func emit(res *ExecResult, cb Callbacks, item output.Item) {
	res.Items = append(res.Items, item)
	if cb.OnOutput != nil {
		cb.OnOutput(item)
	}
}

func notifyStatus(cb Callbacks, status string) {
	if cb.OnStatus != nil {
		cb.OnStatus(status)
	}
}

// Interrupt is a best-effort request to stop the current execute call.
// Failures are logged, never returned.
func (s *Session) Interrupt(ctx context.Context) {
	if err := s.backend.Interrupt(ctx); err != nil {
		log.Logger().Warn("kernel interrupt failed", zap.Error(err))
	}
}

// ResetState runs the backend's reset snippet, clearing user-defined
// globals without tearing down the process. The logical execution
// counter is owned by the caller, not the session.
func (s *Session) ResetState(ctx context.Context) error {
	snippet := s.backend.ResetSnippet()
	if snippet == "" {
		return nil
	}
	res := s.Execute(ctx, snippet, Callbacks{}, resetTimeout)
	if res.Failed {
		return errors.New("kernel state reset failed")
	}
	return nil
}

// Restart discards the current connection and establishes a fresh one.
func (s *Session) Restart(ctx context.Context, opts ConnectOptions) error {
	s.setStatus(StatusStarting)
	if err := s.backend.Shutdown(ctx); err != nil {
		log.Logger().Warn("kernel shutdown before restart failed", zap.Error(err))
	}
	s.mu.Lock()
	s.connected = false
	s.info = nil
	s.mu.Unlock()
	return s.Connect(ctx, opts)
}

// Shutdown requests graceful termination, then force-clears local
// handles regardless of outcome.
func (s *Session) Shutdown(ctx context.Context) {
	if err := s.backend.Shutdown(ctx); err != nil {
		log.Logger().Warn("kernel shutdown failed", zap.Error(err))
	}
	s.mu.Lock()
	s.connected = false
	s.info = nil
	s.mu.Unlock()
	s.setStatus(StatusIdle)
}
