// Package starlark implements an in-process kernel backend on top of
// go.starlark.net. Globals persist across execute calls like a real
// kernel process; reset_state() clears them without tearing anything
// down. print output is streamed as stdout events, and display_html /
// display_svg / display_image builtins emit rich display events.
package starlark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/aicell-lab/hypha-agents-sub001/internal/kernel"
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Backend is a local starlark kernel. It satisfies kernel.Backend.
type Backend struct {
	mu        sync.Mutex
	connected bool
	globals   starlark.StringDict
	thread    *starlark.Thread // currently executing thread, if any
}

var _ kernel.Backend = (*Backend)(nil)

// New creates an unconnected backend.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) Connect(ctx context.Context, _ kernel.ConnectOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		b.connected = true
		b.globals = starlark.StringDict{}
	}
	return nil
}

func (b *Backend) Info(context.Context) (kernel.Info, error) {
	return kernel.Info{
		LanguageName:    "starlark",
		LanguageVersion: "1",
		Implementation:  "go.starlark.net",
	}, nil
}

// ResetSnippet returns a call to the reset_state builtin installed in
// the predeclared environment.
func (b *Backend) ResetSnippet() string { return "reset_state()" }

// Interrupt cancels the currently executing thread, if any.
func (b *Backend) Interrupt(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.thread != nil {
		b.thread.Cancel("interrupt requested")
	}
	return nil
}

func (b *Backend) Shutdown(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.thread != nil {
		b.thread.Cancel("kernel shutting down")
	}
	b.connected = false
	b.globals = nil
	return nil
}

func (b *Backend) Execute(ctx context.Context, requestID, code string) (<-chan kernel.Event, error) {
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return nil, errors.New("starlark backend is not connected")
	}

	ch := make(chan kernel.Event, 16)

	send := func(ev kernel.Event) {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(ch)

		thread := &starlark.Thread{
			Name: requestID,
			Print: func(_ *starlark.Thread, msg string) {
				send(kernel.StreamEvent(kernel.StreamStdout, msg+"\n"))
			},
		}

		b.mu.Lock()
		b.thread = thread
		env := make(starlark.StringDict, len(b.globals)+4)
		for k, v := range b.globals {
			env[k] = v
		}
		b.mu.Unlock()
		b.installBuiltins(env, send)

		defer func() {
			b.mu.Lock()
			b.thread = nil
			b.mu.Unlock()
		}()

		// Cancel the thread if the caller gives up on this execution.
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				thread.Cancel("context cancelled")
			case <-stop:
			}
		}()

		globals, err := starlark.ExecFileOptions(fileOptions, thread, "cell", code, env)
		if err != nil {
			send(normalizeError(err))
			send(kernel.CompleteEvent())
			return
		}

		b.mu.Lock()
		for k, v := range globals {
			b.globals[k] = v
		}
		b.mu.Unlock()

		send(kernel.CompleteEvent())
	}()

	return ch, nil
}

// installBuiltins adds the display and reset builtins to the environment.
// They close over the per-execution send func, so the environment is
// rebuilt for every execute call.
func (b *Backend) installBuiltins(env starlark.StringDict, send func(kernel.Event)) {
	displayFn := func(name, mime string) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, fn *starlark.Builtin,
			args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var payload string
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "data", &payload); err != nil {
				return nil, err
			}
			send(kernel.DisplayEvent(map[string]string{mime: payload}))
			return starlark.None, nil
		})
	}

	env["display_html"] = displayFn("display_html", "text/html")
	env["display_svg"] = displayFn("display_svg", "image/svg+xml")
	env["display_image"] = displayFn("display_image", "image/png")

	env["reset_state"] = starlark.NewBuiltin("reset_state",
		func(_ *starlark.Thread, _ *starlark.Builtin,
			_ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
			b.mu.Lock()
			b.globals = starlark.StringDict{}
			b.mu.Unlock()
			return starlark.None, nil
		})
}

// normalizeError maps starlark failures onto the kernel error event:
// evaluation errors carry their backtrace, everything else (syntax and
// resolve errors) is reported by message alone.
func normalizeError(err error) kernel.Event {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		traceback := strings.Split(strings.TrimRight(evalErr.Backtrace(), "\n"), "\n")
		return kernel.ErrorEvent("EvalError", evalErr.Msg, traceback)
	}
	return kernel.ErrorEvent("SyntaxError", fmt.Sprint(err), nil)
}
