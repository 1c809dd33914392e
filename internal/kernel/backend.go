package kernel

import "context"

// ConnectOptions configures a backend connection.
type ConnectOptions struct {
	// ServerURL is the execution server endpoint. Empty for in-process
	// backends.
	ServerURL string

	// Token authenticates against a remote server, if required.
	Token string

	// KernelSpec names the kernel to launch (backend-specific).
	KernelSpec string
}

// Info holds backend-reported facts, populated once after the first
// successful connection.
type Info struct {
	LanguageName    string `json:"languageName"`
	LanguageVersion string `json:"languageVersion"`
	Implementation  string `json:"implementation"`
	Banner          string `json:"banner,omitempty"`
}

// Backend is the abstract contract a kernel implementation satisfies.
// The Session, Coordinator, and cell store never depend on anything
// backend-specific beyond this interface.
//
// Execute returns a channel of tagged events; the backend closes it
// after emitting EventComplete (or on context cancellation). requestID
// correlates events with one execute call and is opaque to the backend.
type Backend interface {
	Connect(ctx context.Context, opts ConnectOptions) error
	Execute(ctx context.Context, requestID, code string) (<-chan Event, error)
	Interrupt(ctx context.Context) error
	Info(ctx context.Context) (Info, error)

	// ResetSnippet returns the backend-specific code snippet that clears
	// user-defined globals without tearing down the process. Empty means
	// the backend has no reset mechanism.
	ResetSnippet() string

	Shutdown(ctx context.Context) error
}
