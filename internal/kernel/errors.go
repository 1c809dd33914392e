package kernel

import "errors"

// Setup-level failures: these propagate to the caller as errors because
// there is no per-cell fallback for "there is no kernel". Run-level
// failures (execution errors, timeouts, aborts) never surface as Go
// errors; they are folded into the ExecResult and the cell's output.
var (
	// ErrConnect is a backend-reported connection/handshake failure.
	ErrConnect = errors.New("kernel connection failed")

	// ErrStartupTimeout means readiness was not observed within the
	// bounded startup wait.
	ErrStartupTimeout = errors.New("kernel startup timed out")
)
