package broker

import (
	"errors"
	"fmt"
)

// ErrConfigurationMissing indicates that process-wide configuration required
// by an integration (gateway API key, OAuth client credentials) is absent.
// This is fatal for the whole integration, surfaced immediately and never
// retried.
var ErrConfigurationMissing = errors.New("integration configuration missing")

// ErrUnknownTool indicates the requested tool has no registered route.
var ErrUnknownTool = errors.New("unknown tool")

// RemoteCallError is returned after every attempt of an invocation failed.
// It carries the last underlying error; intermediate failures are logged.
type RemoteCallError struct {
	// Tool is the tool name whose invocation failed.
	Tool string

	// Attempts is the total number of attempts made (initial + retries).
	Attempts int

	// Err is the error from the final attempt.
	Err error
}

// Error implements the error interface with a message suitable for direct
// display in chat output.
func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("call to %q failed after %d attempts: %v", e.Tool, e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *RemoteCallError) Unwrap() error {
	return e.Err
}
