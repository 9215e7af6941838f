package pipeline

import "fmt"

// Execution error kinds.
const (
	KindTimeout = "timeout"
	KindBackend = "backend"
)

// RejectedError is returned when the validator refuses a statement. The
// statement is never executed and never retried.
type RejectedError struct {
	Reason  string
	Pattern string
}

func (e *RejectedError) Error() string {
	return "statement rejected: " + e.Reason
}

// ExecutionError is returned when the external execution step times out
// or the backend reports a failure. Statement is retained for display;
// the wrapped error text is preserved verbatim.
type ExecutionError struct {
	Kind      string // timeout | backend
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
