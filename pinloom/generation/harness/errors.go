package harness

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when the caller exhausted its request budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrPlanning wraps failures of the planning completion.
	ErrPlanning = errors.New("planning call failed")
	// ErrSummarizing wraps failures of the summarization completion.
	ErrSummarizing = errors.New("summarization call failed")
	// ErrUnknownTool marks invocations naming a tool the registry does not hold.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments marks tool arguments rejected before execution.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrEmptyPrompt rejects requests without a prompt.
	ErrEmptyPrompt = errors.New("prompt is required")
)

// PartialResultError reports a failure after tools already ran. Artifacts holds
// what the tools produced so the caller can still show it.
type PartialResultError struct {
	Stage     State
	Artifacts *Artifacts
	Err       error
}

func (e *PartialResultError) Error() string {
	return fmt.Sprintf("%s failed after tool execution: %v", e.Stage, e.Err)
}

func (e *PartialResultError) Unwrap() error { return e.Err }
