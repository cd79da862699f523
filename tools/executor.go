// Tool Executor with timeout support.
//
// Information Hiding:
// - Timeout handling hidden
// - Validation sequencing hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Executor runs tools with validation and a per-invocation timeout.
// Tools are executed once; retry is the model's decision, made from the
// result text recorded in the conversation.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an executor with the given per-invocation timeout.
// A zero timeout disables the deadline.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// NewDefaultExecutor creates an executor with a 30-second timeout.
func NewDefaultExecutor() *Executor {
	return &Executor{timeout: 30 * time.Second}
}

// Execute validates and runs a tool. Validation failures are returned as
// failed results, not errors, so they surface to the model as result text.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	if err := tool.Validate(args); err != nil {
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	return tool.Execute(ctx, args)
}
