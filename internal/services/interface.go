package services

import (
	"context"
	"errors"
	"fmt"
)

// TaskResult is the outcome of one execute-node run. Data is stored into
// the instance's step data under the node's output field; the display
// fields are presentation metadata surfaced to clients through events.
type TaskResult struct {
	Data           any    `json:"data"`
	DisplayTitle   string `json:"display_title,omitempty"`
	DisplayContent string `json:"display_content,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
}

// TaskExecutor is an interface for performing the work of execute nodes.
type TaskExecutor interface {
	// ExecuteNode performs the given goal with the given inputs and tools.
	ExecuteNode(ctx context.Context, goal string, inputs map[string]any, tools []string) (*TaskResult, error)
}

// TransientError wraps a failure that is worth retrying, such as an
// executor timeout or overload response.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
