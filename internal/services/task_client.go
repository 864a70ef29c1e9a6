package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPTaskExecutor is an HTTP implementation of the TaskExecutor
// interface, talking to an external agent sidecar.
type HTTPTaskExecutor struct {
	url    string
	client *http.Client
}

// NewHTTPTaskExecutor creates a new HTTPTaskExecutor.
func NewHTTPTaskExecutor(url string, timeout time.Duration) *HTTPTaskExecutor {
	return &HTTPTaskExecutor{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type executeRequest struct {
	Goal   string         `json:"goal"`
	Inputs map[string]any `json:"inputs,omitempty"`
	Tools  []string       `json:"tools,omitempty"`
}

// ExecuteNode performs the given goal with the given inputs and tools.
// Timeout, overload and server-side failures come back as TransientError
// so the engine's retry policy applies.
func (c *HTTPTaskExecutor) ExecuteNode(ctx context.Context, goal string, inputs map[string]any, tools []string) (*TaskResult, error) {
	requestBody, err := json.Marshal(executeRequest{Goal: goal, Inputs: inputs, Tools: tools})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/execute", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to make request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("executor returned status code %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("executor returned status code %d", resp.StatusCode)
	}

	var result TaskResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	return &result, nil
}
