// Package a2a serves the agent card and a minimal task endpoint that runs a
// single tool call per task.
package a2a

import (
	"context"
	"encoding/json"

	"github.com/Strob0t/taskrelay/internal/protocol"
)

// Task statuses reported by the task endpoint.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Caller runs one tool call.
type Caller interface {
	Call(ctx context.Context, method string, params json.RawMessage) (any, *protocol.Error)
}

// TaskRequest represents an incoming A2A task request. Skill names the tool,
// Input carries its parameters.
type TaskRequest struct {
	ID    string          `json:"id"`
	Skill string          `json:"skill"`
	Input json.RawMessage `json:"input,omitempty"`
}

// TaskResponse represents an A2A task response.
type TaskResponse struct {
	ID     string          `json:"id"`
	Skill  string          `json:"skill"`
	Status string          `json:"status"`
	Output any             `json:"output,omitempty"`
	Error  *protocol.Error `json:"error,omitempty"`
}
