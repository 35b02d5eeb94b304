package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	uriQueueStatus = "taskrelay://queue/status"
	uriQueueReady  = "taskrelay://queue/ready"
)

// registerResources registers the read-only queue views.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriQueueStatus,
			"Queue Status",
			mcplib.WithResourceDescription("Task counts by status and priority, the current task and active sessions"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleQueueStatusResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriQueueReady,
			"Ready Tasks",
			mcplib.WithResourceDescription("Tasks eligible to start, in scheduling order"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleReadyResource,
	)
}

func (s *Server) handleQueueStatusResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Queue == nil {
		return jsonResource(req.Params.URI, `{"error":"queue not configured"}`), nil
	}
	data, err := json.Marshal(s.deps.Queue.Status())
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, string(data)), nil
}

func (s *Server) handleReadyResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Queue == nil {
		return jsonResource(req.Params.URI, `{"error":"queue not configured"}`), nil
	}
	data, err := json.Marshal(s.deps.Queue.ReadyTasks())
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, string(data)), nil
}

func jsonResource(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}
