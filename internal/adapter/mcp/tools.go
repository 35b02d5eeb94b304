package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/taskrelay/internal/service"
)

var (
	priorityValues = []string{"P1", "P2", "P3", "critical", "high", "medium", "low"}
	severityValues = []string{"critical", "high", "medium", "low"}
)

// newTaskSchema describes service.NewTaskParams.
var newTaskSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":              map[string]any{"type": "string"},
		"description":        map[string]any{"type": "string"},
		"priority":           map[string]any{"type": "string", "enum": priorityValues},
		"acceptanceCriteria": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"relatedFiles":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"estimatedHours":     map[string]any{"type": "number"},
	},
	"required": []string{"title"},
}

// registerTools registers the five agent tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.getNextTaskTool(),
		s.reportTaskStatusTool(),
		s.reportObservationTool(),
		s.reportTestFailureTool(),
		s.askQuestionTool(),
	)
}

func (s *Server) getNextTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(service.MethodGetNextTask,
		mcplib.WithDescription(service.ToolDescriptions[service.MethodGetNextTask]),
		mcplib.WithString("status",
			mcplib.Description("Only consider tasks in this status"),
			mcplib.Enum("pending", "ready", "in-progress", "completed", "blocked", "failed"),
		),
		mcplib.WithString("priority",
			mcplib.Description("Only consider tasks with this priority"),
			mcplib.Enum("P1", "P2", "P3"),
		),
		mcplib.WithBoolean("includeContext",
			mcplib.Description("Include the enriched prompt (default true)"),
		),
		mcplib.WithBoolean("claim",
			mcplib.Description("Start the returned task and open a session"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.dispatch(service.MethodGetNextTask)}
}

func (s *Server) reportTaskStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(service.MethodReportTaskStatus,
		mcplib.WithDescription(service.ToolDescriptions[service.MethodReportTaskStatus]),
		mcplib.WithString("taskId", mcplib.Required(), mcplib.Description("The task being reported")),
		mcplib.WithString("outcome", mcplib.Required(),
			mcplib.Enum("done", "failed", "blocked", "partial"),
		),
		mcplib.WithString("summary", mcplib.Description("What was done")),
		mcplib.WithString("reason", mcplib.Description("Why the task failed or is blocked; required for blocked")),
		mcplib.WithObject("testResults",
			mcplib.Properties(map[string]any{
				"passed":  map[string]any{"type": "boolean"},
				"total":   map[string]any{"type": "integer"},
				"failed":  map[string]any{"type": "integer"},
				"summary": map[string]any{"type": "string"},
			}),
		),
		mcplib.WithArray("observations",
			mcplib.Description("Free-text notes made while working"),
			mcplib.Items(map[string]any{"type": "string"}),
		),
		mcplib.WithArray("followUps",
			mcplib.Description("Tasks to queue after this one"),
			mcplib.Items(newTaskSchema),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.dispatch(service.MethodReportTaskStatus)}
}

func (s *Server) reportObservationTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(service.MethodReportObservation,
		mcplib.WithDescription(service.ToolDescriptions[service.MethodReportObservation]),
		mcplib.WithString("taskId", mcplib.Required()),
		mcplib.WithString("observation", mcplib.Required()),
		mcplib.WithString("severity", mcplib.Required(), mcplib.Enum(severityValues...)),
		mcplib.WithString("type", mcplib.Required(),
			mcplib.Enum("discovery", "issue", "improvement", "dependency", "test-failure", "architecture-concern"),
		),
		mcplib.WithArray("relatedFiles", mcplib.Items(map[string]any{"type": "string"})),
		mcplib.WithBoolean("createTask", mcplib.Description("Queue a task for this observation; requires newTask")),
		mcplib.WithObject("newTask", mcplib.Properties(newTaskSchema["properties"].(map[string]any))),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.dispatch(service.MethodReportObservation)}
}

func (s *Server) reportTestFailureTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(service.MethodReportTestFailure,
		mcplib.WithDescription(service.ToolDescriptions[service.MethodReportTestFailure]),
		mcplib.WithString("taskId", mcplib.Required()),
		mcplib.WithString("testName", mcplib.Required()),
		mcplib.WithString("errorMessage", mcplib.Required()),
		mcplib.WithString("stackTrace"),
		mcplib.WithString("testFile"),
		mcplib.WithBoolean("previouslyPassed"),
		mcplib.WithArray("possibleCauses", mcplib.Items(map[string]any{"type": "string"})),
		mcplib.WithBoolean("needsInvestigation", mcplib.Description("Queue an investigation task")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.dispatch(service.MethodReportTestFailure)}
}

func (s *Server) askQuestionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(service.MethodAskQuestion,
		mcplib.WithDescription(service.ToolDescriptions[service.MethodAskQuestion]),
		mcplib.WithString("question", mcplib.Required()),
		mcplib.WithString("taskId"),
		mcplib.WithString("context"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.dispatch(service.MethodAskQuestion)}
}

// dispatch forwards the tool arguments to the protocol dispatcher so MCP and
// /rpc share validation and error codes.
func (s *Server) dispatch(method string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
		if s.deps.Dispatcher == nil {
			return mcplib.NewToolResultError("dispatcher not configured"), nil
		}
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("failed to encode arguments", err), nil
		}
		result, perr := s.deps.Dispatcher.Call(ctx, method, args)
		if perr != nil {
			data, _ := json.Marshal(perr)
			return mcplib.NewToolResultError(string(data)), nil
		}
		data, err := json.Marshal(result)
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
		}
		return toolResultJSON(string(data)), nil
	}
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
