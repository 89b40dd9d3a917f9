// Package mcpserver provides the Model Context Protocol (MCP) server
// implementation.
//
// The mcpserver package is a thin transport over the dispatcher: it
// exposes the execute_code tool for sandboxed execution and the
// execution_history tool for querying the journal. Request parsing and
// result marshaling live here; everything about running code lives
// behind the Executor interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/nkoval/runbox/config"
	"github.com/nkoval/runbox/dispatcher"
	"github.com/nkoval/runbox/journal"
	"github.com/nkoval/runbox/sandbox"
)

const defaultHistoryLimit = 20

// Executor is the inbound interface the transport calls into.
type Executor interface {
	Execute(ctx context.Context, code string) (sandbox.Outcome, error)
	History(ctx context.Context, f journal.Filter) ([]journal.Record, error)
}

// MCPServer represents the MCP server.
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	executor  Executor
	mcpServer *server.MCPServer
}

// New creates a new MCPServer.
func New(cfg *config.Config, logger *zap.Logger, executor Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		executor: executor,
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.String("sandbox.image", cfg.Sandbox.Image),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Int("sandbox.pids_limit", cfg.Sandbox.PidsLimit),
		zap.Bool("sandbox.network_enabled", cfg.Sandbox.NetworkEnabled),
		zap.Int("dispatcher.max_concurrent", cfg.Dispatcher.MaxConcurrent),
		zap.String("dispatcher.admission_mode", cfg.Dispatcher.AdmissionMode),
		zap.Bool("journal.enabled", cfg.Journal.Enabled),
	)

	s.mcpServer = server.NewMCPServer("runbox-dispatcher", "1.0.0")

	s.registerExecuteCodeTool()
	s.registerExecutionHistoryTool()

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool.
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        "execute_code",
		Description: "Execute untrusted Python code in an isolated sandbox and return the classified outcome",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source code to execute",
				},
			},
			Required: []string{"code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// registerExecutionHistoryTool registers the execution_history tool.
func (s *MCPServer) registerExecutionHistoryTool() {
	tool := mcp.Tool{
		Name:        "execution_history",
		Description: "List recent execution records from the journal",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"limit": map[string]any{
					"type":        "number",
					"description": "Maximum number of records to return",
				},
				"status": map[string]any{
					"type":        "string",
					"description": "Filter by outcome status",
					"enum":        []string{"success", "timeout", "memory_exceeded", "runtime_error", "internal_error"},
				},
			},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecutionHistory)
}

// handleExecuteCode handles the execute_code tool.
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	outcome, err := s.executor.Execute(ctx, code)
	if err != nil {
		return toolError(classifyDispatchError(err)), nil
	}

	// Code-attributable outcomes, including timeouts and memory kills,
	// are normal results at the transport layer, not errors.
	body, err := json.Marshal(outcome)
	if err != nil {
		s.logger.Error("failed to marshal outcome", zap.Error(err))
		return toolError("internal error"), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(body)},
		},
	}, nil
}

// handleExecutionHistory handles the execution_history tool.
func (s *MCPServer) handleExecutionHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	filter := journal.Filter{Limit: defaultHistoryLimit}
	if v, ok := args["limit"].(float64); ok && v > 0 {
		filter.Limit = int(v)
	}
	if v, ok := args["status"].(string); ok {
		filter.Status = v
	}

	records, err := s.executor.History(ctx, filter)
	if err != nil {
		s.logger.Error("failed to query journal", zap.Error(err))
		return toolError("history unavailable"), nil
	}
	if records == nil {
		records = []journal.Record{}
	}

	body, err := json.Marshal(records)
	if err != nil {
		return toolError("internal error"), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(body)},
		},
	}, nil
}

// classifyDispatchError maps dispatcher errors onto user-facing
// messages. None of these are retryable without operator action, except
// overload which is retryable after back-off.
func classifyDispatchError(err error) string {
	var valErr *dispatcher.ValidationError
	var provErr *sandbox.ProvisionError

	switch {
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.Is(err, dispatcher.ErrOverloaded):
		return "server busy: too many concurrent executions, try again later"
	case errors.Is(err, dispatcher.ErrClosed):
		return "server is shutting down"
	case errors.As(err, &provErr):
		return "internal error: failed to provision sandbox"
	default:
		return "internal error: " + err.Error()
	}
}

func toolError(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: message},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP.
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}
