// Package mcp exposes the taskrelay tools to coding agents over the Model
// Context Protocol (streamable HTTP transport).
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/middleware"
	"github.com/Strob0t/taskrelay/internal/protocol"
	"github.com/Strob0t/taskrelay/internal/service"
)

const readHeaderTimeout = 10 * time.Second

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Addr       string
	Name       string
	Version    string
	APIKeyHash string // bcrypt hash; empty disables auth
}

// QueueReader is the read side of the task store exposed as resources.
type QueueReader interface {
	Status() service.QueueStatus
	ReadyTasks() []task.Task
}

// ServerDeps holds the collaborators the tools and resources delegate to.
// Nil fields produce error results instead of panics.
type ServerDeps struct {
	Dispatcher *protocol.Dispatcher
	Queue      QueueReader
}

// Server serves the MCP endpoint.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	http      *http.Server
}

// NewServer creates an MCP server with every tool and resource registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(
			cfg.Name,
			cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(false, true),
			mcpserver.WithRecovery(),
			mcpserver.WithInstructions(instructions),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

const instructions = "Call get-next-task to receive work, report progress with report-task-status, " +
	"and use report-observation, report-test-failure and ask-question while working."

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Handler returns the authenticated streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	return middleware.NewAPIKeyAuth(s.cfg.APIKeyHash).Handler(mcpserver.NewStreamableHTTPServer(s.mcpServer))
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	slog.Info("mcp server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the listener down. Stop before Start is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
