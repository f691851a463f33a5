// Package mcp implements a minimal Model Context Protocol server:
// a tool registry plus a JSON-RPC 2.0 transport over HTTP.
package mcp

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes a single tool call.
type Handler func(ctx context.Context, call ToolCall) (ToolResult, error)

// Server is a registry of MCP tools and their handlers.
type Server struct {
	name    string
	version string

	mu       sync.RWMutex
	tools    []Tool
	handlers map[string]Handler
}

// NewServer creates a server advertised under the given name and version.
func NewServer(name, version string) *Server {
	return &Server{
		name:     name,
		version:  version,
		handlers: make(map[string]Handler),
	}
}

// RegisterTool adds a tool and its handler. Registering the same name twice
// replaces the previous handler.
func (s *Server) RegisterTool(tool Tool, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[tool.Name]; exists {
		for i, t := range s.tools {
			if t.Name == tool.Name {
				s.tools[i] = tool
				break
			}
		}
	} else {
		s.tools = append(s.tools, tool)
	}
	s.handlers[tool.Name] = handler
}

// Tools returns the registered tool definitions in registration order.
func (s *Server) Tools() []Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// Call dispatches a tool call to its registered handler.
func (s *Server) Call(ctx context.Context, call ToolCall) (ToolResult, error) {
	s.mu.RLock()
	handler, ok := s.handlers[call.Name]
	s.mu.RUnlock()
	if !ok {
		return ToolResult{}, fmt.Errorf("unknown tool: %s", call.Name)
	}
	return handler(ctx, call)
}
