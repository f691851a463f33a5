package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// StdioServer speaks MCP JSON-RPC over newline-delimited messages, for use
// as a local subprocess transport.
type StdioServer struct {
	server *Server
	in     io.Reader
	out    io.Writer
}

// NewStdioServer wraps a server for stdin/stdout operation.
func NewStdioServer(server *Server, in io.Reader, out io.Writer) *StdioServer {
	return &StdioServer{server: server, in: in, out: out}
}

// Run processes messages until the input stream closes.
func (s *StdioServer) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	encoder := json.NewEncoder(s.out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var request map[string]interface{}
		if err := json.Unmarshal(line, &request); err != nil {
			continue
		}

		response := s.handle(ctx, request)
		response["jsonrpc"] = "2.0"
		if id, ok := request["id"]; ok {
			response["id"] = id
		}
		if err := encoder.Encode(response); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *StdioServer) handle(ctx context.Context, request map[string]interface{}) map[string]interface{} {
	method, _ := request["method"].(string)
	switch method {
	case "initialize":
		return map[string]interface{}{
			"result": map[string]interface{}{
				"protocolVersion": ProtocolVersion,
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    s.server.name,
					"version": s.server.version,
				},
			},
		}
	case "tools/list":
		return map[string]interface{}{
			"result": map[string]interface{}{
				"tools": s.server.Tools(),
			},
		}
	case "tools/call":
		params, ok := request["params"].(map[string]interface{})
		if !ok {
			return map[string]interface{}{
				"error": map[string]interface{}{
					"code":    -32602,
					"message": "Invalid params",
				},
			}
		}
		name, _ := params["name"].(string)
		arguments, _ := params["arguments"].(map[string]interface{})

		result, err := s.server.Call(ctx, ToolCall{
			Name:      name,
			Arguments: arguments,
			RequestID: uuid.NewString(),
		})
		if err != nil {
			return map[string]interface{}{
				"error": map[string]interface{}{
					"code":    -32000,
					"message": err.Error(),
				},
			}
		}
		return map[string]interface{}{
			"result": result,
		}
	default:
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32601,
				"message": fmt.Sprintf("Method not found: %s", method),
			},
		}
	}
}
