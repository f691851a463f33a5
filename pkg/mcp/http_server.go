package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// ClientIDFunc extracts the authenticated OAuth client id from a request,
// typically set by the auth middleware. May be nil.
type ClientIDFunc func(r *http.Request) string

// HTTPHandler serves the MCP JSON-RPC endpoint over HTTP POST.
type HTTPHandler struct {
	server   *Server
	clientID ClientIDFunc
}

// NewHTTPHandler wraps a server for mounting on an HTTP mux.
func NewHTTPHandler(server *Server, clientID ClientIDFunc) *HTTPHandler {
	return &HTTPHandler{server: server, clientID: clientID}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	method, _ := request["method"].(string)
	var response map[string]interface{}

	switch method {
	case "initialize":
		response = h.handleInitialize()
	case "tools/list":
		response = h.handleListTools()
	case "tools/call":
		response = h.handleToolCall(r, request)
	default:
		response = map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32601,
				"message": fmt.Sprintf("Method not found: %s", method),
			},
		}
	}

	response["jsonrpc"] = "2.0"
	if id, ok := request["id"]; ok {
		response["id"] = id
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *HTTPHandler) handleInitialize() map[string]interface{} {
	return map[string]interface{}{
		"result": map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    h.server.name,
				"version": h.server.version,
			},
		},
	}
}

func (h *HTTPHandler) handleListTools() map[string]interface{} {
	return map[string]interface{}{
		"result": map[string]interface{}{
			"tools": h.server.Tools(),
		},
	}
}

func (h *HTTPHandler) handleToolCall(r *http.Request, request map[string]interface{}) map[string]interface{} {
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

	call := ToolCall{
		Name:      name,
		Arguments: arguments,
		RequestID: uuid.NewString(),
	}
	if h.clientID != nil {
		call.ClientID = h.clientID(r)
	}

	result, err := h.server.Call(r.Context(), call)
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
}
