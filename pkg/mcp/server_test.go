package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() (Tool, Handler) {
	tool := Tool{
		Name:        "echo",
		Description: "Echo the input back",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{"type": "string"},
			},
		},
	}
	handler := func(ctx context.Context, call ToolCall) (ToolResult, error) {
		msg, _ := call.Arguments["message"].(string)
		return TextResult(msg), nil
	}
	return tool, handler
}

func TestServerRegisterAndCall(t *testing.T) {
	s := NewServer("broker-mcp", "1.0.0")
	tool, handler := echoTool()
	s.RegisterTool(tool, handler)

	result, err := s.Call(context.Background(), ToolCall{
		Name:      "echo",
		Arguments: map[string]interface{}{"message": "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestServerUnknownTool(t *testing.T) {
	s := NewServer("broker-mcp", "1.0.0")

	_, err := s.Call(context.Background(), ToolCall{Name: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestServerReRegisterReplaces(t *testing.T) {
	s := NewServer("broker-mcp", "1.0.0")
	tool, handler := echoTool()
	s.RegisterTool(tool, handler)

	tool.Description = "updated"
	s.RegisterTool(tool, handler)

	tools := s.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "updated", tools[0].Description)
}

func postRPC(t *testing.T, h http.Handler, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response
}

func TestHTTPInitialize(t *testing.T) {
	s := NewServer("broker-mcp", "1.0.0")
	h := NewHTTPHandler(s, nil)

	response := postRPC(t, h, map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
	})

	assert.Equal(t, "2.0", response["jsonrpc"])
	assert.Equal(t, float64(1), response["id"])
	result := response["result"].(map[string]interface{})
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	info := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "broker-mcp", info["name"])
}

func TestHTTPToolsList(t *testing.T) {
	s := NewServer("broker-mcp", "1.0.0")
	tool, handler := echoTool()
	s.RegisterTool(tool, handler)
	h := NewHTTPHandler(s, nil)

	response := postRPC(t, h, map[string]interface{}{
		"jsonrpc": "2.0", "id": 2, "method": "tools/list",
	})

	result := response["result"].(map[string]interface{})
	tools := result["tools"].([]interface{})
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].(map[string]interface{})["name"])
}

func TestHTTPToolCall(t *testing.T) {
	s := NewServer("broker-mcp", "1.0.0")
	tool, handler := echoTool()
	s.RegisterTool(tool, handler)
	h := NewHTTPHandler(s, func(r *http.Request) string { return "client-1" })

	response := postRPC(t, h, map[string]interface{}{
		"jsonrpc": "2.0", "id": 3, "method": "tools/call",
		"params": map[string]interface{}{
			"name":      "echo",
			"arguments": map[string]interface{}{"message": "quote please"},
		},
	})

	result := response["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	block := content[0].(map[string]interface{})
	assert.Equal(t, "quote please", block["text"])
}

func TestHTTPToolCallAssignsRequestID(t *testing.T) {
	s := NewServer("broker-mcp", "1.0.0")
	var seen ToolCall
	s.RegisterTool(Tool{Name: "capture"}, func(ctx context.Context, call ToolCall) (ToolResult, error) {
		seen = call
		return TextResult("ok"), nil
	})
	h := NewHTTPHandler(s, func(r *http.Request) string { return "client-7" })

	postRPC(t, h, map[string]interface{}{
		"jsonrpc": "2.0", "id": 4, "method": "tools/call",
		"params": map[string]interface{}{"name": "capture"},
	})

	assert.NotEmpty(t, seen.RequestID)
	assert.Equal(t, "client-7", seen.ClientID)
}

func TestHTTPMethodNotFound(t *testing.T) {
	s := NewServer("broker-mcp", "1.0.0")
	h := NewHTTPHandler(s, nil)

	response := postRPC(t, h, map[string]interface{}{
		"jsonrpc": "2.0", "id": 5, "method": "resources/list",
	})

	errObj := response["error"].(map[string]interface{})
	assert.Equal(t, float64(-32601), errObj["code"])
}

func TestHTTPRejectsGet(t *testing.T) {
	s := NewServer("broker-mcp", "1.0.0")
	h := NewHTTPHandler(s, nil)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
