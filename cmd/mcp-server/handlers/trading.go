// Package handlers implements the brokerage MCP tool surface. Read tools
// delegate straight to the brokerage client; write tools pass through the
// approval gate first.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tradewire/broker-mcp/internal/approvals"
	"github.com/tradewire/broker-mcp/internal/broker"
	"github.com/tradewire/broker-mcp/internal/cache"
	"github.com/tradewire/broker-mcp/pkg/mcp"
)

const quoteCacheTTL = 10 * time.Second

// TradingHandler handles brokerage MCP tool calls.
type TradingHandler struct {
	client     broker.Client
	gate       approvals.Gate
	quoteCache cache.Cache
	allowWrite bool
}

// NewTradingHandler creates the brokerage tool handler. When allowWrite is
// false the write tools are not registered at all.
func NewTradingHandler(client broker.Client, gate approvals.Gate, quoteCache cache.Cache, allowWrite bool) *TradingHandler {
	return &TradingHandler{
		client:     client,
		gate:       gate,
		quoteCache: quoteCache,
		allowWrite: allowWrite,
	}
}

// Register installs the tool surface on the MCP server.
func (h *TradingHandler) Register(server *mcp.Server) {
	for _, tool := range h.ListTools() {
		if tool.Write && !h.allowWrite {
			continue
		}
		switch tool.Name {
		case "get_quote":
			server.RegisterTool(tool, h.handleGetQuote)
		case "get_accounts":
			server.RegisterTool(tool, h.handleGetAccounts)
		case "get_order":
			server.RegisterTool(tool, h.handleGetOrder)
		case "get_orders":
			server.RegisterTool(tool, h.handleGetOrders)
		case "place_equity_order":
			server.RegisterTool(tool, h.handlePlaceOrder)
		case "cancel_order":
			server.RegisterTool(tool, h.handleCancelOrder)
		}
	}
}

// ListTools returns the brokerage tool definitions.
func (h *TradingHandler) ListTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "get_quote",
			Description: "Get the current market quote for a symbol",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"symbol": map[string]interface{}{
						"type":        "string",
						"description": "Ticker symbol (e.g., AAPL)",
					},
				},
				"required": []string{"symbol"},
			},
		},
		{
			Name:        "get_accounts",
			Description: "List brokerage accounts with balances",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "get_order",
			Description: "Get a single order by ID",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_hash": map[string]interface{}{
						"type":        "string",
						"description": "Account identifier",
					},
					"order_id": map[string]interface{}{
						"type":        "string",
						"description": "Order ID",
					},
				},
				"required": []string{"account_hash", "order_id"},
			},
		},
		{
			Name:        "get_orders",
			Description: "List orders for an account, optionally filtered by date range and status",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_hash": map[string]interface{}{
						"type":        "string",
						"description": "Account identifier",
					},
					"max_results": map[string]interface{}{
						"type":        "number",
						"description": "Maximum number of orders to return",
						"default":     50,
					},
					"from_date": map[string]interface{}{
						"type":        "string",
						"description": "Earliest entered date (YYYY-MM-DD)",
					},
					"to_date": map[string]interface{}{
						"type":        "string",
						"description": "Latest entered date (YYYY-MM-DD)",
					},
					"status": map[string]interface{}{
						"type":        "string",
						"description": "Order status filter (e.g., WORKING, FILLED, CANCELED)",
					},
				},
				"required": []string{"account_hash"},
			},
		},
		{
			Name:        "place_equity_order",
			Description: "Place an equity order. Requires approval before execution.",
			Write:       true,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_hash": map[string]interface{}{
						"type":        "string",
						"description": "Account identifier",
					},
					"symbol": map[string]interface{}{
						"type":        "string",
						"description": "Ticker symbol",
					},
					"quantity": map[string]interface{}{
						"type":        "number",
						"description": "Number of shares",
					},
					"instruction": map[string]interface{}{
						"type":        "string",
						"description": "BUY or SELL",
					},
					"order_type": map[string]interface{}{
						"type":        "string",
						"description": "MARKET, LIMIT, STOP, or STOP_LIMIT",
					},
					"price": map[string]interface{}{
						"type":        "number",
						"description": "Limit price (required for LIMIT and STOP_LIMIT)",
					},
					"stop_price": map[string]interface{}{
						"type":        "number",
						"description": "Stop price (required for STOP and STOP_LIMIT)",
					},
					"session": map[string]interface{}{
						"type":        "string",
						"description": "Trading session (NORMAL, AM, PM, SEAMLESS)",
					},
					"duration": map[string]interface{}{
						"type":        "string",
						"description": "Order duration (DAY, GOOD_TILL_CANCEL, FILL_OR_KILL)",
					},
				},
				"required": []string{"account_hash", "symbol", "quantity", "instruction", "order_type"},
			},
		},
		{
			Name:        "cancel_order",
			Description: "Cancel a working order. Requires approval before execution.",
			Write:       true,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"account_hash": map[string]interface{}{
						"type":        "string",
						"description": "Account identifier",
					},
					"order_id": map[string]interface{}{
						"type":        "string",
						"description": "Order ID to cancel",
					},
				},
				"required": []string{"account_hash", "order_id"},
			},
		},
	}
}

func (h *TradingHandler) handleGetQuote(ctx context.Context, call mcp.ToolCall) (mcp.ToolResult, error) {
	symbol, _ := call.Arguments["symbol"].(string)
	if symbol == "" {
		return mcp.ErrorResult("symbol is required"), nil
	}

	cacheKey := "quote:" + symbol
	if h.quoteCache != nil {
		if cached, ok := h.quoteCache.Get(ctx, cacheKey); ok {
			return mcp.TextResult(string(cached)), nil
		}
	}

	quote, err := h.client.GetQuote(ctx, symbol)
	if err != nil {
		return brokerError(err), nil
	}

	text, err := jsonText(quote)
	if err != nil {
		return mcp.ToolResult{}, err
	}
	if h.quoteCache != nil {
		h.quoteCache.Set(ctx, cacheKey, []byte(text), quoteCacheTTL)
	}
	return mcp.TextResult(text), nil
}

func (h *TradingHandler) handleGetAccounts(ctx context.Context, call mcp.ToolCall) (mcp.ToolResult, error) {
	accounts, err := h.client.GetAccounts(ctx)
	if err != nil {
		return brokerError(err), nil
	}
	text, err := jsonText(accounts)
	if err != nil {
		return mcp.ToolResult{}, err
	}
	return mcp.TextResult(text), nil
}

func (h *TradingHandler) handleGetOrder(ctx context.Context, call mcp.ToolCall) (mcp.ToolResult, error) {
	accountHash, _ := call.Arguments["account_hash"].(string)
	orderID, _ := call.Arguments["order_id"].(string)
	if accountHash == "" || orderID == "" {
		return mcp.ErrorResult("account_hash and order_id are required"), nil
	}

	order, err := h.client.GetOrder(ctx, accountHash, orderID)
	if err != nil {
		return brokerError(err), nil
	}
	text, err := jsonText(order)
	if err != nil {
		return mcp.ToolResult{}, err
	}
	return mcp.TextResult(text), nil
}

func (h *TradingHandler) handleGetOrders(ctx context.Context, call mcp.ToolCall) (mcp.ToolResult, error) {
	accountHash, _ := call.Arguments["account_hash"].(string)
	if accountHash == "" {
		return mcp.ErrorResult("account_hash is required"), nil
	}

	query := broker.OrdersQuery{
		AccountHash: accountHash,
		MaxResults:  intArg(call.Arguments, "max_results"),
		FromDate:    stringArg(call.Arguments, "from_date"),
		ToDate:      stringArg(call.Arguments, "to_date"),
		Status:      stringArg(call.Arguments, "status"),
	}

	orders, err := h.client.GetOrders(ctx, query)
	if err != nil {
		return brokerError(err), nil
	}
	text, err := jsonText(orders)
	if err != nil {
		return mcp.ToolResult{}, err
	}
	return mcp.TextResult(text), nil
}

func (h *TradingHandler) handlePlaceOrder(ctx context.Context, call mcp.ToolCall) (mcp.ToolResult, error) {
	order := broker.OrderRequest{
		AccountHash: stringArg(call.Arguments, "account_hash"),
		Symbol:      stringArg(call.Arguments, "symbol"),
		Quantity:    intArg(call.Arguments, "quantity"),
		Instruction: stringArg(call.Arguments, "instruction"),
		OrderType:   stringArg(call.Arguments, "order_type"),
		Price:       floatArg(call.Arguments, "price"),
		StopPrice:   floatArg(call.Arguments, "stop_price"),
		Session:     stringArg(call.Arguments, "session"),
		Duration:    stringArg(call.Arguments, "duration"),
	}

	// Reject malformed orders before involving a reviewer.
	if err := broker.ValidateOrderRequest(order); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}

	if result, ok := h.requireApproval(ctx, call); !ok {
		return result, nil
	}

	placed, err := h.client.PlaceOrder(ctx, order)
	if err != nil {
		return brokerError(err), nil
	}
	text, err := jsonText(placed)
	if err != nil {
		return mcp.ToolResult{}, err
	}
	return mcp.TextResult(text), nil
}

func (h *TradingHandler) handleCancelOrder(ctx context.Context, call mcp.ToolCall) (mcp.ToolResult, error) {
	accountHash, _ := call.Arguments["account_hash"].(string)
	orderID, _ := call.Arguments["order_id"].(string)
	if accountHash == "" || orderID == "" {
		return mcp.ErrorResult("account_hash and order_id are required"), nil
	}

	if result, ok := h.requireApproval(ctx, call); !ok {
		return result, nil
	}

	if err := h.client.CancelOrder(ctx, accountHash, orderID); err != nil {
		return brokerError(err), nil
	}
	return mcp.TextResult(fmt.Sprintf("Order %s canceled.", orderID)), nil
}

// requireApproval runs the call through the approval gate. The second
// return is true only when the operation may proceed. A non-approved
// verdict never reaches the brokerage and is never retried.
func (h *TradingHandler) requireApproval(ctx context.Context, call mcp.ToolCall) (mcp.ToolResult, bool) {
	req := approvals.Request{
		ID:        uuid.NewString(),
		ToolName:  call.Name,
		RequestID: call.RequestID,
		ClientID:  call.ClientID,
		Arguments: stringifyArgs(call.Arguments),
	}

	decision, err := h.gate.Require(ctx, req)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		slog.Error("approval gate failed", "tool", call.Name, "approval_id", req.ID, "error", err)
		return mcp.ErrorResult("approval system unavailable; operation not executed"), false
	}

	switch decision {
	case approvals.Approved:
		return mcp.ToolResult{}, true
	case approvals.Denied:
		return mcp.ErrorResult("operation denied by reviewer; not executed"), false
	default:
		return mcp.ErrorResult("approval timed out; operation not executed"), false
	}
}

func brokerError(err error) mcp.ToolResult {
	if errors.Is(err, broker.ErrNotReady) {
		return mcp.ErrorResult("brokerage credentials are not configured; connect the broker account first")
	}
	return mcp.ErrorResult(err.Error())
}

func jsonText(v interface{}) (string, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]interface{}, key string) int {
	f, _ := args[key].(float64)
	return int(f)
}

func floatArg(args map[string]interface{}, key string) float64 {
	f, _ := args[key].(float64)
	return f
}

func stringifyArgs(args map[string]interface{}) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = fmt.Sprint(v)
	}
	return out
}
