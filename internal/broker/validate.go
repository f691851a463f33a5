package broker

import (
	"fmt"
	"strings"
)

var (
	validInstructions = map[string]bool{"BUY": true, "SELL": true}
	validOrderTypes   = map[string]bool{"MARKET": true, "LIMIT": true, "STOP": true, "STOP_LIMIT": true}
	validSessions     = map[string]bool{"": true, "NORMAL": true, "AM": true, "PM": true, "SEAMLESS": true}
	validDurations    = map[string]bool{"": true, "DAY": true, "GOOD_TILL_CANCEL": true, "FILL_OR_KILL": true}
)

// ValidateOrderRequest checks an order request before it is sent upstream,
// so malformed trades fail locally instead of at the brokerage.
func ValidateOrderRequest(req OrderRequest) error {
	if req.AccountHash == "" {
		return fmt.Errorf("account_hash is required")
	}
	if req.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", req.Quantity)
	}

	instruction := strings.ToUpper(req.Instruction)
	if !validInstructions[instruction] {
		return fmt.Errorf("instruction must be BUY or SELL, got %q", req.Instruction)
	}

	orderType := strings.ToUpper(req.OrderType)
	if !validOrderTypes[orderType] {
		return fmt.Errorf("order_type must be MARKET, LIMIT, STOP, or STOP_LIMIT, got %q", req.OrderType)
	}

	switch orderType {
	case "LIMIT":
		if req.Price <= 0 {
			return fmt.Errorf("price is required for LIMIT orders")
		}
	case "STOP":
		if req.StopPrice <= 0 {
			return fmt.Errorf("stop_price is required for STOP orders")
		}
	case "STOP_LIMIT":
		if req.Price <= 0 || req.StopPrice <= 0 {
			return fmt.Errorf("price and stop_price are required for STOP_LIMIT orders")
		}
	}

	if !validSessions[strings.ToUpper(req.Session)] {
		return fmt.Errorf("session must be NORMAL, AM, PM, or SEAMLESS, got %q", req.Session)
	}

	duration := strings.ToUpper(req.Duration)
	if !validDurations[duration] {
		return fmt.Errorf("duration must be DAY, GOOD_TILL_CANCEL, or FILL_OR_KILL, got %q", req.Duration)
	}
	if duration == "FILL_OR_KILL" && orderType != "LIMIT" && orderType != "STOP_LIMIT" {
		return fmt.Errorf("FILL_OR_KILL duration is only valid for LIMIT and STOP_LIMIT orders")
	}

	return nil
}
