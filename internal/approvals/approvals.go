// Package approvals decides whether write-classified tool invocations may
// proceed. Two gates exist: an auto-approve bypass that audit-logs every
// invocation, and a human-review gate that suspends the call until an
// authorized reviewer responds or the timeout elapses.
package approvals

import (
	"context"
	"log/slog"
)

// Decision is the verdict produced for an approval request. Exactly one
// decision is produced per request.
type Decision string

const (
	Approved Decision = "approved"
	Denied   Decision = "denied"
	Expired  Decision = "expired"
)

// Request describes a write tool invocation awaiting a verdict. Argument
// values are strings so they can be rendered safely for a reviewer.
type Request struct {
	ID        string
	ToolName  string
	RequestID string
	ClientID  string
	Arguments map[string]string
}

// Gate is the approval backend interface. Start and Stop bracket any
// connection lifecycle the backend needs and are safe to call even if the
// gate is never exercised.
type Gate interface {
	Start(ctx context.Context) error
	Stop() error
	Require(ctx context.Context, req Request) (Decision, error)
}

// AutoApprover approves every request. This is a deliberate bypass mode:
// each invocation is logged at warning level with the full tool name,
// arguments, and request id, as the only durable record of the bypassed
// approval.
type AutoApprover struct {
	logger *slog.Logger
}

// NewAutoApprover creates the bypass gate. A nil logger uses the default.
func NewAutoApprover(logger *slog.Logger) *AutoApprover {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoApprover{logger: logger}
}

func (a *AutoApprover) Start(ctx context.Context) error { return nil }

func (a *AutoApprover) Stop() error { return nil }

func (a *AutoApprover) Require(ctx context.Context, req Request) (Decision, error) {
	clientID := req.ClientID
	if clientID == "" {
		clientID = "unknown"
	}
	a.logger.Warn("auto-approved write operation without human review",
		"tool", req.ToolName,
		"approval_id", req.ID,
		"client_id", clientID,
		"request_id", req.RequestID,
		"arguments", req.Arguments,
	)
	return Approved, nil
}
