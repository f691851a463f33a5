package approvals

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSettings configures the reviewer channel backed by a message broker.
type AMQPSettings struct {
	URL           string
	RequestQueue  string
	DecisionQueue string
}

// AMQPChannel posts approval requests to a broker queue watched by human
// reviewers and consumes their verdicts from a decision queue.
type AMQPChannel struct {
	settings  AMQPSettings
	logger    *slog.Logger
	conn      *amqp.Connection
	ch        *amqp.Channel
	responses chan ReviewerResponse
}

// DialAMQPChannel connects to the broker and declares both queues.
func DialAMQPChannel(settings AMQPSettings, logger *slog.Logger) (*AMQPChannel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.RequestQueue == "" {
		settings.RequestQueue = "ApprovalRequests"
	}
	if settings.DecisionQueue == "" {
		settings.DecisionQueue = "ApprovalDecisions"
	}

	conn, err := amqp.Dial(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	for _, queue := range []string{settings.RequestQueue, settings.DecisionQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("declaring queue %s: %w", queue, err)
		}
	}

	c := &AMQPChannel{
		settings:  settings,
		logger:    logger,
		conn:      conn,
		ch:        ch,
		responses: make(chan ReviewerResponse),
	}
	if err := c.consumeDecisions(); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

type approvalMessage struct {
	ApprovalID string            `json:"approval_id"`
	ToolName   string            `json:"tool_name"`
	RequestID  string            `json:"request_id"`
	ClientID   string            `json:"client_id,omitempty"`
	Arguments  map[string]string `json:"arguments"`
	Text       string            `json:"text"`
	PostedAt   time.Time         `json:"posted_at"`
}

// Post publishes the request to the reviewer queue with both a structured
// payload and a human-readable rendering.
func (c *AMQPChannel) Post(ctx context.Context, req Request) error {
	msg := approvalMessage{
		ApprovalID: req.ID,
		ToolName:   req.ToolName,
		RequestID:  req.RequestID,
		ClientID:   req.ClientID,
		Arguments:  req.Arguments,
		Text:       renderRequest(req),
		PostedAt:   time.Now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return c.ch.PublishWithContext(ctx, "", c.settings.RequestQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Responses streams reviewer verdicts consumed from the decision queue.
func (c *AMQPChannel) Responses() <-chan ReviewerResponse {
	return c.responses
}

// Close shuts down the consumer, channel, and connection.
func (c *AMQPChannel) Close() error {
	if err := c.ch.Close(); err != nil {
		_ = c.conn.Close()
		return err
	}
	return c.conn.Close()
}

func (c *AMQPChannel) consumeDecisions() error {
	deliveries, err := c.ch.Consume(c.settings.DecisionQueue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming decision queue: %w", err)
	}

	go func() {
		defer close(c.responses)
		for delivery := range deliveries {
			var resp ReviewerResponse
			if err := json.Unmarshal(delivery.Body, &resp); err != nil {
				c.logger.Warn("discarding malformed reviewer response", "error", err)
				continue
			}
			if resp.ApprovalID == "" {
				c.logger.Warn("discarding reviewer response without approval_id")
				continue
			}
			c.responses <- resp
		}
	}()
	return nil
}

// renderRequest formats a request the way a reviewer sees it.
func renderRequest(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval required: %s\n", req.ToolName)
	fmt.Fprintf(&b, "approval_id: %s\n", req.ID)
	fmt.Fprintf(&b, "request_id: %s\n", req.RequestID)
	if req.ClientID != "" {
		fmt.Fprintf(&b, "client_id: %s\n", req.ClientID)
	}
	keys := make([]string, 0, len(req.Arguments))
	for k := range req.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s = %s\n", k, req.Arguments[k])
	}
	return b.String()
}
