package approvals

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultReviewTimeout bounds how long a write tool invocation waits for a
// human verdict before resolving to Expired.
const DefaultReviewTimeout = 5 * time.Minute

// ReviewerResponse is a reviewer's verdict for a specific approval id.
type ReviewerResponse struct {
	ApprovalID string `json:"approval_id"`
	ReviewerID string `json:"reviewer_id"`
	Approve    bool   `json:"approve"`
}

// Channel is the transport the human-review gate posts requests to and
// receives reviewer responses from.
type Channel interface {
	// Post publishes a human-readable rendering of the request to the
	// reviewer channel.
	Post(ctx context.Context, req Request) error
	// Responses streams reviewer responses. The channel is closed when
	// the transport shuts down.
	Responses() <-chan ReviewerResponse
	Close() error
}

// HumanReviewSettings configures the human-review gate.
type HumanReviewSettings struct {
	// ReviewerIDs is the fixed allow-list of identities whose responses
	// count. Responses from anyone else are ignored, not errors.
	ReviewerIDs []string
	Timeout     time.Duration
}

// HumanReviewer posts each approval request to a reviewer channel and
// suspends the calling task until an authorized reviewer responds or the
// timeout elapses. Concurrent requests are independent: each has its own
// id and its own wait, and a response only ever resolves the matching
// waiter.
type HumanReviewer struct {
	channel   Channel
	reviewers map[string]struct{}
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	waiters map[string]chan Decision

	stopOnce sync.Once
	done     chan struct{}
}

// NewHumanReviewer creates the gate over the given channel.
func NewHumanReviewer(channel Channel, settings HumanReviewSettings, logger *slog.Logger) *HumanReviewer {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = DefaultReviewTimeout
	}
	reviewers := make(map[string]struct{}, len(settings.ReviewerIDs))
	for _, id := range settings.ReviewerIDs {
		reviewers[id] = struct{}{}
	}
	return &HumanReviewer{
		channel:   channel,
		reviewers: reviewers,
		timeout:   timeout,
		logger:    logger,
		waiters:   make(map[string]chan Decision),
		done:      make(chan struct{}),
	}
}

// Start begins dispatching reviewer responses to waiting requests.
func (h *HumanReviewer) Start(ctx context.Context) error {
	go h.dispatch()
	return nil
}

// Stop closes the reviewer channel and ends dispatching. Outstanding
// waits still resolve through their own timeouts.
func (h *HumanReviewer) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		close(h.done)
		err = h.channel.Close()
	})
	return err
}

func (h *HumanReviewer) dispatch() {
	for {
		select {
		case <-h.done:
			return
		case resp, ok := <-h.channel.Responses():
			if !ok {
				return
			}
			h.resolve(resp)
		}
	}
}

// resolve delivers a reviewer response to the matching waiter. Responses
// from identities outside the allow-list are ignored; a response with no
// matching waiter (already timed out or abandoned) is a no-op.
func (h *HumanReviewer) resolve(resp ReviewerResponse) {
	if _, ok := h.reviewers[resp.ReviewerID]; !ok {
		h.logger.Warn("ignoring approval response from unauthorized reviewer",
			"reviewer_id", resp.ReviewerID,
			"approval_id", resp.ApprovalID,
		)
		return
	}

	h.mu.Lock()
	waiter, ok := h.waiters[resp.ApprovalID]
	if ok {
		delete(h.waiters, resp.ApprovalID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	decision := Denied
	if resp.Approve {
		decision = Approved
	}
	waiter <- decision
}

// Require posts the request and blocks until a decision, the timeout, or
// context cancellation. Timeout and cancellation both resolve to Expired;
// the pending waiter is removed either way so nothing leaks.
func (h *HumanReviewer) Require(ctx context.Context, req Request) (Decision, error) {
	waiter := make(chan Decision, 1)

	h.mu.Lock()
	if _, exists := h.waiters[req.ID]; exists {
		h.mu.Unlock()
		return Expired, fmt.Errorf("approval %s already pending", req.ID)
	}
	h.waiters[req.ID] = waiter
	h.mu.Unlock()

	if err := h.channel.Post(ctx, req); err != nil {
		h.removeWaiter(req.ID)
		return Expired, fmt.Errorf("posting approval request: %w", err)
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	select {
	case decision := <-waiter:
		return decision, nil
	case <-timer.C:
		h.removeWaiter(req.ID)
		h.logger.Warn("approval request expired without a reviewer response",
			"tool", req.ToolName,
			"approval_id", req.ID,
			"request_id", req.RequestID,
		)
		return Expired, nil
	case <-ctx.Done():
		h.removeWaiter(req.ID)
		return Expired, ctx.Err()
	}
}

func (h *HumanReviewer) removeWaiter(id string) {
	h.mu.Lock()
	delete(h.waiters, id)
	h.mu.Unlock()
}
