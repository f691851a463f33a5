package approvals

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory reviewer channel for tests.
type fakeChannel struct {
	mu        sync.Mutex
	posted    []Request
	responses chan ReviewerResponse
	postErr   error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{responses: make(chan ReviewerResponse, 8)}
}

func (f *fakeChannel) Post(ctx context.Context, req Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, req)
	return nil
}

func (f *fakeChannel) Responses() <-chan ReviewerResponse { return f.responses }

func (f *fakeChannel) Close() error {
	close(f.responses)
	return nil
}

func (f *fakeChannel) postedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posted)
}

func testRequest(id string) Request {
	return Request{
		ID:        id,
		ToolName:  "place_equity_order",
		RequestID: "req-" + id,
		ClientID:  "client-1",
		Arguments: map[string]string{"symbol": "VTI", "quantity": "10", "instruction": "BUY"},
	}
}

func TestAutoApprover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	gate := NewAutoApprover(logger)

	require.NoError(t, gate.Start(context.Background()))
	defer func() { require.NoError(t, gate.Stop()) }()

	decision, err := gate.Require(context.Background(), testRequest("ap-1"))
	require.NoError(t, err)
	assert.Equal(t, Approved, decision)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "place_equity_order")
	assert.Contains(t, out, "ap-1")
	assert.Contains(t, out, "req-ap-1")
	assert.Contains(t, out, "symbol")
	assert.Contains(t, out, "VTI")

	t.Run("missing client id logs the unknown sentinel", func(t *testing.T) {
		buf.Reset()
		req := testRequest("ap-2")
		req.ClientID = ""
		_, err := gate.Require(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "client_id=unknown")
	})
}

func newTestReviewer(t *testing.T, channel Channel, timeout time.Duration) *HumanReviewer {
	t.Helper()
	gate := NewHumanReviewer(channel, HumanReviewSettings{
		ReviewerIDs: []string{"reviewer-1"},
		Timeout:     timeout,
	}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, gate.Start(context.Background()))
	t.Cleanup(func() { _ = gate.Stop() })
	return gate
}

func TestHumanReviewer_Approve(t *testing.T) {
	channel := newFakeChannel()
	gate := newTestReviewer(t, channel, 5*time.Second)

	go func() {
		// Wait for the request to be posted, then respond.
		for channel.postedCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		channel.responses <- ReviewerResponse{ApprovalID: "ap-1", ReviewerID: "reviewer-1", Approve: true}
	}()

	decision, err := gate.Require(context.Background(), testRequest("ap-1"))
	require.NoError(t, err)
	assert.Equal(t, Approved, decision)
}

func TestHumanReviewer_Deny(t *testing.T) {
	channel := newFakeChannel()
	gate := newTestReviewer(t, channel, 5*time.Second)

	go func() {
		for channel.postedCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		channel.responses <- ReviewerResponse{ApprovalID: "ap-1", ReviewerID: "reviewer-1", Approve: false}
	}()

	decision, err := gate.Require(context.Background(), testRequest("ap-1"))
	require.NoError(t, err)
	assert.Equal(t, Denied, decision)
}

func TestHumanReviewer_Timeout(t *testing.T) {
	channel := newFakeChannel()
	gate := newTestReviewer(t, channel, 20*time.Millisecond)

	decision, err := gate.Require(context.Background(), testRequest("ap-1"))
	require.NoError(t, err)
	assert.Equal(t, Expired, decision)

	gate.mu.Lock()
	n := len(gate.waiters)
	gate.mu.Unlock()
	assert.Zero(t, n, "expired waiter should be removed")
}

func TestHumanReviewer_UnauthorizedReviewerIgnored(t *testing.T) {
	channel := newFakeChannel()
	gate := newTestReviewer(t, channel, 50*time.Millisecond)

	go func() {
		for channel.postedCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		channel.responses <- ReviewerResponse{ApprovalID: "ap-1", ReviewerID: "impostor", Approve: true}
	}()

	// The impostor's approval is ignored; the request resolves by timeout.
	decision, err := gate.Require(context.Background(), testRequest("ap-1"))
	require.NoError(t, err)
	assert.Equal(t, Expired, decision)
}

func TestHumanReviewer_ConcurrentRequestsIndependent(t *testing.T) {
	channel := newFakeChannel()
	gate := newTestReviewer(t, channel, 5*time.Second)

	var wg sync.WaitGroup
	decisions := make(map[string]Decision)
	var mu sync.Mutex

	for _, id := range []string{"ap-1", "ap-2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			decision, err := gate.Require(context.Background(), testRequest(id))
			require.NoError(t, err)
			mu.Lock()
			decisions[id] = decision
			mu.Unlock()
		}(id)
	}

	for channel.postedCount() < 2 {
		time.Sleep(time.Millisecond)
	}
	channel.responses <- ReviewerResponse{ApprovalID: "ap-1", ReviewerID: "reviewer-1", Approve: true}
	channel.responses <- ReviewerResponse{ApprovalID: "ap-2", ReviewerID: "reviewer-1", Approve: false}

	wg.Wait()
	assert.Equal(t, Approved, decisions["ap-1"])
	assert.Equal(t, Denied, decisions["ap-2"])
}

func TestHumanReviewer_CancelledContext(t *testing.T) {
	channel := newFakeChannel()
	gate := newTestReviewer(t, channel, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for channel.postedCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	decision, err := gate.Require(ctx, testRequest("ap-1"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Expired, decision)

	gate.mu.Lock()
	n := len(gate.waiters)
	gate.mu.Unlock()
	assert.Zero(t, n, "abandoned waiter should be removed")
}

func TestHumanReviewer_LateResponseIsNoOp(t *testing.T) {
	channel := newFakeChannel()
	gate := newTestReviewer(t, channel, 10*time.Millisecond)

	decision, err := gate.Require(context.Background(), testRequest("ap-1"))
	require.NoError(t, err)
	assert.Equal(t, Expired, decision)

	// A response arriving after the timeout must not panic or resolve
	// anything.
	channel.responses <- ReviewerResponse{ApprovalID: "ap-1", ReviewerID: "reviewer-1", Approve: true}
	time.Sleep(10 * time.Millisecond)
}

func TestRenderRequest(t *testing.T) {
	text := renderRequest(testRequest("ap-1"))
	assert.Contains(t, text, "place_equity_order")
	assert.Contains(t, text, "approval_id: ap-1")
	assert.Contains(t, text, "symbol = VTI")
}
