package broker

import (
	"context"
	"errors"
)

// ErrNotReady is returned by every call on a NotReadyClient. It lets the
// server start and serve OAuth endpoints before an upstream brokerage
// credential is available, with the failure surfacing explicitly at the
// call boundary.
var ErrNotReady = errors.New(
	"brokerage client is not initialized: the broker token may be missing or expired; " +
		"re-authenticate with the brokerage first")

// NotReadyClient is the explicit uninitialized state of the brokerage
// boundary.
type NotReadyClient struct{}

func (NotReadyClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	return nil, ErrNotReady
}

func (NotReadyClient) GetAccounts(ctx context.Context) ([]Account, error) {
	return nil, ErrNotReady
}

func (NotReadyClient) GetOrder(ctx context.Context, accountHash, orderID string) (*Order, error) {
	return nil, ErrNotReady
}

func (NotReadyClient) GetOrders(ctx context.Context, query OrdersQuery) ([]Order, error) {
	return nil, ErrNotReady
}

func (NotReadyClient) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	return nil, ErrNotReady
}

func (NotReadyClient) CancelOrder(ctx context.Context, accountHash, orderID string) error {
	return ErrNotReady
}
