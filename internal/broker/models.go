package broker

import "time"

// Quote is a market data snapshot for one symbol.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Bid           float64 `json:"bidPrice"`
	Ask           float64 `json:"askPrice"`
	Last          float64 `json:"lastPrice"`
	Volume        int64   `json:"totalVolume"`
	NetChange     float64 `json:"netChange"`
	QuoteTimeMs   int64   `json:"quoteTime"`
}

// Account summarizes one brokerage account.
type Account struct {
	AccountHash string  `json:"accountHash"`
	Type        string  `json:"type"`
	CashBalance float64 `json:"cashBalance"`
	Equity      float64 `json:"equity"`
}

// OrderRequest describes an equity order to place.
type OrderRequest struct {
	AccountHash string  `json:"accountHash"`
	Symbol      string  `json:"symbol"`
	Quantity    int     `json:"quantity"`
	Instruction string  `json:"instruction"` // BUY or SELL
	OrderType   string  `json:"orderType"`   // MARKET, LIMIT, STOP, STOP_LIMIT
	Price       float64 `json:"price,omitempty"`
	StopPrice   float64 `json:"stopPrice,omitempty"`
	Session     string  `json:"session,omitempty"`  // NORMAL, AM, PM, SEAMLESS
	Duration    string  `json:"duration,omitempty"` // DAY, GOOD_TILL_CANCEL, FILL_OR_KILL
}

// Order is a brokerage order record.
type Order struct {
	OrderID     string    `json:"orderId"`
	AccountHash string    `json:"accountHash"`
	Symbol      string    `json:"symbol"`
	Quantity    int       `json:"quantity"`
	Instruction string    `json:"instruction"`
	OrderType   string    `json:"orderType"`
	Status      string    `json:"status"`
	Price       float64   `json:"price,omitempty"`
	EnteredAt   time.Time `json:"enteredTime"`
}

// OrdersQuery filters an order history listing.
type OrdersQuery struct {
	AccountHash string
	MaxResults  int
	FromDate    string // YYYY-MM-DD
	ToDate      string // YYYY-MM-DD
	Status      string
}
