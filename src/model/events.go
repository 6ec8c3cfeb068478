package model

// ExecutionEvent is one fill notification from the exchange push feed.
type ExecutionEvent struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"` // Buy / Sell
	OrderID     string  `json:"orderId"`
	OrderLinkID string  `json:"orderLinkId"`
	ExecPrice   float64 `json:"execPrice,string"`
	ExecQty     float64 `json:"execQty,string"`
	ClosedSize  float64 `json:"closedSize,string"`
	ExecType    string  `json:"execType"` // Trade, Funding, ...
	IsMaker     bool    `json:"isMaker"`
}

// OrderEvent is one order status change from the push feed.
type OrderEvent struct {
	Symbol      string `json:"symbol"`
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	OrderStatus string `json:"orderStatus"` // New, Filled, Cancelled, ...
	StopOrder   string `json:"stopOrderType"`
}
