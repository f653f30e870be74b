package streamdelta

// authMessage 私有频道认证帧, signature = HMAC-SHA256(secret, "GET"+timestamp+"/live")
type authMessage struct {
	Type    string      `json:"type"`
	Payload authPayload `json:"payload"`
}

type authPayload struct {
	APIKey    string `json:"api-key"`
	Signature string `json:"signature"`
	Timestamp string `json:"timestamp"`
}

type subscribeMessage struct {
	Type    string           `json:"type"`
	Payload subscribePayload `json:"payload"`
}

type subscribePayload struct {
	Channels []subscribeChannel `json:"channels"`
}

type subscribeChannel struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols,omitempty"`
}

// deltaOrderEvent orders 频道推送
type deltaOrderEvent struct {
	Type           string `json:"type"`
	Action         string `json:"action"`
	Symbol         string `json:"symbol"`
	ProductID      int64  `json:"product_id"`
	OrderID        int64  `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Size           int64  `json:"size"`
	UnfilledSize   int64  `json:"unfilled_size"`
	Side           string `json:"side"`
	OrderType      string `json:"order_type"`
	LimitPrice     string `json:"limit_price"`
	AveragePrice   string `json:"average_fill_price"`
	State          string `json:"state"`
	CancelReason   string `json:"cancellation_reason"`
	TimeInForce    string `json:"time_in_force"`
	ReduceOnly     bool   `json:"reduce_only"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	TimestampMicro int64  `json:"timestamp"`
}

// deltaUserTradeEvent user_trades 频道推送
type deltaUserTradeEvent struct {
	Type           string `json:"type"`
	Symbol         string `json:"symbol"`
	FillID         string `json:"fill_id"`
	OrderID        int64  `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Side           string `json:"side"`
	Size           int64  `json:"size"`
	Price          string `json:"price"`
	Role           string `json:"role"`
	Commission     string `json:"commission"`
	TimestampMicro int64  `json:"timestamp"`
}

// deltaPositionEvent positions 频道推送
type deltaPositionEvent struct {
	Type           string `json:"type"`
	Action         string `json:"action"`
	Symbol         string `json:"symbol"`
	ProductID      int64  `json:"product_id"`
	Size           int64  `json:"size"`
	EntryPrice     string `json:"entry_price"`
	Margin         string `json:"margin"`
	LiquidationPx  string `json:"liquidation_price"`
	RealizedPnl    string `json:"realized_pnl"`
	TimestampMicro int64  `json:"timestamp"`
}

// deltaMarginEvent margins / portfolio_margins 频道推送
type deltaMarginEvent struct {
	Type             string `json:"type"`
	Action           string `json:"action"`
	AssetSymbol      string `json:"asset_symbol"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"available_balance"`
	BlockedMargin    string `json:"blocked_margin"`
	TimestampMicro   int64  `json:"timestamp"`
}

// createOrderBody POST /v2/orders
type createOrderBody struct {
	ProductSymbol string `json:"product_symbol"`
	Size          int64  `json:"size"`
	Side          string `json:"side"`
	OrderType     string `json:"order_type"`
	LimitPrice    string `json:"limit_price,omitempty"`
	TimeInForce   string `json:"time_in_force,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	PostOnly      bool   `json:"post_only,omitempty"`
	ReduceOnly    bool   `json:"reduce_only,omitempty"`
}

// batchCreateBody POST /v2/orders/batch
type batchCreateBody struct {
	ProductSymbol string            `json:"product_symbol"`
	Orders        []createOrderBody `json:"orders"`
}

// modifyOrderBody PUT /v2/orders
type modifyOrderBody struct {
	ID            int64  `json:"id"`
	ProductSymbol string `json:"product_symbol"`
	Size          int64  `json:"size,omitempty"`
	LimitPrice    string `json:"limit_price,omitempty"`
}

// cancelOrderBody DELETE /v2/orders
type cancelOrderBody struct {
	ID            int64  `json:"id"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	ProductSymbol string `json:"product_symbol"`
}

// cancelAllBody DELETE /v2/orders/all
type cancelAllBody struct {
	ProductSymbol string `json:"product_symbol,omitempty"`
	CancelLimit   bool   `json:"cancel_limit_orders,omitempty"`
	CancelStop    bool   `json:"cancel_stop_orders,omitempty"`
}

// batchCancelBody DELETE /v2/orders/batch
type batchCancelBody struct {
	ProductSymbol string            `json:"product_symbol"`
	Orders        []cancelOrderBody `json:"orders"`
}

type deltaOrder struct {
	ID             int64  `json:"id"`
	ProductSymbol  string `json:"product_symbol"`
	ClientOrderID  string `json:"client_order_id"`
	Size           int64  `json:"size"`
	UnfilledSize   int64  `json:"unfilled_size"`
	Side           string `json:"side"`
	OrderType      string `json:"order_type"`
	LimitPrice     string `json:"limit_price"`
	AverageFillPx  string `json:"average_fill_price"`
	State          string `json:"state"`
	TimeInForce    string `json:"time_in_force"`
	ReduceOnly     bool   `json:"reduce_only"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type deltaOrderResponse struct {
	Success bool       `json:"success"`
	Result  deltaOrder `json:"result"`
}

type deltaOrdersResponse struct {
	Success bool         `json:"success"`
	Result  []deltaOrder `json:"result"`
}

type deltaFill struct {
	ID            int64  `json:"id"`
	ProductSymbol string `json:"product_symbol"`
	OrderID       int64  `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Size          int64  `json:"size"`
	Price         string `json:"price"`
	Role          string `json:"role"`
	Commission    string `json:"commission"`
	SettlingAsset string `json:"settling_asset_symbol"`
	CreatedAt     string `json:"created_at"`
}

type deltaFillsResponse struct {
	Success bool        `json:"success"`
	Result  []deltaFill `json:"result"`
}

type deltaPosition struct {
	ProductSymbol string `json:"product_symbol"`
	ProductID     int64  `json:"product_id"`
	Size          int64  `json:"size"`
	EntryPrice    string `json:"entry_price"`
	Margin        string `json:"margin"`
	RealizedPnl   string `json:"realized_pnl"`
	UnrealizedPnl string `json:"unrealized_pnl"`
	LiquidationPx string `json:"liquidation_price"`
	UpdatedAt     string `json:"updated_at"`
}

type deltaPositionsResponse struct {
	Success bool            `json:"success"`
	Result  []deltaPosition `json:"result"`
}

type deltaWalletBalance struct {
	AssetSymbol      string `json:"asset_symbol"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"available_balance"`
	BlockedMargin    string `json:"blocked_margin"`
}

type deltaBalancesResponse struct {
	Success bool                 `json:"success"`
	Result  []deltaWalletBalance `json:"result"`
}
