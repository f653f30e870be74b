package dfdelta

// 订阅指令帧
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

type deltaTickerEvent struct {
	Type        string `json:"type"`
	Symbol      string `json:"symbol"`
	Close       string `json:"close"`
	MarkPrice   string `json:"mark_price"`
	TurnoverUSD string `json:"turnover_usd"`
	Quotes      struct {
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
		BidSize string `json:"bid_size"`
		AskSize string `json:"ask_size"`
	} `json:"quotes"`
	// Timestamp 微秒
	Timestamp int64 `json:"timestamp"`
}

type deltaTradeEvent struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	BuyerRole string `json:"buyer_role"`
	Timestamp int64  `json:"timestamp"`
}

type deltaBookLevel struct {
	LimitPrice string `json:"limit_price"`
	Size       string `json:"size"`
}

// l2_orderbook 全量快照
type deltaBookSnapshotEvent struct {
	Type           string           `json:"type"`
	Symbol         string           `json:"symbol"`
	Buy            []deltaBookLevel `json:"buy"`
	Sell           []deltaBookLevel `json:"sell"`
	LastSequenceNo int64            `json:"last_sequence_no"`
	Timestamp      int64            `json:"timestamp"`
}

// l2_updates 增量
type deltaBookUpdateEvent struct {
	Type       string           `json:"type"`
	Symbol     string           `json:"symbol"`
	Action     string           `json:"action"`
	Bids       []deltaBookLevel `json:"bids"`
	Asks       []deltaBookLevel `json:"asks"`
	SequenceNo int64            `json:"sequence_no"`
	Timestamp  int64            `json:"timestamp"`
}

type deltaMarkPriceEvent struct {
	Type string `json:"type"`
	// Symbol 形如 MARK:BTCUSD
	Symbol     string `json:"symbol"`
	Price      string `json:"price"`
	IndexPrice string `json:"spot_price"`
	Timestamp  int64  `json:"timestamp"`
}

type deltaFundingRateEvent struct {
	Type          string `json:"type"`
	Symbol        string `json:"symbol"`
	FundingRate   string `json:"funding_rate"`
	PredictedRate string `json:"predicted_funding_rate"`
	NextFundingAt int64  `json:"next_funding_realization"`
	Timestamp     int64  `json:"timestamp"`
}

type deltaCandleEvent struct {
	Type       string `json:"type"`
	Symbol     string `json:"symbol"`
	Resolution string `json:"resolution"`
	Open       string `json:"open"`
	High       string `json:"high"`
	Low        string `json:"low"`
	Close      string `json:"close"`
	Volume     string `json:"volume"`
	// CandleStartTime 微秒
	CandleStartTime int64 `json:"candle_start_time"`
	Timestamp       int64 `json:"timestamp"`
}

// REST 历史成交
type deltaTradesResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Trades []deltaHistoryTrade `json:"trades"`
	} `json:"result"`
}

type deltaHistoryTrade struct {
	Price     string `json:"price"`
	Size      string `json:"size"`
	BuyerRole string `json:"buyer_role"`
	Timestamp int64  `json:"timestamp"`
}

// REST 历史K线
type deltaCandlesResponse struct {
	Success bool                 `json:"success"`
	Result  []deltaHistoryCandle `json:"result"`
}

type deltaHistoryCandle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}
