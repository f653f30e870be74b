package dfmanager

import (
	"context"

	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/wsmanager"
)

// Stats 数据客户端计数快照
type Stats struct {
	MessagesReceived   uint64
	MessagesProcessed  uint64
	ConnectionAttempts uint64
	Reconnections      uint64
	Errors             uint64
	Subscriptions      uint64
	Unsubscriptions    uint64
}

// DataFeedManager 行情数据客户端: 连接管理、按种类订阅、历史查询
type DataFeedManager interface {
	Name() string

	Connect(ctx context.Context) error
	Disconnect() error
	// Reset 清零计数, FAULTED 后恢复的唯一途径
	Reset() error
	State() wsmanager.ConnectionState

	SubscribeQuotes(ctx context.Context, id exchange.InstrumentID) error
	UnsubscribeQuotes(ctx context.Context, id exchange.InstrumentID) error
	SubscribeTrades(ctx context.Context, id exchange.InstrumentID) error
	UnsubscribeTrades(ctx context.Context, id exchange.InstrumentID) error
	SubscribeBook(ctx context.Context, id exchange.InstrumentID) error
	UnsubscribeBook(ctx context.Context, id exchange.InstrumentID) error
	// SubscribeBars resolutionSecs 为 K 线周期秒数
	SubscribeBars(ctx context.Context, id exchange.InstrumentID, resolutionSecs int64) error
	UnsubscribeBars(ctx context.Context, id exchange.InstrumentID) error
	SubscribeMarkPrice(ctx context.Context, id exchange.InstrumentID) error
	UnsubscribeMarkPrice(ctx context.Context, id exchange.InstrumentID) error
	SubscribeFundingRate(ctx context.Context, id exchange.InstrumentID) error
	UnsubscribeFundingRate(ctx context.Context, id exchange.InstrumentID) error

	// RequestTrades 历史成交, limit 超过交易所单页上限时截断
	RequestTrades(ctx context.Context, id exchange.InstrumentID, limit int) ([]*exchange.TradeEvent, error)
	// RequestCandles 历史K线
	RequestCandles(ctx context.Context, id exchange.InstrumentID, resolutionSecs, start, end int64, limit int) ([]*exchange.CandleEvent, error)

	Stats() Stats
}
