package exchange

import (
	"github.com/shopspring/decimal"
)

type QuoteEvent struct {
	// Symbol 交易对
	Symbol   string
	Exchange string
	// BidPrice 买一价
	BidPrice decimal.Decimal
	// BidSize 买一量
	BidSize decimal.Decimal
	// AskPrice 卖一价
	AskPrice decimal.Decimal
	// AskSize 卖一量
	AskSize decimal.Decimal
	// MarkPrice 标记价格
	MarkPrice decimal.Decimal
	// Turnover24h 24小时成交额
	Turnover24h decimal.Decimal
	QuotedAt    int64
}

type TradeEvent struct {
	TradedAt   int64
	TradeID    string
	Symbol     string
	Exchange   string
	Size       decimal.Decimal
	Price      decimal.Decimal
	Side       SideType
	Instrument InstrumentType
}

type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

type BookEvent struct {
	Symbol   string
	Exchange string
	// Snapshot true 为全量快照，false 为增量
	Snapshot bool
	// Sequence 交易所簿序号，用于增量对齐
	Sequence  int64
	Bids      []BookLevel
	Asks      []BookLevel
	UpdatedAt int64
}

type MarkPriceEvent struct {
	Symbol    string
	Exchange  string
	MarkPrice decimal.Decimal
	// IndexPrice 指数价格
	IndexPrice decimal.Decimal
	UpdatedAt  int64
}

type FundingRateEvent struct {
	Symbol   string
	Exchange string
	// FundingRate 当期资金费率
	FundingRate decimal.Decimal
	// PredictedRate 预测下期费率
	PredictedRate decimal.Decimal
	// NextFundingAt 下次结算时间
	NextFundingAt int64
	UpdatedAt     int64
}

type CandleEvent struct {
	Symbol   string
	Exchange string
	// Resolution 周期: 1m, 5m, 15m, 1h, 4h, 1d, 1w
	Resolution string
	OpenedAt   int64
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	// Closed K线是否封闭
	Closed bool
}

type OrderResultEvent struct {
	// AccountID 账户ID
	AccountID string
	// Exchange 交易所
	Exchange string
	// ClientOrderID 自定义客户端订单号
	ClientOrderID string
	// Symbol 交易对
	Symbol string
	// OrderID 交易所订单号
	OrderID string
	// FeeAsset 手续费资产
	FeeAsset string
	// TransactionTime 交易时间
	TransactionTime int64
	// By 是否是挂单方 MAKER, TAKER
	By string
	// Instrument 种类 SPOT, FUTURES, PERPETUAL
	Instrument InstrumentType
	// ExecutionType 本次订单执行类型: NEW, TRADE, CANCELED, REJECTED, EXPIRED
	ExecutionType ExecutionState
	// State 当前订单状态
	State OrderState
	// PositionSide LONG, SHORT
	PositionSide PositionSide
	// Side BUY, SELL
	Side SideType
	// Type LIMIT, MARKET
	Type OrderType
	// Volume 原交易数量
	Volume decimal.Decimal
	// Price 交易价格
	Price decimal.Decimal
	// LatestVolume 最新交易数量
	LatestVolume decimal.Decimal
	// FilledVolume 已成交数量
	FilledVolume decimal.Decimal
	// LatestPrice 最新交易价格
	LatestPrice decimal.Decimal
	// FeeCost 手续费
	FeeCost decimal.Decimal
	// AvgPrice 平均成交价格
	AvgPrice decimal.Decimal
	// RejectReason 拒绝原因, 仅 REJECTED 时有值
	RejectReason string
}

type PositionEvent struct {
	AccountID string
	Exchange  string
	Symbol    string
	Side      PositionSide
	// Size 当前持仓数量
	Size decimal.Decimal
	// EntryPrice 开仓均价
	EntryPrice decimal.Decimal
	// RealizedPL 已实现盈亏
	RealizedPL decimal.Decimal
	// UnrealizedPL 未实现盈亏
	UnrealizedPL decimal.Decimal
	Margin       decimal.Decimal
	UpdatedAt    int64
}

type MarginEvent struct {
	AccountID string
	Exchange  string
	Asset     string
	// Balance 余额
	Balance decimal.Decimal
	// Available 可用
	Available decimal.Decimal
	// OrderMargin 委托占用保证金
	OrderMargin decimal.Decimal
	// PositionMargin 仓位占用保证金
	PositionMargin decimal.Decimal
	UpdatedAt      int64
}

type AccountUpdateEvent struct {
	AccountID string
	Exchange  string
	Balances  []Balance
	UpdatedAt int64
}

type StreamErrorEvent struct {
	Exchange string
	// Channel 出错的频道，可为空
	Channel string
	Message string
	// Fatal 是否导致连接进入故障态
	Fatal      bool
	OccurredAt int64
}
