package exchange

import (
	"errors"

	"github.com/shopspring/decimal"
)

// SideType BUY, SELL
type SideType string

// OrderType LIMIT, MARKET
type OrderType string

// ExecutionState NEW, TRADE, CANCELED, REJECTED, EXPIRED
type ExecutionState string

// OrderState 订单生命周期状态
type OrderState string

// PositionSide LONG, SHORT, FLAT
type PositionSide string

// InstrumentType SPOT, FUTURES, PERPETUAL
type InstrumentType string

// TransactionStatus 标的交易状态
type TransactionStatus string

// TimeInForce GTC, IOC, FOK
type TimeInForce string

// Global enums
const (
	DeltaExchange = "DELTA"
	MockExchange  = "MOCK"

	ByMaker = "MAKER"
	ByTaker = "TAKER"

	InstrumentTypeSpot      InstrumentType = "SPOT"
	InstrumentTypeFutures   InstrumentType = "FUTURES"
	InstrumentTypePerpetual InstrumentType = "PERPETUAL"

	TransactionStatusTrading TransactionStatus = "TRANSACTION_TRADING"
	TransactionStatusSuspend TransactionStatus = "TRANSACTION_SUSPEND"
	TransactionStatusClose   TransactionStatus = "TRANSACTION_CLOSE"

	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"

	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"

	ExecutionStateNew      ExecutionState = "NEW"
	ExecutionStateTrade    ExecutionState = "TRADE"
	ExecutionStateCanceled ExecutionState = "CANCELED"
	ExecutionStateRejected ExecutionState = "REJECTED"
	ExecutionStateExpired  ExecutionState = "EXPIRED"

	// OrderStateInitialized 本地创建，尚未提交
	OrderStateInitialized OrderState = "INITIALIZED"
	// OrderStateSubmitted 已发送，等待交易所确认
	OrderStateSubmitted OrderState = "SUBMITTED"
	// OrderStateAccepted 交易所已接受
	OrderStateAccepted        OrderState = "ACCEPTED"
	OrderStatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderStateFilled          OrderState = "FILLED"
	OrderStateCanceled        OrderState = "CANCELED"
	OrderStateRejected        OrderState = "REJECTED"
	OrderStateExpired         OrderState = "EXPIRED"
	// OrderStatePendingUpdate 改单请求在途
	OrderStatePendingUpdate OrderState = "PENDING_UPDATE"
	// OrderStatePendingCancel 撤单请求在途
	OrderStatePendingCancel OrderState = "PENDING_CANCEL"

	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideFlat  PositionSide = "FLAT"

	// Good Till Cancel 成交为止, 一直有效直到被取消
	TimeInForceGTC TimeInForce = "GTC"
	// Immediate or Cancel 无法立即成交(吃单)的部分就撤销
	TimeInForceIOC TimeInForce = "IOC"
	// Fill or Kill 无法全部立即成交就撤销
	TimeInForceFOK TimeInForce = "FOK"
)

var (
	// ErrOrderNotFound 订单未找到
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists 订单已存在
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderIDConflict 交易所订单号已绑定到其它客户端订单
	ErrOrderIDConflict = errors.New("venue order id already bound to a different client order")
	// ErrInvalidTransition 非法的订单状态迁移
	ErrInvalidTransition = errors.New("invalid order state transition")
	// ErrRiskCheckFailed 本地风控校验未通过
	ErrRiskCheckFailed = errors.New("risk check failed")
	// ErrRateLimitExceeded 访问限制
	ErrRateLimitExceeded = errors.New("rate limit exceeded, IP ban imminent")
	// ErrInstrumentNotFound 标的未找到
	ErrInstrumentNotFound = errors.New("instrument not found")
	// ErrNotConnected 连接未就绪
	ErrNotConnected = errors.New("not connected")
)

// IsTerminalOrderState FILLED / CANCELED / REJECTED / EXPIRED 之后不再迁移
func IsTerminalOrderState(s OrderState) bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected, OrderStateExpired:
		return true
	}
	return false
}

type CreateOrderRequest struct {
	OrderTime     int64
	Symbol        string
	ClientOrderID string
	Side          SideType
	OrderType     OrderType
	PositionSide  PositionSide
	TimeInForce   TimeInForce
	Instrument    InstrumentType
	// PostOnly 只挂单，会成为吃单方时撤销
	PostOnly   bool
	ReduceOnly bool
	Size       decimal.Decimal
	Price      decimal.Decimal
}

type CreateOrderResponse struct {
	TransactTime     int64
	Symbol           string
	ClientOrderID    string
	OrderID          string
	Side             SideType
	State            OrderState
	PositionSide     PositionSide
	Price            decimal.Decimal
	OriginalQuantity decimal.Decimal
	ExecutedQuantity decimal.Decimal
}

type ModifyOrderRequest struct {
	ClientOrderID string
	OrderID       string
	Symbol        string
	Size          decimal.Decimal
	Price         decimal.Decimal
}

type CancelOrderRequest struct {
	ClientOrderID string
	OrderID       string
	Symbol        string
}

type CancelAllOrdersRequest struct {
	// Symbol 为空则撤销全部标的的挂单
	Symbol string
}

type QueryOrderRequest struct {
	ClientOrderID string
	OrderID       string
	Symbol        string
}

type Balance struct {
	Asset string
	// Free 可用余额
	Free decimal.Decimal
	// Locked 已冻结
	Locked decimal.Decimal
	// Total 总额
	Total decimal.Decimal
}

type Position struct {
	Symbol       string
	Side         PositionSide
	Instrument   InstrumentType
	Size         decimal.Decimal
	EntryPrice   decimal.Decimal
	MarkPrice    decimal.Decimal
	UnrealizedPL decimal.Decimal
	RealizedPL   decimal.Decimal
	Margin       decimal.Decimal
	UpdatedAt    int64
}

type Order struct {
	Symbol          string
	ClientOrderID   string
	OrderID         string
	Side            SideType
	Type            OrderType
	State           OrderState
	TimeInForce     TimeInForce
	Price           decimal.Decimal
	AvgPrice        decimal.Decimal
	Size            decimal.Decimal
	FilledSize      decimal.Decimal
	CreatedAt       int64
	UpdatedAt       int64
	ReduceOnly      bool
	UnsolicitedFill bool
}

type Fill struct {
	TradeID       string
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          SideType
	Price         decimal.Decimal
	Size          decimal.Decimal
	Fee           decimal.Decimal
	FeeAsset      string
	By            string
	TradedAt      int64
}
