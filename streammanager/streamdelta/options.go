package streamdelta

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"

	"github.com/go-gotop/deltex/broker"
	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/instrument"
)

type options struct {
	logger   log.Logger
	testnet  bool
	wsURL    string
	provider instrument.Provider

	heartbeatInterval time.Duration
	staleThreshold    time.Duration
	reconnectDelay    time.Duration
	maxAttempts       int
	autoReconnect     bool
	wsTimeout         time.Duration

	publisher broker.Publisher
	risk      riskLimits
	// reconcile 建连后是否与交易所核对状态
	reconcile bool

	orderResultHandler func(event *exchange.OrderResultEvent)
	positionHandler    func(event *exchange.PositionEvent)
	marginHandler      func(event *exchange.MarginEvent)
	errorHandler       func(event *exchange.StreamErrorEvent)
}

type Option func(*options)

func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTestnet 使用测试网地址
func WithTestnet() Option {
	return func(o *options) {
		o.testnet = true
	}
}

func WithWsURL(url string) Option {
	return func(o *options) {
		o.wsURL = url
	}
}

// WithInstrumentProvider 注入合约信息, 用于精度取整
func WithInstrumentProvider(p instrument.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) {
		o.heartbeatInterval = d
	}
}

func WithStaleThreshold(d time.Duration) Option {
	return func(o *options) {
		o.staleThreshold = d
	}
}

func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) {
		o.reconnectDelay = d
	}
}

func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) {
		o.maxAttempts = n
	}
}

// WithAutoReconnectDisabled 连接失效时只断开, 不自动重连
func WithAutoReconnectDisabled() Option {
	return func(o *options) {
		o.autoReconnect = false
	}
}

// WithWsTimeout websocket 握手超时
func WithWsTimeout(d time.Duration) Option {
	return func(o *options) {
		o.wsTimeout = d
	}
}

func WithPublisher(p broker.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithMaxOrderSize 单笔下单数量上限
func WithMaxOrderSize(v decimal.Decimal) Option {
	return func(o *options) {
		o.risk.maxOrderSize = v
	}
}

// WithMinOrderSize 单笔下单数量下限
func WithMinOrderSize(v decimal.Decimal) Option {
	return func(o *options) {
		o.risk.minOrderSize = v
	}
}

// WithMaxPositionSize 单标的净持仓绝对值上限
func WithMaxPositionSize(v decimal.Decimal) Option {
	return func(o *options) {
		o.risk.maxPositionSize = v
	}
}

// WithMaxNotional 单笔限价单名义价值上限
func WithMaxNotional(v decimal.Decimal) Option {
	return func(o *options) {
		o.risk.maxNotional = v
	}
}

// WithReconcileDisabled 建连后不做状态核对
func WithReconcileDisabled() Option {
	return func(o *options) {
		o.reconcile = false
	}
}

func WithOrderResultHandler(h func(event *exchange.OrderResultEvent)) Option {
	return func(o *options) {
		o.orderResultHandler = h
	}
}

func WithPositionHandler(h func(event *exchange.PositionEvent)) Option {
	return func(o *options) {
		o.positionHandler = h
	}
}

func WithMarginHandler(h func(event *exchange.MarginEvent)) Option {
	return func(o *options) {
		o.marginHandler = h
	}
}

func WithErrorHandler(h func(event *exchange.StreamErrorEvent)) Option {
	return func(o *options) {
		o.errorHandler = h
	}
}
