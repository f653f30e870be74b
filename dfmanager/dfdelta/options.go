package dfdelta

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/go-gotop/deltex/broker"
	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/instrument"
	"github.com/go-gotop/deltex/sampler"
)

type Option func(*options)

// DefaultChannel 连接建立后自动订阅的频道
type DefaultChannel struct {
	Channel string
	Symbols []string
}

type options struct {
	logger   *log.Helper
	testnet  bool
	wsURL    string
	provider instrument.Provider // 可为空, 用于默认频道的标的解析

	symbolFilters        []string
	defaultChannels      []DefaultChannel
	heartbeatInterval    time.Duration
	staleThreshold       time.Duration
	reconnectDelay       time.Duration
	maxReconnectAttempts int

	publisher broker.Publisher

	// newSampler 非空时对逐笔成交做时间窗聚合
	newSampler func() sampler.Sampler

	quoteHandler       func(*exchange.QuoteEvent)
	tradeHandler       func(*exchange.TradeEvent)
	aggTradeHandler    func(*sampler.AggregatedTrade)
	bookHandler        func(*exchange.BookEvent)
	barHandler         func(*exchange.CandleEvent)
	markPriceHandler   func(*exchange.MarkPriceEvent)
	fundingRateHandler func(*exchange.FundingRateEvent)
	errorHandler       func(*exchange.StreamErrorEvent)
}

func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = log.NewHelper(logger)
	}
}

func WithTestnet(testnet bool) Option {
	return func(o *options) {
		o.testnet = testnet
	}
}

// WithWsURL 覆盖默认 websocket 地址, 主要用于测试
func WithWsURL(url string) Option {
	return func(o *options) {
		o.wsURL = url
	}
}

func WithInstrumentProvider(p instrument.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

func WithSymbolFilters(patterns []string) Option {
	return func(o *options) {
		o.symbolFilters = patterns
	}
}

func WithDefaultChannels(channels []DefaultChannel) Option {
	return func(o *options) {
		o.defaultChannels = channels
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
		o.maxReconnectAttempts = n
	}
}

func WithPublisher(p broker.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithTradeSampler 为每个交易对维护独立的聚合窗口
func WithTradeSampler(newSampler func() sampler.Sampler) Option {
	return func(o *options) {
		o.newSampler = newSampler
	}
}

func WithQuoteHandler(h func(*exchange.QuoteEvent)) Option {
	return func(o *options) {
		o.quoteHandler = h
	}
}

func WithTradeHandler(h func(*exchange.TradeEvent)) Option {
	return func(o *options) {
		o.tradeHandler = h
	}
}

func WithAggTradeHandler(h func(*sampler.AggregatedTrade)) Option {
	return func(o *options) {
		o.aggTradeHandler = h
	}
}

func WithBookHandler(h func(*exchange.BookEvent)) Option {
	return func(o *options) {
		o.bookHandler = h
	}
}

func WithBarHandler(h func(*exchange.CandleEvent)) Option {
	return func(o *options) {
		o.barHandler = h
	}
}

func WithMarkPriceHandler(h func(*exchange.MarkPriceEvent)) Option {
	return func(o *options) {
		o.markPriceHandler = h
	}
}

func WithFundingRateHandler(h func(*exchange.FundingRateEvent)) Option {
	return func(o *options) {
		o.fundingRateHandler = h
	}
}

func WithErrorHandler(h func(*exchange.StreamErrorEvent)) Option {
	return func(o *options) {
		o.errorHandler = h
	}
}
