package dfdelta

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/limiter/dxlimiter"
	"github.com/go-gotop/deltex/requests/dehttp"
	"github.com/go-gotop/deltex/sampler"
	"github.com/go-gotop/deltex/sampler/bytime"
	"github.com/go-gotop/deltex/subscription"
	"github.com/go-gotop/deltex/wsmanager"
)

// fakeManager 记录写出的帧, 不做真实连接
type fakeManager struct {
	mux       sync.Mutex
	connected bool
	written   [][]byte
	stats     wsmanager.Stats
}

func (f *fakeManager) Connect(ctx context.Context) error {
	f.connected = true
	return nil
}

func (f *fakeManager) Disconnect() error {
	f.connected = false
	return nil
}

func (f *fakeManager) Reset() error { return nil }

func (f *fakeManager) State() wsmanager.ConnectionState {
	if f.connected {
		return wsmanager.Connected
	}
	return wsmanager.Disconnected
}

func (f *fakeManager) IsConnected() bool { return f.connected }
func (f *fakeManager) Epoch() uint64     { return 1 }

func (f *fakeManager) WriteMessage(messageType int, data []byte) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeManager) SignalReconnect()       {}
func (f *fakeManager) Stats() wsmanager.Stats { return f.stats }

func (f *fakeManager) frames() []string {
	f.mux.Lock()
	defer f.mux.Unlock()
	out := make([]string, 0, len(f.written))
	for _, w := range f.written {
		out = append(out, string(w))
	}
	return out
}

func newTestFeed(t *testing.T, opts ...Option) (*df, *fakeManager) {
	t.Helper()
	feed := NewDeltaDataFeed(dehttp.NewClient(), dxlimiter.NewDeltaLimiter(), opts...)
	d, ok := feed.(*df)
	require.True(t, ok)
	fm := &fakeManager{connected: true}
	d.mgr = fm
	return d, fm
}

var btc = exchange.NewInstrumentID("BTCUSD", exchange.DeltaExchange)

func TestSubscribeQuotes(t *testing.T) {
	d, fm := newTestFeed(t)

	require.NoError(t, d.SubscribeQuotes(context.Background(), btc))
	assert.True(t, d.registry.Has(subscription.KindQuote, btc))
	assert.Equal(t, uint64(1), d.Stats().Subscriptions)

	frames := fm.frames()
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0], `"v2/ticker"`)
	assert.Contains(t, frames[0], `"BTCUSD"`)

	// 重复订阅不再发帧
	require.NoError(t, d.SubscribeQuotes(context.Background(), btc))
	assert.Len(t, fm.frames(), 1)
}

func TestSubscribeNotConnected(t *testing.T) {
	d, fm := newTestFeed(t)
	fm.connected = false

	err := d.SubscribeQuotes(context.Background(), btc)
	assert.ErrorIs(t, err, exchange.ErrNotConnected)
}

// 被过滤器排除的交易对静默跳过
func TestSubscribeFiltered(t *testing.T) {
	d, fm := newTestFeed(t, WithSymbolFilters([]string{"BTC*", "ETH*"}))

	ada := exchange.NewInstrumentID("ADAUSD", exchange.DeltaExchange)
	require.NoError(t, d.SubscribeQuotes(context.Background(), ada))
	assert.False(t, d.registry.Has(subscription.KindQuote, ada))
	assert.Empty(t, fm.frames())

	require.NoError(t, d.SubscribeQuotes(context.Background(), btc))
	assert.Len(t, fm.frames(), 1)
}

func TestUnsubscribeQuotes(t *testing.T) {
	d, fm := newTestFeed(t)

	require.NoError(t, d.SubscribeQuotes(context.Background(), btc))
	require.NoError(t, d.UnsubscribeQuotes(context.Background(), btc))

	assert.False(t, d.registry.Has(subscription.KindQuote, btc))
	assert.Equal(t, uint64(1), d.Stats().Unsubscriptions)

	frames := fm.frames()
	require.Len(t, frames, 2)
	assert.Contains(t, frames[1], `"unsubscribe"`)

	// 未订阅的退订是空操作
	require.NoError(t, d.UnsubscribeQuotes(context.Background(), btc))
	assert.Len(t, fm.frames(), 2)
}

func TestSubscribeBarsSymbolFormat(t *testing.T) {
	d, fm := newTestFeed(t)

	require.NoError(t, d.SubscribeBars(context.Background(), btc, 60))
	frames := fm.frames()
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0], `"BTCUSD:1m"`)
}

func TestSubscribeMarkPriceSymbolFormat(t *testing.T) {
	d, fm := newTestFeed(t)

	require.NoError(t, d.SubscribeMarkPrice(context.Background(), btc))
	frames := fm.frames()
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0], `"MARK:BTCUSD"`)
}

func TestRouteQuote(t *testing.T) {
	var got *exchange.QuoteEvent
	d, _ := newTestFeed(t, WithQuoteHandler(func(q *exchange.QuoteEvent) {
		got = q
	}))

	require.NoError(t, d.SubscribeQuotes(context.Background(), btc))

	d.route(1, []byte(`{
		"type": "v2/ticker",
		"symbol": "BTCUSD",
		"mark_price": "50001.5",
		"turnover_usd": "123456.78",
		"quotes": {"best_bid": "50000.0", "best_ask": "50000.5", "bid_size": "10", "ask_size": "20"},
		"timestamp": 1700000000000000
	}`))

	require.NotNil(t, got)
	assert.Equal(t, "BTCUSD", got.Symbol)
	assert.Equal(t, "50000", got.BidPrice.String())
	assert.Equal(t, "50000.5", got.AskPrice.String())
	assert.Equal(t, "50001.5", got.MarkPrice.String())
	assert.Equal(t, int64(1700000000000), got.QuotedAt)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.MessagesReceived)
	assert.Equal(t, uint64(1), stats.MessagesProcessed)
	assert.Equal(t, uint64(0), stats.Errors)
}

// 解析失败只计数, 不中断后续处理
func TestRouteMalformed(t *testing.T) {
	var got *exchange.TradeEvent
	d, _ := newTestFeed(t, WithTradeHandler(func(te *exchange.TradeEvent) {
		got = te
	}))
	require.NoError(t, d.SubscribeTrades(context.Background(), btc))

	d.route(1, []byte(`{not-json`))
	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.MessagesReceived)
	assert.Equal(t, uint64(1), stats.Errors)

	d.route(1, []byte(`{
		"type": "all_trades",
		"symbol": "BTCUSD",
		"price": "50000",
		"size": "2",
		"buyer_role": "taker",
		"timestamp": 1700000000000000
	}`))
	require.NotNil(t, got)
	assert.Equal(t, exchange.SideTypeBuy, got.Side)
	assert.Equal(t, "2", got.Size.String())
	assert.Equal(t, uint64(1), d.Stats().MessagesProcessed)
}

func TestRouteUnknownTag(t *testing.T) {
	d, _ := newTestFeed(t)

	d.route(1, []byte(`{"type": "mystery_channel"}`))
	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.MessagesReceived)
	assert.Equal(t, uint64(0), stats.MessagesProcessed)
	assert.Equal(t, uint64(0), stats.Errors)
}

// 未订阅交易对的消息静默丢弃
func TestRouteUnsubscribedSymbol(t *testing.T) {
	called := false
	d, _ := newTestFeed(t, WithTradeHandler(func(*exchange.TradeEvent) {
		called = true
	}))

	d.route(1, []byte(`{
		"type": "all_trades",
		"symbol": "ETHUSD",
		"price": "3000",
		"size": "1",
		"buyer_role": "taker",
		"timestamp": 1700000000000000
	}`))
	assert.False(t, called)
	assert.Equal(t, uint64(0), d.Stats().MessagesProcessed)
}

func TestRouteCandle(t *testing.T) {
	var got *exchange.CandleEvent
	d, _ := newTestFeed(t, WithBarHandler(func(c *exchange.CandleEvent) {
		got = c
	}))
	require.NoError(t, d.SubscribeBars(context.Background(), btc, 60))

	d.route(1, []byte(`{
		"type": "candlesticks",
		"symbol": "BTCUSD:1m",
		"resolution": "1m",
		"open": "50000", "high": "50100", "low": "49900", "close": "50050",
		"volume": "12",
		"candle_start_time": 1700000000000000
	}`))

	require.NotNil(t, got)
	assert.Equal(t, "BTCUSD", got.Symbol)
	assert.Equal(t, "1m", got.Resolution)
	assert.Equal(t, "50050", got.Close.String())
}

func TestRouteMarkPriceStripsPrefix(t *testing.T) {
	var got *exchange.MarkPriceEvent
	d, _ := newTestFeed(t, WithMarkPriceHandler(func(m *exchange.MarkPriceEvent) {
		got = m
	}))
	require.NoError(t, d.SubscribeMarkPrice(context.Background(), btc))

	d.route(1, []byte(`{
		"type": "mark_price",
		"symbol": "MARK:BTCUSD",
		"price": "50001.5",
		"timestamp": 1700000000000000
	}`))

	require.NotNil(t, got)
	assert.Equal(t, "BTCUSD", got.Symbol)
}

func TestDisconnectClearsSubscriptions(t *testing.T) {
	d, _ := newTestFeed(t)

	require.NoError(t, d.SubscribeQuotes(context.Background(), btc))
	require.NoError(t, d.SubscribeTrades(context.Background(), btc))
	assert.Equal(t, 2, d.registry.Len())

	require.NoError(t, d.Disconnect())
	assert.Equal(t, 0, d.registry.Len())
}

func TestResubscribeAllSkipsFiltered(t *testing.T) {
	d, fm := newTestFeed(t)

	eth := exchange.NewInstrumentID("ETHUSD", exchange.DeltaExchange)
	require.NoError(t, d.SubscribeQuotes(context.Background(), btc))
	require.NoError(t, d.SubscribeQuotes(context.Background(), eth))

	// 收紧过滤器后重放订阅
	d.filter = subscription.NewFilter([]string{"BTC*"})
	require.NoError(t, d.resubscribeAll())

	frames := fm.frames()
	last := frames[len(frames)-1]
	assert.Contains(t, last, "BTCUSD")
	assert.NotContains(t, last, "ETHUSD")
	assert.False(t, d.registry.Has(subscription.KindQuote, eth))
}

func TestTradeSampler(t *testing.T) {
	var aggs []*sampler.AggregatedTrade
	d, _ := newTestFeed(t,
		WithTradeSampler(func() sampler.Sampler { return bytime.NewByTime(1000) }),
		WithAggTradeHandler(func(a *sampler.AggregatedTrade) {
			aggs = append(aggs, a)
		}),
	)
	require.NoError(t, d.SubscribeTrades(context.Background(), btc))

	// 两笔同桶, 第三笔跨桶触发聚合输出
	d.route(1, []byte(`{"type":"all_trades","symbol":"BTCUSD","price":"100","size":"1","buyer_role":"taker","timestamp":1700000000100000}`))
	d.route(1, []byte(`{"type":"all_trades","symbol":"BTCUSD","price":"105","size":"1","buyer_role":"maker","timestamp":1700000000200000}`))
	d.route(1, []byte(`{"type":"all_trades","symbol":"BTCUSD","price":"101","size":"1","buyer_role":"taker","timestamp":1700000001500000}`))

	require.Len(t, aggs, 1)
	assert.Equal(t, "BTCUSD", aggs[0].Symbol)
	assert.Equal(t, uint64(1), aggs[0].BuyCount)
	assert.Equal(t, uint64(1), aggs[0].SellCount)
}
