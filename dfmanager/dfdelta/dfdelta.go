package dfdelta

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/go-gotop/deltex/dfmanager"
	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/limiter"
	"github.com/go-gotop/deltex/requests/dehttp"
	"github.com/go-gotop/deltex/sampler"
	"github.com/go-gotop/deltex/subscription"
	"github.com/go-gotop/deltex/websocket"
	"github.com/go-gotop/deltex/wsmanager"
	"github.com/go-gotop/deltex/wsmanager/manager"
)

const (
	WsMainURL    = "wss://socket.india.delta.exchange"
	WsTestnetURL = "wss://socket-ind.testnet.deltaex.org"

	channelTicker       = "v2/ticker"
	channelTrades       = "all_trades"
	channelBookSnapshot = "l2_orderbook"
	channelBookUpdates  = "l2_updates"
	channelMarkPrice    = "mark_price"
	channelFundingRate  = "funding_rate"
	channelCandles      = "candlesticks"

	// markSymbolPrefix 标记价格频道的交易对前缀
	markSymbolPrefix = "MARK:"

	maxTradesPageSize  = 1000
	maxCandlesPageSize = 2000
)

var _ dfmanager.DataFeedManager = (*df)(nil)

type df struct {
	opts    *options
	logger  *log.Helper
	client  *dehttp.Client
	limiter limiter.Limiter

	registry *subscription.Registry
	filter   *subscription.Filter
	mgr      wsmanager.ConnectionManager

	received        atomic.Uint64
	processed       atomic.Uint64
	errCount        atomic.Uint64
	subscriptions   atomic.Uint64
	unsubscriptions atomic.Uint64

	samplerMux sync.Mutex
	samplers   map[string]sampler.Sampler
}

func NewDeltaDataFeed(client *dehttp.Client, lim limiter.Limiter, opts ...Option) dfmanager.DataFeedManager {
	o := &options{
		logger:               log.NewHelper(log.DefaultLogger),
		heartbeatInterval:    30 * time.Second,
		staleThreshold:       60 * time.Second,
		reconnectDelay:       5 * time.Second,
		maxReconnectAttempts: 10,
	}
	for _, opt := range opts {
		opt(o)
	}

	wsURL := o.wsURL
	if wsURL == "" {
		wsURL = WsMainURL
		if o.testnet {
			wsURL = WsTestnetURL
		}
	}

	d := &df{
		opts:     o,
		logger:   o.logger,
		client:   client,
		limiter:  lim,
		registry: subscription.NewRegistry(),
		filter:   subscription.NewFilter(o.symbolFilters),
		samplers: make(map[string]sampler.Sampler),
	}

	d.mgr = manager.NewManager(
		manager.WithLogger(log.DefaultLogger),
		manager.WithEndpoint(wsURL),
		manager.WithHeartbeatInterval(o.heartbeatInterval),
		manager.WithStaleThreshold(o.staleThreshold),
		manager.WithReconnectDelay(o.reconnectDelay),
		manager.WithMaxReconnectAttempts(o.maxReconnectAttempts),
		manager.WithConnLimiter(lim),
		manager.WithOnMessage(d.route),
		manager.WithOnEstablished(d.onEstablished),
	)
	return d
}

func (d *df) Name() string {
	return exchange.DeltaExchange
}

func (d *df) Connect(ctx context.Context) error {
	return d.mgr.Connect(ctx)
}

// Disconnect 断开并清空全部订阅状态
func (d *df) Disconnect() error {
	err := d.mgr.Disconnect()
	d.registry.Clear()
	return err
}

func (d *df) Reset() error {
	if err := d.mgr.Reset(); err != nil {
		return err
	}
	d.received.Store(0)
	d.processed.Store(0)
	d.errCount.Store(0)
	d.subscriptions.Store(0)
	d.unsubscriptions.Store(0)
	return nil
}

func (d *df) State() wsmanager.ConnectionState {
	return d.mgr.State()
}

func (d *df) SubscribeQuotes(ctx context.Context, id exchange.InstrumentID) error {
	return d.subscribe(subscription.KindQuote, id, channelTicker, "")
}

func (d *df) UnsubscribeQuotes(ctx context.Context, id exchange.InstrumentID) error {
	return d.unsubscribe(subscription.KindQuote, id, channelTicker)
}

func (d *df) SubscribeTrades(ctx context.Context, id exchange.InstrumentID) error {
	return d.subscribe(subscription.KindTrade, id, channelTrades, "")
}

func (d *df) UnsubscribeTrades(ctx context.Context, id exchange.InstrumentID) error {
	return d.unsubscribe(subscription.KindTrade, id, channelTrades)
}

func (d *df) SubscribeBook(ctx context.Context, id exchange.InstrumentID) error {
	return d.subscribe(subscription.KindBook, id, channelBookUpdates, "")
}

func (d *df) UnsubscribeBook(ctx context.Context, id exchange.InstrumentID) error {
	return d.unsubscribe(subscription.KindBook, id, channelBookUpdates)
}

func (d *df) SubscribeBars(ctx context.Context, id exchange.InstrumentID, resolutionSecs int64) error {
	return d.subscribe(subscription.KindBar, id, channelCandles, exchange.BarResolution(resolutionSecs))
}

func (d *df) UnsubscribeBars(ctx context.Context, id exchange.InstrumentID) error {
	return d.unsubscribe(subscription.KindBar, id, channelCandles)
}

func (d *df) SubscribeMarkPrice(ctx context.Context, id exchange.InstrumentID) error {
	return d.subscribe(subscription.KindMarkPrice, id, channelMarkPrice, "")
}

func (d *df) UnsubscribeMarkPrice(ctx context.Context, id exchange.InstrumentID) error {
	return d.unsubscribe(subscription.KindMarkPrice, id, channelMarkPrice)
}

func (d *df) SubscribeFundingRate(ctx context.Context, id exchange.InstrumentID) error {
	return d.subscribe(subscription.KindFundingRate, id, channelFundingRate, "")
}

func (d *df) UnsubscribeFundingRate(ctx context.Context, id exchange.InstrumentID) error {
	return d.unsubscribe(subscription.KindFundingRate, id, channelFundingRate)
}

func (d *df) Stats() dfmanager.Stats {
	connStats := d.mgr.Stats()
	return dfmanager.Stats{
		MessagesReceived:   d.received.Load(),
		MessagesProcessed:  d.processed.Load(),
		ConnectionAttempts: connStats.ConnectionAttempts,
		Reconnections:      connStats.Reconnections,
		Errors:             d.errCount.Load(),
		Subscriptions:      d.subscriptions.Load(),
		Unsubscriptions:    d.unsubscriptions.Load(),
	}
}

func (d *df) rawSymbol(id exchange.InstrumentID) string {
	if d.opts.provider != nil {
		if inst, ok := d.opts.provider.Get(id); ok {
			return inst.RawSymbol
		}
	}
	return id.Symbol
}

func (d *df) subscribe(kind subscription.Kind, id exchange.InstrumentID, channel, resolution string) error {
	if !d.mgr.IsConnected() {
		return exchange.ErrNotConnected
	}
	raw := d.rawSymbol(id)
	if !d.filter.Match(raw) {
		d.logger.Debugf("symbol %s filtered, skip %s subscribe", raw, kind)
		return nil
	}
	if !d.registry.Add(kind, id, raw, resolution) {
		// 已订阅
		return nil
	}
	if err := d.sendChannelOp("subscribe", channel, []string{channelSymbol(channel, raw, resolution)}); err != nil {
		d.registry.Remove(kind, id)
		return err
	}
	d.subscriptions.Add(1)
	return nil
}

func (d *df) unsubscribe(kind subscription.Kind, id exchange.InstrumentID, channel string) error {
	if !d.mgr.IsConnected() {
		return exchange.ErrNotConnected
	}
	e, ok := d.registry.Get(kind, id)
	if !ok {
		return nil
	}
	if !d.registry.Remove(kind, id) {
		return nil
	}
	if err := d.sendChannelOp("unsubscribe", channel, []string{channelSymbol(channel, e.Symbol, e.Resolution)}); err != nil {
		return err
	}
	d.unsubscriptions.Add(1)
	return nil
}

// channelSymbol 各频道的交易对参数格式
func channelSymbol(channel, raw, resolution string) string {
	switch channel {
	case channelMarkPrice:
		return markSymbolPrefix + raw
	case channelCandles:
		return fmt.Sprintf("%s:%s", raw, resolution)
	}
	return raw
}

func (d *df) sendChannelOp(op, channel string, symbols []string) error {
	msg := subscribeMessage{
		Type: op,
		Payload: subscribePayload{
			Channels: []subscribeChannel{
				{Name: channel, Symbols: symbols},
			},
		},
	}
	data, err := dehttp.Json.Marshal(msg)
	if err != nil {
		return err
	}
	return d.mgr.WriteMessage(websocket.TextMessage, data)
}

func (d *df) onEstablished(ctx context.Context, reconnected bool) error {
	if reconnected {
		return d.resubscribeAll()
	}
	return d.subscribeDefaults(ctx)
}

// resubscribeAll 按频道批量重放订阅, 被过滤器排除的交易对跳过
func (d *df) resubscribeAll() error {
	byChannel := make(map[string][]string)
	for _, e := range d.registry.All() {
		if !d.filter.Match(e.Symbol) {
			d.logger.Debugf("symbol %s now filtered, not resubscribed", e.Symbol)
			d.registry.Remove(e.Kind, e.ID)
			continue
		}
		ch := kindChannel(e.Kind)
		byChannel[ch] = append(byChannel[ch], channelSymbol(ch, e.Symbol, e.Resolution))
	}
	for ch, symbols := range byChannel {
		if err := d.sendChannelOp("subscribe", ch, symbols); err != nil {
			return err
		}
	}
	return nil
}

func (d *df) subscribeDefaults(ctx context.Context) error {
	for _, dc := range d.opts.defaultChannels {
		kind, ok := channelKind(dc.Channel)
		if !ok {
			d.logger.Warnf("unknown default channel %s", dc.Channel)
			continue
		}
		for _, symbol := range dc.Symbols {
			id := d.resolveSymbol(symbol)
			var err error
			switch kind {
			case subscription.KindBar:
				err = d.SubscribeBars(ctx, id, 3600)
			case subscription.KindQuote:
				err = d.SubscribeQuotes(ctx, id)
			case subscription.KindTrade:
				err = d.SubscribeTrades(ctx, id)
			case subscription.KindBook:
				err = d.SubscribeBook(ctx, id)
			case subscription.KindMarkPrice:
				err = d.SubscribeMarkPrice(ctx, id)
			case subscription.KindFundingRate:
				err = d.SubscribeFundingRate(ctx, id)
			}
			if err != nil {
				d.logger.Warnf("default channel %s subscribe %s failed: %v", dc.Channel, symbol, err)
			}
		}
	}
	return nil
}

func (d *df) resolveSymbol(raw string) exchange.InstrumentID {
	if d.opts.provider != nil {
		if inst, ok := d.opts.provider.GetByRawSymbol(raw); ok {
			return inst.ID
		}
	}
	return exchange.NewInstrumentID(raw, exchange.DeltaExchange)
}

func kindChannel(kind subscription.Kind) string {
	switch kind {
	case subscription.KindQuote:
		return channelTicker
	case subscription.KindTrade:
		return channelTrades
	case subscription.KindBook:
		return channelBookUpdates
	case subscription.KindBar:
		return channelCandles
	case subscription.KindMarkPrice:
		return channelMarkPrice
	case subscription.KindFundingRate:
		return channelFundingRate
	}
	return ""
}

func channelKind(channel string) (subscription.Kind, bool) {
	switch channel {
	case channelTicker:
		return subscription.KindQuote, true
	case channelTrades:
		return subscription.KindTrade, true
	case channelBookSnapshot, channelBookUpdates:
		return subscription.KindBook, true
	case channelCandles:
		return subscription.KindBar, true
	case channelMarkPrice:
		return subscription.KindMarkPrice, true
	case channelFundingRate:
		return subscription.KindFundingRate, true
	}
	return "", false
}

func (d *df) RequestTrades(ctx context.Context, id exchange.InstrumentID, limit int) ([]*exchange.TradeEvent, error) {
	if limit <= 0 || limit > maxTradesPageSize {
		limit = maxTradesPageSize
	}
	if err := d.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	raw := d.rawSymbol(id)
	r := &dehttp.Request{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf("/v2/trades/%s", raw),
		SecType:  dehttp.SecTypeNone,
	}
	r.SetParam("page_size", limit)
	data, err := d.client.CallAPI(ctx, r)
	if err != nil {
		return nil, err
	}
	var res deltaTradesResponse
	if err := dehttp.Json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	trades := make([]*exchange.TradeEvent, 0, len(res.Result.Trades))
	for i := range res.Result.Trades {
		te, err := toHistoryTrade(&res.Result.Trades[i], raw)
		if err != nil {
			d.logger.Warnf("skip malformed history trade: %v", err)
			continue
		}
		trades = append(trades, te)
	}
	return trades, nil
}

func (d *df) RequestCandles(ctx context.Context, id exchange.InstrumentID, resolutionSecs, start, end int64, limit int) ([]*exchange.CandleEvent, error) {
	if limit <= 0 || limit > maxCandlesPageSize {
		limit = maxCandlesPageSize
	}
	if err := d.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	raw := d.rawSymbol(id)
	resolution := exchange.BarResolution(resolutionSecs)
	r := &dehttp.Request{
		Method:   http.MethodGet,
		Endpoint: "/v2/history/candles",
		SecType:  dehttp.SecTypeNone,
	}
	r.SetParams(dehttp.Params{
		"symbol":     raw,
		"resolution": resolution,
		"start":      start,
		"end":        end,
	})
	data, err := d.client.CallAPI(ctx, r)
	if err != nil {
		return nil, err
	}
	var res deltaCandlesResponse
	if err := dehttp.Json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	if len(res.Result) > limit {
		res.Result = res.Result[:limit]
	}
	candles := make([]*exchange.CandleEvent, 0, len(res.Result))
	for i := range res.Result {
		candles = append(candles, toHistoryCandle(&res.Result[i], raw, resolution))
	}
	return candles, nil
}

// stripMarkPrefix MARK:BTCUSD -> BTCUSD
func stripMarkPrefix(symbol string) string {
	return strings.TrimPrefix(symbol, markSymbolPrefix)
}
