package dfdelta

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/go-gotop/deltex/broker"
	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/requests/dehttp"
	"github.com/go-gotop/deltex/subscription"
)

// route 按频道标签分发消息。解析失败只计数与记录, 不中断连接。
func (d *df) route(epoch uint64, message []byte) {
	d.received.Add(1)

	j, err := dehttp.NewJSON(message)
	if err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("malformed message: %v", err)
		return
	}

	tag := j.Get("type").MustString()
	switch tag {
	case channelTicker:
		d.handleTicker(message)
	case channelTrades:
		d.handleTrade(message)
	case channelBookSnapshot:
		d.handleBookSnapshot(message)
	case channelBookUpdates:
		d.handleBookUpdate(message)
	case channelMarkPrice:
		d.handleMarkPrice(message)
	case channelFundingRate:
		d.handleFundingRate(message)
	case channelCandles:
		d.handleCandle(message)
	case "subscriptions":
		// 订阅确认帧
		d.processed.Add(1)
	case "error":
		d.errCount.Add(1)
		d.logger.Warnf("venue error frame: %s", string(message))
		d.emitError("", string(message), false)
	default:
		d.logger.Debugf("unhandled channel tag %q", tag)
	}
}

// resolveSubscribed 未订阅交易对的消息直接丢弃
func (d *df) resolveSubscribed(symbol string) (exchange.InstrumentID, bool) {
	id, ok := d.registry.Resolve(symbol)
	if !ok {
		d.logger.Debugf("message for unsubscribed symbol %s dropped", symbol)
	}
	return id, ok
}

func (d *df) handleTicker(message []byte) {
	var e deltaTickerEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("ticker decode failed: %v", err)
		return
	}
	if _, ok := d.resolveSubscribed(e.Symbol); !ok {
		return
	}
	quote, err := toQuoteEvent(&e)
	if err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("ticker convert failed: %v", err)
		return
	}
	if d.opts.quoteHandler != nil {
		d.opts.quoteHandler(quote)
	}
	if d.publish(broker.QuoteTopicType, quote.Symbol, quote) == nil {
		d.processed.Add(1)
	}
}

func (d *df) handleTrade(message []byte) {
	var e deltaTradeEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("trade decode failed: %v", err)
		return
	}
	if _, ok := d.resolveSubscribed(e.Symbol); !ok {
		return
	}
	trade, err := toTradeEvent(&e)
	if err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("trade convert failed: %v", err)
		return
	}
	if d.opts.tradeHandler != nil {
		d.opts.tradeHandler(trade)
	}
	d.sample(trade)
	if d.publish(broker.TradeTopicType, trade.Symbol, trade) == nil {
		d.processed.Add(1)
	}
}

// sample 按交易对聚合逐笔成交
func (d *df) sample(trade *exchange.TradeEvent) {
	if d.opts.newSampler == nil {
		return
	}
	d.samplerMux.Lock()
	s, ok := d.samplers[trade.Symbol]
	if !ok {
		s = d.opts.newSampler()
		d.samplers[trade.Symbol] = s
	}
	agg := s.Sample(trade)
	d.samplerMux.Unlock()

	if agg != nil && d.opts.aggTradeHandler != nil {
		d.opts.aggTradeHandler(agg)
	}
}

func (d *df) handleBookSnapshot(message []byte) {
	var e deltaBookSnapshotEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("book snapshot decode failed: %v", err)
		return
	}
	if _, ok := d.resolveSubscribed(e.Symbol); !ok {
		return
	}
	book, err := toBookSnapshot(&e)
	if err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("book snapshot convert failed: %v", err)
		return
	}
	if d.opts.bookHandler != nil {
		d.opts.bookHandler(book)
	}
	if d.publish(broker.BookTopicType, book.Symbol, book) == nil {
		d.processed.Add(1)
	}
}

func (d *df) handleBookUpdate(message []byte) {
	var e deltaBookUpdateEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("book update decode failed: %v", err)
		return
	}
	if _, ok := d.resolveSubscribed(e.Symbol); !ok {
		return
	}
	book, err := toBookUpdate(&e)
	if err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("book update convert failed: %v", err)
		return
	}
	if d.opts.bookHandler != nil {
		d.opts.bookHandler(book)
	}
	if d.publish(broker.BookTopicType, book.Symbol, book) == nil {
		d.processed.Add(1)
	}
}

func (d *df) handleMarkPrice(message []byte) {
	var e deltaMarkPriceEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("mark price decode failed: %v", err)
		return
	}
	symbol := stripMarkPrefix(e.Symbol)
	if _, ok := d.resolveSubscribed(symbol); !ok {
		return
	}
	mp, err := toMarkPriceEvent(&e, symbol)
	if err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("mark price convert failed: %v", err)
		return
	}
	if d.opts.markPriceHandler != nil {
		d.opts.markPriceHandler(mp)
	}
	if d.publish(broker.MarkPriceTopicType, mp.Symbol, mp) == nil {
		d.processed.Add(1)
	}
}

func (d *df) handleFundingRate(message []byte) {
	var e deltaFundingRateEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("funding rate decode failed: %v", err)
		return
	}
	if _, ok := d.resolveSubscribed(e.Symbol); !ok {
		return
	}
	fr, err := toFundingRateEvent(&e)
	if err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("funding rate convert failed: %v", err)
		return
	}
	if d.opts.fundingRateHandler != nil {
		d.opts.fundingRateHandler(fr)
	}
	if d.publish(broker.FundingRateTopicType, fr.Symbol, fr) == nil {
		d.processed.Add(1)
	}
}

func (d *df) handleCandle(message []byte) {
	var e deltaCandleEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("candle decode failed: %v", err)
		return
	}
	// K线频道交易对形如 BTCUSD:1m
	symbol := e.Symbol
	if i := strings.IndexByte(symbol, ':'); i >= 0 {
		symbol = symbol[:i]
	}
	id, ok := d.resolveSubscribed(symbol)
	if !ok {
		return
	}
	// 周期须与订阅一致
	if entry, ok := d.registry.Get(subscription.KindBar, id); ok && entry.Resolution != "" && e.Resolution != "" && entry.Resolution != e.Resolution {
		d.logger.Debugf("candle resolution %s not subscribed for %s", e.Resolution, symbol)
		return
	}
	bar, err := toCandleEvent(&e, symbol)
	if err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("candle convert failed: %v", err)
		return
	}
	if d.opts.barHandler != nil {
		d.opts.barHandler(bar)
	}
	if d.publish(broker.BarTopicType, bar.Symbol, bar) == nil {
		d.processed.Add(1)
	}
}

func (d *df) emitError(channel, msg string, fatal bool) {
	if d.opts.errorHandler == nil {
		return
	}
	d.opts.errorHandler(&exchange.StreamErrorEvent{
		Exchange:   exchange.DeltaExchange,
		Channel:    channel,
		Message:    msg,
		Fatal:      fatal,
		OccurredAt: time.Now().UnixMilli(),
	})
}

func (d *df) publish(topic, key string, v interface{}) error {
	if d.opts.publisher == nil {
		return nil
	}
	data, err := dehttp.Json.Marshal(v)
	if err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("publish marshal failed: %v", err)
		return err
	}
	if err := d.opts.publisher.Publish(context.Background(), topic, &broker.Message{
		Key:   key,
		Value: data,
	}); err != nil {
		d.errCount.Add(1)
		d.logger.Warnf("publish to %s failed: %v", topic, err)
		return err
	}
	return nil
}

func toQuoteEvent(e *deltaTickerEvent) (*exchange.QuoteEvent, error) {
	bidPrice, err := decimal.NewFromString(zeroIfEmpty(e.Quotes.BestBid))
	if err != nil {
		return nil, err
	}
	askPrice, err := decimal.NewFromString(zeroIfEmpty(e.Quotes.BestAsk))
	if err != nil {
		return nil, err
	}
	bidSize, err := decimal.NewFromString(zeroIfEmpty(e.Quotes.BidSize))
	if err != nil {
		return nil, err
	}
	askSize, err := decimal.NewFromString(zeroIfEmpty(e.Quotes.AskSize))
	if err != nil {
		return nil, err
	}
	markPrice, err := decimal.NewFromString(zeroIfEmpty(e.MarkPrice))
	if err != nil {
		return nil, err
	}
	turnover, err := decimal.NewFromString(zeroIfEmpty(e.TurnoverUSD))
	if err != nil {
		return nil, err
	}
	return &exchange.QuoteEvent{
		Symbol:      e.Symbol,
		Exchange:    exchange.DeltaExchange,
		BidPrice:    bidPrice,
		BidSize:     bidSize,
		AskPrice:    askPrice,
		AskSize:     askSize,
		MarkPrice:   markPrice,
		Turnover24h: turnover,
		QuotedAt:    microToMilli(e.Timestamp),
	}, nil
}

func toTradeEvent(e *deltaTradeEvent) (*exchange.TradeEvent, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return nil, err
	}
	size, err := decimal.NewFromString(e.Size)
	if err != nil {
		return nil, err
	}
	side := exchange.SideTypeSell
	// 买方为吃单方即主动买
	if e.BuyerRole == "taker" {
		side = exchange.SideTypeBuy
	}
	return &exchange.TradeEvent{
		TradedAt:   microToMilli(e.Timestamp),
		Symbol:     e.Symbol,
		Exchange:   exchange.DeltaExchange,
		Price:      price,
		Size:       size,
		Side:       side,
		Instrument: exchange.InstrumentTypePerpetual,
	}, nil
}

func toBookSnapshot(e *deltaBookSnapshotEvent) (*exchange.BookEvent, error) {
	bids, err := toBookLevels(e.Buy)
	if err != nil {
		return nil, err
	}
	asks, err := toBookLevels(e.Sell)
	if err != nil {
		return nil, err
	}
	return &exchange.BookEvent{
		Symbol:    e.Symbol,
		Exchange:  exchange.DeltaExchange,
		Snapshot:  true,
		Sequence:  e.LastSequenceNo,
		Bids:      bids,
		Asks:      asks,
		UpdatedAt: microToMilli(e.Timestamp),
	}, nil
}

func toBookUpdate(e *deltaBookUpdateEvent) (*exchange.BookEvent, error) {
	bids, err := toBookLevels(e.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := toBookLevels(e.Asks)
	if err != nil {
		return nil, err
	}
	return &exchange.BookEvent{
		Symbol:    e.Symbol,
		Exchange:  exchange.DeltaExchange,
		Snapshot:  e.Action == "snapshot",
		Sequence:  e.SequenceNo,
		Bids:      bids,
		Asks:      asks,
		UpdatedAt: microToMilli(e.Timestamp),
	}, nil
}

func toBookLevels(levels []deltaBookLevel) ([]exchange.BookLevel, error) {
	out := make([]exchange.BookLevel, 0, len(levels))
	for _, lv := range levels {
		price, err := decimal.NewFromString(lv.LimitPrice)
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(zeroIfEmpty(lv.Size))
		if err != nil {
			return nil, err
		}
		out = append(out, exchange.BookLevel{Price: price, Size: size})
	}
	return out, nil
}

func toMarkPriceEvent(e *deltaMarkPriceEvent, symbol string) (*exchange.MarkPriceEvent, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return nil, err
	}
	index, err := decimal.NewFromString(zeroIfEmpty(e.IndexPrice))
	if err != nil {
		return nil, err
	}
	return &exchange.MarkPriceEvent{
		Symbol:     symbol,
		Exchange:   exchange.DeltaExchange,
		MarkPrice:  price,
		IndexPrice: index,
		UpdatedAt:  microToMilli(e.Timestamp),
	}, nil
}

func toFundingRateEvent(e *deltaFundingRateEvent) (*exchange.FundingRateEvent, error) {
	rate, err := decimal.NewFromString(zeroIfEmpty(e.FundingRate))
	if err != nil {
		return nil, err
	}
	predicted, err := decimal.NewFromString(zeroIfEmpty(e.PredictedRate))
	if err != nil {
		return nil, err
	}
	return &exchange.FundingRateEvent{
		Symbol:        e.Symbol,
		Exchange:      exchange.DeltaExchange,
		FundingRate:   rate,
		PredictedRate: predicted,
		NextFundingAt: microToMilli(e.NextFundingAt),
		UpdatedAt:     microToMilli(e.Timestamp),
	}, nil
}

func toCandleEvent(e *deltaCandleEvent, symbol string) (*exchange.CandleEvent, error) {
	open, err := decimal.NewFromString(e.Open)
	if err != nil {
		return nil, err
	}
	high, err := decimal.NewFromString(e.High)
	if err != nil {
		return nil, err
	}
	low, err := decimal.NewFromString(e.Low)
	if err != nil {
		return nil, err
	}
	closePrice, err := decimal.NewFromString(e.Close)
	if err != nil {
		return nil, err
	}
	volume, err := decimal.NewFromString(zeroIfEmpty(e.Volume))
	if err != nil {
		return nil, err
	}
	return &exchange.CandleEvent{
		Symbol:     symbol,
		Exchange:   exchange.DeltaExchange,
		Resolution: e.Resolution,
		OpenedAt:   microToMilli(e.CandleStartTime),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     volume,
	}, nil
}

func toHistoryTrade(t *deltaHistoryTrade, symbol string) (*exchange.TradeEvent, error) {
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return nil, err
	}
	size, err := decimal.NewFromString(t.Size)
	if err != nil {
		return nil, err
	}
	side := exchange.SideTypeSell
	if t.BuyerRole == "taker" {
		side = exchange.SideTypeBuy
	}
	return &exchange.TradeEvent{
		TradedAt:   microToMilli(t.Timestamp),
		Symbol:     symbol,
		Exchange:   exchange.DeltaExchange,
		Price:      price,
		Size:       size,
		Side:       side,
		Instrument: exchange.InstrumentTypePerpetual,
	}, nil
}

func toHistoryCandle(c *deltaHistoryCandle, symbol, resolution string) *exchange.CandleEvent {
	return &exchange.CandleEvent{
		Symbol:     symbol,
		Exchange:   exchange.DeltaExchange,
		Resolution: resolution,
		OpenedAt:   c.Time * 1000,
		Open:       decimal.NewFromFloat(c.Open),
		High:       decimal.NewFromFloat(c.High),
		Low:        decimal.NewFromFloat(c.Low),
		Close:      decimal.NewFromFloat(c.Close),
		Volume:     decimal.NewFromFloat(c.Volume),
		Closed:     true,
	}
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// microToMilli 交易所时间戳为微秒
func microToMilli(ts int64) int64 {
	return ts / 1000
}
