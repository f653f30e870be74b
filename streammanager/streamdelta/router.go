package streamdelta

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/go-gotop/deltex/broker"
	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/requests/dehttp"
)

// route 按频道标签分发私有流消息。解析失败只计数与记录, 不中断连接。
func (s *stream) route(epoch uint64, message []byte) {
	s.received.Add(1)

	j, err := dehttp.NewJSON(message)
	if err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("malformed message: %v", err)
		return
	}

	tag := j.Get("type").MustString()
	switch tag {
	case channelOrders:
		s.handleOrder(message)
	case channelUserTrades:
		s.handleUserTrade(message)
	case channelPositions:
		s.handlePosition(message)
	case channelMargins, channelPortfolioMargins:
		s.handleMargin(message)
	case "subscriptions":
		// 订阅确认帧
		s.processed.Add(1)
	case "success":
		// 鉴权等操作确认帧
		s.processed.Add(1)
	case "error":
		s.errCount.Add(1)
		s.logger.Warnf("venue error frame: %s", string(message))
		s.emitError("", string(message), false)
	default:
		s.logger.Debugf("unhandled channel tag %q", tag)
	}
}

func (s *stream) handleOrder(message []byte) {
	var e deltaOrderEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("order event decode failed: %v", err)
		return
	}

	venueID := strconv.FormatInt(e.OrderID, 10)
	clientID := e.ClientOrderID
	if clientID == "" {
		if c, ok := s.tracker.ClientByVenue(venueID); ok {
			clientID = c
		}
	}

	state := wsOrderState(&e)
	if clientID != "" {
		if _, tracked := s.tracker.Get(clientID); tracked {
			if err := s.tracker.BindVenueID(clientID, venueID); err != nil {
				s.errCount.Add(1)
				s.logger.Errorf("order %s venue id %s: %v", clientID, venueID, err)
				s.emitError(channelOrders, err.Error(), false)
				return
			}
			s.replayPendingFills(venueID)
			if err := s.tracker.Transition(clientID, state); err != nil {
				s.errCount.Add(1)
				s.logger.Warnf("order %s transition to %s: %v", clientID, state, err)
			}
		} else {
			s.logger.Debugf("order event for untracked order %s", clientID)
		}
	} else {
		s.logger.Debugf("order event for external order %s", venueID)
	}

	if state == exchange.OrderStateRejected {
		s.ordersRejected.Add(1)
	}

	evt, err := toOrderResultEvent(&e, clientID, venueID, state)
	if err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("order event convert failed: %v", err)
		return
	}
	if s.opts.orderResultHandler != nil {
		s.opts.orderResultHandler(evt)
	}
	if s.publish(broker.OrderResultTopicType, evt.Symbol, evt) == nil {
		s.processed.Add(1)
	}
}

func (s *stream) handleUserTrade(message []byte) {
	var e deltaUserTradeEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("user trade decode failed: %v", err)
		return
	}

	fill, err := toWsFill(&e)
	if err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("user trade convert failed: %v", err)
		return
	}

	res, err := s.tracker.ApplyFill(fill)
	if err != nil {
		s.errCount.Add(1)
		s.logger.Errorf("apply fill %s: %v", fill.TradeID, err)
		return
	}
	if res.Deferred || res.Duplicate {
		s.processed.Add(1)
		return
	}
	if res.PositionOpened {
		s.positionsOpened.Add(1)
	}
	if res.PositionClosed {
		s.positionsClosed.Add(1)
	}
	if res.Order.State == exchange.OrderStateFilled {
		s.ordersFilled.Add(1)
	}

	evt := &exchange.OrderResultEvent{
		Exchange:        exchange.DeltaExchange,
		ClientOrderID:   res.Order.ClientOrderID,
		Symbol:          fill.Symbol,
		OrderID:         fill.OrderID,
		FeeAsset:        fill.FeeAsset,
		TransactionTime: fill.TradedAt,
		By:              fill.By,
		Instrument:      exchange.InstrumentTypePerpetual,
		ExecutionType:   exchange.ExecutionStateTrade,
		State:           res.Order.State,
		Side:            fill.Side,
		Type:            res.Order.Type,
		Volume:          res.Order.Size,
		Price:           res.Order.Price,
		LatestVolume:    fill.Size,
		FilledVolume:    res.Order.FilledSize,
		LatestPrice:     fill.Price,
		FeeCost:         fill.Fee,
		AvgPrice:        res.Order.AvgPrice,
	}
	if s.opts.orderResultHandler != nil {
		s.opts.orderResultHandler(evt)
	}
	if s.publish(broker.OrderResultTopicType, evt.Symbol, evt) == nil {
		s.processed.Add(1)
	}
}

// handlePosition 交易所持仓推送覆盖本地持仓
func (s *stream) handlePosition(message []byte) {
	var e deltaPositionEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("position event decode failed: %v", err)
		return
	}

	entry, err := decimal.NewFromString(zeroIfEmpty(e.EntryPrice))
	if err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("position event convert failed: %v", err)
		return
	}
	margin, _ := decimal.NewFromString(zeroIfEmpty(e.Margin))
	realized, _ := decimal.NewFromString(zeroIfEmpty(e.RealizedPnl))

	size := decimal.NewFromInt(e.Size)
	s.tracker.SetPosition(e.Symbol, size, entry)

	side := exchange.PositionSideFlat
	switch {
	case size.IsPositive():
		side = exchange.PositionSideLong
	case size.IsNegative():
		side = exchange.PositionSideShort
	}

	evt := &exchange.PositionEvent{
		Exchange:   exchange.DeltaExchange,
		Symbol:     e.Symbol,
		Side:       side,
		Size:       size.Abs(),
		EntryPrice: entry,
		RealizedPL: realized,
		Margin:     margin,
		UpdatedAt:  microToMilli(e.TimestampMicro),
	}
	if s.opts.positionHandler != nil {
		s.opts.positionHandler(evt)
	}
	if s.publish(broker.PositionTopicType, evt.Symbol, evt) == nil {
		s.processed.Add(1)
	}
}

func (s *stream) handleMargin(message []byte) {
	var e deltaMarginEvent
	if err := dehttp.Json.Unmarshal(message, &e); err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("margin event decode failed: %v", err)
		return
	}

	balance, err := decimal.NewFromString(zeroIfEmpty(e.Balance))
	if err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("margin event convert failed: %v", err)
		return
	}
	available, _ := decimal.NewFromString(zeroIfEmpty(e.AvailableBalance))
	blocked, _ := decimal.NewFromString(zeroIfEmpty(e.BlockedMargin))

	evt := &exchange.MarginEvent{
		Exchange:       exchange.DeltaExchange,
		Asset:          e.AssetSymbol,
		Balance:        balance,
		Available:      available,
		PositionMargin: blocked,
		UpdatedAt:      microToMilli(e.TimestampMicro),
	}
	if s.opts.marginHandler != nil {
		s.opts.marginHandler(evt)
	}
	if s.publish(broker.MarginTopicType, evt.Asset, evt) == nil {
		s.processed.Add(1)
	}
}

func (s *stream) emitError(channel, msg string, fatal bool) {
	if s.opts.errorHandler == nil {
		return
	}
	s.opts.errorHandler(&exchange.StreamErrorEvent{
		Exchange:   exchange.DeltaExchange,
		Channel:    channel,
		Message:    msg,
		Fatal:      fatal,
		OccurredAt: time.Now().UnixMilli(),
	})
}

func (s *stream) publish(topic, key string, v interface{}) error {
	if s.opts.publisher == nil {
		return nil
	}
	data, err := dehttp.Json.Marshal(v)
	if err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("publish marshal failed: %v", err)
		return err
	}
	if err := s.opts.publisher.Publish(context.Background(), topic, &broker.Message{
		Key:   key,
		Value: data,
	}); err != nil {
		s.errCount.Add(1)
		s.logger.Warnf("publish to %s failed: %v", topic, err)
		return err
	}
	return nil
}

func toOrderResultEvent(e *deltaOrderEvent, clientID, venueID string, state exchange.OrderState) (*exchange.OrderResultEvent, error) {
	price, err := decimal.NewFromString(zeroIfEmpty(e.LimitPrice))
	if err != nil {
		return nil, err
	}
	avg, err := decimal.NewFromString(zeroIfEmpty(e.AveragePrice))
	if err != nil {
		return nil, err
	}
	return &exchange.OrderResultEvent{
		Exchange:        exchange.DeltaExchange,
		ClientOrderID:   clientID,
		Symbol:          e.Symbol,
		OrderID:         venueID,
		TransactionTime: microToMilli(e.TimestampMicro),
		Instrument:      exchange.InstrumentTypePerpetual,
		ExecutionType:   executionType(state),
		State:           state,
		Side:            toSide(e.Side),
		Type:            toOrderType(e.OrderType),
		Volume:          decimal.NewFromInt(e.Size),
		Price:           price,
		FilledVolume:    decimal.NewFromInt(e.Size - e.UnfilledSize),
		AvgPrice:        avg,
	}, nil
}

func executionType(state exchange.OrderState) exchange.ExecutionState {
	switch state {
	case exchange.OrderStateCanceled:
		return exchange.ExecutionStateCanceled
	case exchange.OrderStateRejected:
		return exchange.ExecutionStateRejected
	case exchange.OrderStateExpired:
		return exchange.ExecutionStateExpired
	case exchange.OrderStateFilled, exchange.OrderStatePartiallyFilled:
		return exchange.ExecutionStateTrade
	}
	return exchange.ExecutionStateNew
}

// wsOrderState 订单推送帧的状态映射
func wsOrderState(e *deltaOrderEvent) exchange.OrderState {
	switch e.State {
	case "open":
		if e.UnfilledSize < e.Size {
			return exchange.OrderStatePartiallyFilled
		}
		return exchange.OrderStateAccepted
	case "pending":
		return exchange.OrderStateSubmitted
	case "closed":
		if e.UnfilledSize == 0 {
			return exchange.OrderStateFilled
		}
		return exchange.OrderStateCanceled
	case "cancelled":
		if e.CancelReason == "self_trade" || e.CancelReason == "immediate_or_cancel" {
			return exchange.OrderStateExpired
		}
		return exchange.OrderStateCanceled
	}
	return exchange.OrderStateAccepted
}

func toWsFill(e *deltaUserTradeEvent) (*exchange.Fill, error) {
	price, err := decimal.NewFromString(zeroIfEmpty(e.Price))
	if err != nil {
		return nil, err
	}
	fee, err := decimal.NewFromString(zeroIfEmpty(e.Commission))
	if err != nil {
		return nil, err
	}
	return &exchange.Fill{
		TradeID:       e.FillID,
		OrderID:       strconv.FormatInt(e.OrderID, 10),
		ClientOrderID: e.ClientOrderID,
		Symbol:        e.Symbol,
		Side:          toSide(e.Side),
		Price:         price,
		Size:          decimal.NewFromInt(e.Size),
		Fee:           fee,
		By:            e.Role,
		TradedAt:      microToMilli(e.TimestampMicro),
	}, nil
}

func toOrder(o *deltaOrder) (*exchange.Order, error) {
	price, err := decimal.NewFromString(zeroIfEmpty(o.LimitPrice))
	if err != nil {
		return nil, err
	}
	avg, err := decimal.NewFromString(zeroIfEmpty(o.AverageFillPx))
	if err != nil {
		return nil, err
	}
	return &exchange.Order{
		Symbol:        o.ProductSymbol,
		ClientOrderID: o.ClientOrderID,
		OrderID:       strconv.FormatInt(o.ID, 10),
		Side:          toSide(o.Side),
		Type:          toOrderType(o.OrderType),
		State:         toOrderState(o),
		TimeInForce:   toTimeInForce(o.TimeInForce),
		Price:         price,
		AvgPrice:      avg,
		Size:          decimal.NewFromInt(o.Size),
		FilledSize:    decimal.NewFromInt(o.Size - o.UnfilledSize),
		CreatedAt:     parseTimeMilli(o.CreatedAt),
		UpdatedAt:     parseTimeMilli(o.UpdatedAt),
		ReduceOnly:    o.ReduceOnly,
	}, nil
}

func toFill(f *deltaFill) (*exchange.Fill, error) {
	price, err := decimal.NewFromString(zeroIfEmpty(f.Price))
	if err != nil {
		return nil, err
	}
	fee, err := decimal.NewFromString(zeroIfEmpty(f.Commission))
	if err != nil {
		return nil, err
	}
	return &exchange.Fill{
		TradeID:       strconv.FormatInt(f.ID, 10),
		OrderID:       strconv.FormatInt(f.OrderID, 10),
		ClientOrderID: f.ClientOrderID,
		Symbol:        f.ProductSymbol,
		Side:          toSide(f.Side),
		Price:         price,
		Size:          decimal.NewFromInt(f.Size),
		Fee:           fee,
		FeeAsset:      f.SettlingAsset,
		By:            f.Role,
		TradedAt:      parseTimeMilli(f.CreatedAt),
	}, nil
}

func toPosition(p *deltaPosition) (*exchange.Position, error) {
	entry, err := decimal.NewFromString(zeroIfEmpty(p.EntryPrice))
	if err != nil {
		return nil, err
	}
	margin, _ := decimal.NewFromString(zeroIfEmpty(p.Margin))
	realized, _ := decimal.NewFromString(zeroIfEmpty(p.RealizedPnl))
	unrealized, _ := decimal.NewFromString(zeroIfEmpty(p.UnrealizedPnl))

	side := exchange.PositionSideFlat
	switch {
	case p.Size > 0:
		side = exchange.PositionSideLong
	case p.Size < 0:
		side = exchange.PositionSideShort
	}

	return &exchange.Position{
		Symbol:       p.ProductSymbol,
		Side:         side,
		Instrument:   exchange.InstrumentTypePerpetual,
		Size:         decimal.NewFromInt(p.Size).Abs(),
		EntryPrice:   entry,
		UnrealizedPL: unrealized,
		RealizedPL:   realized,
		Margin:       margin,
		UpdatedAt:    parseTimeMilli(p.UpdatedAt),
	}, nil
}

// toOrderState REST 订单状态映射
func toOrderState(o *deltaOrder) exchange.OrderState {
	switch o.State {
	case "open":
		if o.UnfilledSize < o.Size {
			return exchange.OrderStatePartiallyFilled
		}
		return exchange.OrderStateAccepted
	case "pending":
		return exchange.OrderStateSubmitted
	case "closed":
		if o.UnfilledSize == 0 {
			return exchange.OrderStateFilled
		}
		return exchange.OrderStateCanceled
	case "cancelled":
		return exchange.OrderStateCanceled
	}
	return exchange.OrderStateAccepted
}

func toSide(side string) exchange.SideType {
	if side == "buy" {
		return exchange.SideTypeBuy
	}
	return exchange.SideTypeSell
}

func fromSide(side exchange.SideType) string {
	if side == exchange.SideTypeBuy {
		return "buy"
	}
	return "sell"
}

func toOrderType(t string) exchange.OrderType {
	if t == "market_order" {
		return exchange.OrderTypeMarket
	}
	return exchange.OrderTypeLimit
}

func fromOrderType(t exchange.OrderType) string {
	if t == exchange.OrderTypeMarket {
		return "market_order"
	}
	return "limit_order"
}

func toTimeInForce(tif string) exchange.TimeInForce {
	switch tif {
	case "ioc":
		return exchange.TimeInForceIOC
	case "fok":
		return exchange.TimeInForceFOK
	}
	return exchange.TimeInForceGTC
}

func fromTimeInForce(tif exchange.TimeInForce) string {
	switch tif {
	case exchange.TimeInForceIOC:
		return "ioc"
	case exchange.TimeInForceFOK:
		return "fok"
	}
	return "gtc"
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

func parseTimeMilli(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
