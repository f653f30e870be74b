package streamdelta

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/go-gotop/deltex/broker"
	"github.com/go-gotop/deltex/exchange"
)

// riskLimits 本地下单前置校验, 零值字段不启用
type riskLimits struct {
	maxOrderSize    decimal.Decimal
	minOrderSize    decimal.Decimal
	maxPositionSize decimal.Decimal
	maxNotional     decimal.Decimal
}

// checkOrderRisk 在触达交易所之前拒绝越限订单
func (s *stream) checkOrderRisk(req *exchange.CreateOrderRequest) error {
	limits := s.opts.risk

	if req.Size.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: size %s must be positive", exchange.ErrRiskCheckFailed, req.Size)
	}
	if !limits.minOrderSize.IsZero() && req.Size.LessThan(limits.minOrderSize) {
		return fmt.Errorf("%w: size %s below minimum %s", exchange.ErrRiskCheckFailed, req.Size, limits.minOrderSize)
	}
	if !limits.maxOrderSize.IsZero() && req.Size.GreaterThan(limits.maxOrderSize) {
		return fmt.Errorf("%w: size %s exceeds maximum %s", exchange.ErrRiskCheckFailed, req.Size, limits.maxOrderSize)
	}
	if req.OrderType == exchange.OrderTypeLimit && req.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: limit price %s must be positive", exchange.ErrRiskCheckFailed, req.Price)
	}

	if !limits.maxNotional.IsZero() && req.OrderType == exchange.OrderTypeLimit {
		notional := req.Price.Mul(req.Size)
		if notional.GreaterThan(limits.maxNotional) {
			return fmt.Errorf("%w: notional %s exceeds maximum %s", exchange.ErrRiskCheckFailed, notional, limits.maxNotional)
		}
	}

	if !limits.maxPositionSize.IsZero() && !req.ReduceOnly {
		delta := req.Size
		if req.Side == exchange.SideTypeSell {
			delta = req.Size.Neg()
		}
		cur := decimal.Zero
		if pos, ok := s.tracker.Position(req.Symbol); ok {
			cur = pos.Size
		}
		projected := cur.Add(delta).Abs()
		if projected.GreaterThan(limits.maxPositionSize) {
			return fmt.Errorf("%w: projected position %s exceeds maximum %s", exchange.ErrRiskCheckFailed, projected, limits.maxPositionSize)
		}
	}
	return nil
}

// rejectLocally 风控拒单不触达交易所, 本地直接回报 REJECTED
func (s *stream) rejectLocally(req *exchange.CreateOrderRequest, reason error) {
	s.ordersRejected.Add(1)
	evt := &exchange.OrderResultEvent{
		Exchange:        exchange.DeltaExchange,
		ClientOrderID:   req.ClientOrderID,
		Symbol:          req.Symbol,
		TransactionTime: time.Now().UnixMilli(),
		Instrument:      exchange.InstrumentTypePerpetual,
		ExecutionType:   exchange.ExecutionStateRejected,
		State:           exchange.OrderStateRejected,
		Side:            req.Side,
		Type:            req.OrderType,
		Volume:          req.Size,
		Price:           req.Price,
		RejectReason:    reason.Error(),
	}
	if s.opts.orderResultHandler != nil {
		s.opts.orderResultHandler(evt)
	}
	s.publish(broker.OrderResultTopicType, evt.Symbol, evt)
}
