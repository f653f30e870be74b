package streamdelta

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/go-gotop/deltex/broker"
	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/requests/dehttp"
	"github.com/go-gotop/deltex/streammanager"
)

// reconciliationPrice 推导将本地持仓修正到交易所状态所需的
// 差额部分成交均价。交易所均价缺失、为零或数量无变化时无解。
//
//	cur=0           → tgtAvg
//	否则            → tgtAvg + (tgtAvg-curAvg)·(curQty/(tgtQty-curQty))
func reconciliationPrice(curQty, curAvg, tgtQty, tgtAvg decimal.Decimal) (decimal.Decimal, bool) {
	if tgtAvg.IsZero() {
		return decimal.Zero, false
	}
	deltaQty := tgtQty.Sub(curQty)
	if deltaQty.IsZero() {
		return decimal.Zero, false
	}
	if curQty.IsZero() {
		return tgtAvg, true
	}
	adj := tgtAvg.Sub(curAvg).Mul(curQty.Div(deltaQty))
	return tgtAvg.Add(adj), true
}

// Reconcile 以交易所为准核对订单、持仓与余额。三路拉取彼此独立,
// 单路失败不阻断其余两路, 失败记录在报告中。
func (s *stream) Reconcile(ctx context.Context) (*streammanager.ReconcileReport, error) {
	report := &streammanager.ReconcileReport{}

	orders, err := s.OrderStatusReports(ctx, "")
	if err != nil {
		report.OrdersErr = err
		s.logger.Errorf("reconcile orders fetch failed: %v", err)
	} else {
		s.reconcileOrders(orders, report)
	}

	positions, err := s.PositionReports(ctx)
	if err != nil {
		report.PositionsErr = err
		s.logger.Errorf("reconcile positions fetch failed: %v", err)
	} else {
		s.reconcilePositions(positions, report)
	}

	balances, err := s.fetchBalances(ctx)
	if err != nil {
		report.BalancesErr = err
		s.logger.Errorf("reconcile balances fetch failed: %v", err)
	} else {
		report.Balances = balances
		s.publish(broker.AccountTopicType, exchange.DeltaExchange, &exchange.AccountUpdateEvent{
			Exchange:  exchange.DeltaExchange,
			Balances:  balances,
			UpdatedAt: time.Now().UnixMilli(),
		})
	}

	return report, nil
}

// reconcileOrders 交易所订单状态覆盖本地, 本地未知的挂单记作外部订单
func (s *stream) reconcileOrders(orders []exchange.Order, report *streammanager.ReconcileReport) {
	for i := range orders {
		venue := orders[i]
		clientID := venue.ClientOrderID
		if clientID == "" {
			if c, ok := s.tracker.ClientByVenue(venue.OrderID); ok {
				clientID = c
			}
		}
		if clientID == "" {
			s.adoptExternalOrder(venue, report)
			continue
		}

		local, ok := s.tracker.Get(clientID)
		if !ok {
			s.adoptExternalOrder(venue, report)
			continue
		}

		if venue.OrderID != "" && local.OrderID == "" {
			if err := s.tracker.BindVenueID(clientID, venue.OrderID); err != nil {
				s.logger.Errorf("bind venue order %s to %s: %v", venue.OrderID, clientID, err)
				continue
			}
			s.replayPendingFills(venue.OrderID)
		}

		if local.State != venue.State {
			if err := s.tracker.Transition(clientID, venue.State); err != nil {
				s.logger.Warnf("reconcile order %s: %s -> %s rejected: %v", clientID, local.State, venue.State, err)
				continue
			}
			report.SyncedOrders++
			s.emitOrderCorrection(&venue, clientID)
		}
	}
}

// adoptExternalOrder 交易所存在但本地未知的订单纳入跟踪并通知下游
func (s *stream) adoptExternalOrder(venue exchange.Order, report *streammanager.ReconcileReport) {
	report.ExternalOrders = append(report.ExternalOrders, venue.OrderID)
	venue.UnsolicitedFill = true
	if venue.ClientOrderID == "" {
		// 场外订单无客户端订单号, 以交易所订单号代之
		venue.ClientOrderID = venue.OrderID
	}
	if err := s.tracker.Track(&venue); err != nil {
		s.logger.Warnf("track external order %s: %v", venue.OrderID, err)
		return
	}
	s.emitOrderCorrection(&venue, venue.ClientOrderID)
}

// emitOrderCorrection 对账修正后的订单以事件形式通知下游
func (s *stream) emitOrderCorrection(venue *exchange.Order, clientID string) {
	evt := &exchange.OrderResultEvent{
		Exchange:        exchange.DeltaExchange,
		ClientOrderID:   clientID,
		Symbol:          venue.Symbol,
		OrderID:         venue.OrderID,
		TransactionTime: venue.UpdatedAt,
		Instrument:      exchange.InstrumentTypePerpetual,
		ExecutionType:   executionType(venue.State),
		State:           venue.State,
		Side:            venue.Side,
		Type:            venue.Type,
		Volume:          venue.Size,
		Price:           venue.Price,
		FilledVolume:    venue.FilledSize,
		AvgPrice:        venue.AvgPrice,
	}
	if s.opts.orderResultHandler != nil {
		s.opts.orderResultHandler(evt)
	}
	s.publish(broker.OrderResultTopicType, evt.Symbol, evt)
}

// reconcilePositions 持仓数量或均价不一致时以交易所为准覆盖本地,
// 能推导出修正均价时按该价回放差额。
func (s *stream) reconcilePositions(positions []exchange.Position, report *streammanager.ReconcileReport) {
	for _, venue := range positions {
		tgtQty := venue.Size
		if venue.Side == exchange.PositionSideShort {
			tgtQty = venue.Size.Neg()
		}

		cur, ok := s.tracker.Position(venue.Symbol)
		if ok && cur.Size.Equal(tgtQty) && cur.AvgPrice.Equal(venue.EntryPrice) {
			continue
		}

		price, defined := reconciliationPrice(cur.Size, cur.AvgPrice, tgtQty, venue.EntryPrice)
		if !defined {
			s.logger.Warnf("position %s reconciliation price undefined (cur=%s@%s tgt=%s@%s), skip",
				venue.Symbol, cur.Size, cur.AvgPrice, tgtQty, venue.EntryPrice)
			continue
		}
		if inst, err := s.instrumentFor(venue.Symbol); err == nil {
			price = price.Round(inst.PricePrecision)
		}
		s.logger.Infof("position %s corrected to %s@%s (fill price %s)", venue.Symbol, tgtQty, venue.EntryPrice, price)

		s.tracker.SetPosition(venue.Symbol, tgtQty, venue.EntryPrice)
		report.CorrectedPositions = append(report.CorrectedPositions, venue.Symbol)

		evt := &exchange.PositionEvent{
			Exchange:     exchange.DeltaExchange,
			Symbol:       venue.Symbol,
			Side:         venue.Side,
			Size:         venue.Size,
			EntryPrice:   venue.EntryPrice,
			RealizedPL:   venue.RealizedPL,
			UnrealizedPL: venue.UnrealizedPL,
			Margin:       venue.Margin,
			UpdatedAt:    venue.UpdatedAt,
		}
		if s.opts.positionHandler != nil {
			s.opts.positionHandler(evt)
		}
		s.publish(broker.PositionTopicType, evt.Symbol, evt)
	}
}

// replayPendingFills 回放归属刚确定的暂存成交
func (s *stream) replayPendingFills(venueOrderID string) {
	for _, fill := range s.tracker.DrainPendingFills(venueOrderID) {
		if _, err := s.tracker.ApplyFill(fill); err != nil {
			s.logger.Errorf("replay fill %s for order %s: %v", fill.TradeID, venueOrderID, err)
		}
	}
}

func (s *stream) fetchBalances(ctx context.Context) ([]exchange.Balance, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	r := &dehttp.Request{
		Method:   http.MethodGet,
		Endpoint: "/v2/wallet/balances",
		SecType:  dehttp.SecTypeSigned,
	}
	data, err := s.client.CallAPI(ctx, r)
	if err != nil {
		return nil, err
	}
	s.apiCalls.Add(1)
	var resp deltaBalancesResponse
	if err := dehttp.Json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	out := make([]exchange.Balance, 0, len(resp.Result))
	for _, b := range resp.Result {
		total, err := decimal.NewFromString(zeroIfEmpty(b.Balance))
		if err != nil {
			return nil, err
		}
		free, err := decimal.NewFromString(zeroIfEmpty(b.AvailableBalance))
		if err != nil {
			return nil, err
		}
		locked, err := decimal.NewFromString(zeroIfEmpty(b.BlockedMargin))
		if err != nil {
			return nil, err
		}
		out = append(out, exchange.Balance{
			Asset:  b.AssetSymbol,
			Free:   free,
			Locked: locked,
			Total:  total,
		})
	}
	return out, nil
}
