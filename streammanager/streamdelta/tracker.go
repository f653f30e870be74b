package streamdelta

import (
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"

	"github.com/go-gotop/deltex/exchange"
)

// validTransitions 订单状态机。终态之后仅允许丢弃。
var validTransitions = map[exchange.OrderState][]exchange.OrderState{
	exchange.OrderStateInitialized: {
		exchange.OrderStateSubmitted,
		exchange.OrderStateRejected,
	},
	exchange.OrderStateSubmitted: {
		exchange.OrderStateAccepted,
		exchange.OrderStatePartiallyFilled,
		exchange.OrderStateFilled,
		exchange.OrderStateRejected,
		exchange.OrderStateCanceled,
		exchange.OrderStateExpired,
	},
	exchange.OrderStateAccepted: {
		exchange.OrderStatePartiallyFilled,
		exchange.OrderStateFilled,
		exchange.OrderStateCanceled,
		exchange.OrderStateExpired,
		exchange.OrderStatePendingUpdate,
		exchange.OrderStatePendingCancel,
	},
	exchange.OrderStatePartiallyFilled: {
		exchange.OrderStatePartiallyFilled,
		exchange.OrderStateFilled,
		exchange.OrderStateCanceled,
		exchange.OrderStateExpired,
		exchange.OrderStatePendingUpdate,
		exchange.OrderStatePendingCancel,
	},
	exchange.OrderStatePendingUpdate: {
		exchange.OrderStateAccepted,
		exchange.OrderStatePartiallyFilled,
		exchange.OrderStateFilled,
		exchange.OrderStateCanceled,
		exchange.OrderStateExpired,
		exchange.OrderStatePendingCancel,
	},
	exchange.OrderStatePendingCancel: {
		exchange.OrderStateCanceled,
		exchange.OrderStatePartiallyFilled,
		exchange.OrderStateFilled,
	},
}

func canTransition(from, to exchange.OrderState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PositionState 单交易对净持仓。Size 有符号, 正为多头。
type PositionState struct {
	Symbol     string
	Size       decimal.Decimal
	AvgPrice   decimal.Decimal
	RealizedPL decimal.Decimal
}

func (p *PositionState) Side() exchange.PositionSide {
	switch {
	case p.Size.IsPositive():
		return exchange.PositionSideLong
	case p.Size.IsNegative():
		return exchange.PositionSideShort
	}
	return exchange.PositionSideFlat
}

// FillResult 一笔成交落账后的增量信息
type FillResult struct {
	Order exchange.Order
	// PositionOpened 本笔成交使持仓从零开仓
	PositionOpened bool
	// PositionClosed 本笔成交使持仓归零
	PositionClosed bool
	// Deferred 成交找不到对应订单, 已暂存待对账
	Deferred bool
	// Duplicate 重连后交易所重放的成交, 已按幂等丢弃
	Duplicate bool
}

// OrderTracker 客户端订单号与交易所订单号的双向映射、
// 订单状态机与净持仓核算。
type OrderTracker struct {
	logger *log.Helper

	mux           sync.Mutex
	byClient      map[string]*exchange.Order
	clientByVenue map[string]string
	// pendingFills 交易所订单号尚无归属的成交, 对账时回放
	pendingFills map[string][]*exchange.Fill
	// seenTrades 已落账的成交号, 交易所重放时据此去重
	seenTrades map[string]struct{}
	positions  map[string]*PositionState
}

func NewOrderTracker(logger log.Logger) *OrderTracker {
	return &OrderTracker{
		logger:        log.NewHelper(logger),
		byClient:      make(map[string]*exchange.Order),
		clientByVenue: make(map[string]string),
		pendingFills:  make(map[string][]*exchange.Fill),
		seenTrades:    make(map[string]struct{}),
		positions:     make(map[string]*PositionState),
	}
}

// Track 登记一笔新订单, 初态 INITIALIZED
func (t *OrderTracker) Track(order *exchange.Order) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if _, exists := t.byClient[order.ClientOrderID]; exists {
		return exchange.ErrOrderAlreadyExists
	}
	o := *order
	if o.State == "" {
		o.State = exchange.OrderStateInitialized
	}
	t.byClient[order.ClientOrderID] = &o
	if o.OrderID != "" {
		t.clientByVenue[o.OrderID] = o.ClientOrderID
	}
	return nil
}

// BindVenueID 建立交易所订单号映射。同一交易所订单号绑定到
// 不同客户端订单号是致命的完整性错误。
func (t *OrderTracker) BindVenueID(clientOrderID, venueOrderID string) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if bound, ok := t.clientByVenue[venueOrderID]; ok && bound != clientOrderID {
		return exchange.ErrOrderIDConflict
	}
	o, ok := t.byClient[clientOrderID]
	if !ok {
		return exchange.ErrOrderNotFound
	}
	o.OrderID = venueOrderID
	t.clientByVenue[venueOrderID] = clientOrderID
	return nil
}

func (t *OrderTracker) ClientByVenue(venueOrderID string) (string, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()
	c, ok := t.clientByVenue[venueOrderID]
	return c, ok
}

// Transition 推动订单状态, 非法迁移返回 ErrInvalidTransition。
// 终态订单上的重复事件按幂等丢弃处理, 返回 nil。
func (t *OrderTracker) Transition(clientOrderID string, to exchange.OrderState) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	o, ok := t.byClient[clientOrderID]
	if !ok {
		return exchange.ErrOrderNotFound
	}
	return t.transitionLocked(o, to)
}

func (t *OrderTracker) transitionLocked(o *exchange.Order, to exchange.OrderState) error {
	if o.State == to {
		return nil
	}
	if exchange.IsTerminalOrderState(o.State) {
		t.logger.Debugf("order %s already %s, drop transition to %s", o.ClientOrderID, o.State, to)
		return nil
	}
	if !canTransition(o.State, to) {
		return exchange.ErrInvalidTransition
	}
	o.State = to
	return nil
}

// ApplyFill 成交落账: 更新订单累计成交与状态, 并推进净持仓。
func (t *OrderTracker) ApplyFill(fill *exchange.Fill) (*FillResult, error) {
	t.mux.Lock()
	defer t.mux.Unlock()

	clientID := fill.ClientOrderID
	if clientID == "" {
		c, ok := t.clientByVenue[fill.OrderID]
		if !ok {
			// 归属未知, 暂存待对账回放
			t.pendingFills[fill.OrderID] = append(t.pendingFills[fill.OrderID], fill)
			t.logger.Warnf("fill for unknown venue order %s deferred", fill.OrderID)
			return &FillResult{Deferred: true}, nil
		}
		clientID = c
	}

	o, ok := t.byClient[clientID]
	if !ok {
		t.pendingFills[fill.OrderID] = append(t.pendingFills[fill.OrderID], fill)
		return &FillResult{Deferred: true}, nil
	}

	// 交易所在重连后会重放成交, 落过账的不再动持仓
	if fill.TradeID != "" {
		if _, dup := t.seenTrades[fill.TradeID]; dup {
			t.logger.Debugf("trade %s already applied, drop replay", fill.TradeID)
			return &FillResult{Order: *o, Duplicate: true}, nil
		}
	}
	if exchange.IsTerminalOrderState(o.State) {
		t.logger.Debugf("order %s already %s, drop fill %s", o.ClientOrderID, o.State, fill.TradeID)
		return &FillResult{Order: *o, Duplicate: true}, nil
	}

	res := &FillResult{}
	t.applyFillLocked(o, fill, res)
	if fill.TradeID != "" {
		t.seenTrades[fill.TradeID] = struct{}{}
	}
	res.Order = *o
	return res, nil
}

func (t *OrderTracker) applyFillLocked(o *exchange.Order, fill *exchange.Fill, res *FillResult) {
	prevFilled := o.FilledSize
	newFilled := prevFilled.Add(fill.Size)
	if newFilled.GreaterThan(o.Size) && o.Size.IsPositive() {
		t.logger.Warnf("order %s overfill: %s of %s", o.ClientOrderID, newFilled, o.Size)
	}

	// 加权平均成交价
	if prevFilled.IsZero() {
		o.AvgPrice = fill.Price
	} else {
		notional := o.AvgPrice.Mul(prevFilled).Add(fill.Price.Mul(fill.Size))
		o.AvgPrice = notional.Div(newFilled)
	}
	o.FilledSize = newFilled
	o.UpdatedAt = fill.TradedAt

	to := exchange.OrderStatePartiallyFilled
	if newFilled.GreaterThanOrEqual(o.Size) && o.Size.IsPositive() {
		to = exchange.OrderStateFilled
	}
	if err := t.transitionLocked(o, to); err != nil {
		t.logger.Warnf("order %s fill transition rejected: %v", o.ClientOrderID, err)
	}

	opened, closed := t.applyPositionLocked(fill.Symbol, fill.Side, fill.Price, fill.Size)
	res.PositionOpened = opened
	res.PositionClosed = closed
}

// applyPositionLocked 加仓按加权平均更新开仓价, 减仓按开仓均价
// 落实现盈亏, 穿越零点视为先平后开。
func (t *OrderTracker) applyPositionLocked(symbol string, side exchange.SideType, price, size decimal.Decimal) (opened, closed bool) {
	pos, ok := t.positions[symbol]
	if !ok {
		pos = &PositionState{Symbol: symbol}
		t.positions[symbol] = pos
	}

	delta := size
	if side == exchange.SideTypeSell {
		delta = size.Neg()
	}

	cur := pos.Size
	if cur.IsZero() {
		pos.Size = delta
		pos.AvgPrice = price
		return true, false
	}

	if cur.Sign() == delta.Sign() {
		// 同向加仓
		total := cur.Abs().Add(delta.Abs())
		notional := pos.AvgPrice.Mul(cur.Abs()).Add(price.Mul(delta.Abs()))
		pos.AvgPrice = notional.Div(total)
		pos.Size = cur.Add(delta)
		return false, false
	}

	// 反向: 先平仓
	closeQty := decimal.Min(cur.Abs(), delta.Abs())
	pnlPerUnit := price.Sub(pos.AvgPrice)
	if cur.IsNegative() {
		pnlPerUnit = pos.AvgPrice.Sub(price)
	}
	pos.RealizedPL = pos.RealizedPL.Add(pnlPerUnit.Mul(closeQty))

	newSize := cur.Add(delta)
	pos.Size = newSize
	switch {
	case newSize.IsZero():
		pos.AvgPrice = decimal.Zero
		return false, true
	case newSize.Sign() != cur.Sign():
		// 穿越零点, 剩余部分以本笔价格开新仓
		pos.AvgPrice = price
		return true, true
	}
	return false, false
}

func (t *OrderTracker) Get(clientOrderID string) (exchange.Order, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()
	o, ok := t.byClient[clientOrderID]
	if !ok {
		return exchange.Order{}, false
	}
	return *o, true
}

func (t *OrderTracker) OpenOrders() []exchange.Order {
	t.mux.Lock()
	defer t.mux.Unlock()
	out := make([]exchange.Order, 0)
	for _, o := range t.byClient {
		if !exchange.IsTerminalOrderState(o.State) {
			out = append(out, *o)
		}
	}
	return out
}

func (t *OrderTracker) Position(symbol string) (PositionState, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()
	p, ok := t.positions[symbol]
	if !ok {
		return PositionState{}, false
	}
	return *p, true
}

// SetPosition 对账时以交易所数据覆盖本地持仓
func (t *OrderTracker) SetPosition(symbol string, size, avgPrice decimal.Decimal) {
	t.mux.Lock()
	defer t.mux.Unlock()
	pos, ok := t.positions[symbol]
	if !ok {
		pos = &PositionState{Symbol: symbol}
		t.positions[symbol] = pos
	}
	pos.Size = size
	pos.AvgPrice = avgPrice
}

// DrainPendingFills 取出指定交易所订单号暂存的成交
func (t *OrderTracker) DrainPendingFills(venueOrderID string) []*exchange.Fill {
	t.mux.Lock()
	defer t.mux.Unlock()
	fills := t.pendingFills[venueOrderID]
	delete(t.pendingFills, venueOrderID)
	return fills
}

func (t *OrderTracker) PendingFillCount() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	n := 0
	for _, fs := range t.pendingFills {
		n += len(fs)
	}
	return n
}

// ClearTransient 断开连接时丢弃在途订单与关联状态, 终态订单保留可查
func (t *OrderTracker) ClearTransient() {
	t.mux.Lock()
	defer t.mux.Unlock()
	for clientID, o := range t.byClient {
		if exchange.IsTerminalOrderState(o.State) {
			continue
		}
		if o.OrderID != "" {
			delete(t.clientByVenue, o.OrderID)
		}
		delete(t.byClient, clientID)
	}
	t.pendingFills = make(map[string][]*exchange.Fill)
}

// Clear 清空全部跟踪状态
func (t *OrderTracker) Clear() {
	t.mux.Lock()
	defer t.mux.Unlock()
	t.byClient = make(map[string]*exchange.Order)
	t.clientByVenue = make(map[string]string)
	t.pendingFills = make(map[string][]*exchange.Fill)
	t.seenTrades = make(map[string]struct{})
	t.positions = make(map[string]*PositionState)
}
