package streamdelta

import (
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-gotop/deltex/exchange"
)

func newTestTracker() *OrderTracker {
	return NewOrderTracker(log.DefaultLogger)
}

func trackOrder(t *testing.T, tr *OrderTracker, clientID string, size int64) {
	t.Helper()
	require.NoError(t, tr.Track(&exchange.Order{
		Symbol:        "BTCUSD",
		ClientOrderID: clientID,
		Side:          exchange.SideTypeBuy,
		Type:          exchange.OrderTypeLimit,
		Size:          decimal.NewFromInt(size),
		Price:         decimal.NewFromInt(100),
	}))
	require.NoError(t, tr.Transition(clientID, exchange.OrderStateSubmitted))
	require.NoError(t, tr.Transition(clientID, exchange.OrderStateAccepted))
}

func fill(clientID string, side exchange.SideType, price, size int64) *exchange.Fill {
	return &exchange.Fill{
		ClientOrderID: clientID,
		Symbol:        "BTCUSD",
		Side:          side,
		Price:         decimal.NewFromInt(price),
		Size:          decimal.NewFromInt(size),
	}
}

func TestTrackDuplicate(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-1", 100)

	err := tr.Track(&exchange.Order{ClientOrderID: "c-1"})
	assert.ErrorIs(t, err, exchange.ErrOrderAlreadyExists)
}

func TestBindVenueIDConflict(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-1", 100)
	trackOrder(t, tr, "c-2", 100)

	require.NoError(t, tr.BindVenueID("c-1", "v-1"))
	// 重复绑定同一映射幂等
	require.NoError(t, tr.BindVenueID("c-1", "v-1"))

	err := tr.BindVenueID("c-2", "v-1")
	assert.ErrorIs(t, err, exchange.ErrOrderIDConflict)
}

func TestInvalidTransition(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Track(&exchange.Order{ClientOrderID: "c-1", Size: decimal.NewFromInt(10)}))

	err := tr.Transition("c-1", exchange.OrderStateAccepted)
	assert.ErrorIs(t, err, exchange.ErrInvalidTransition)

	assert.ErrorIs(t, tr.Transition("missing", exchange.OrderStateSubmitted), exchange.ErrOrderNotFound)
}

// 终态之后的事件幂等丢弃, 不报错
func TestTerminalStateDropsLateEvents(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-1", 100)
	require.NoError(t, tr.Transition("c-1", exchange.OrderStateCanceled))

	assert.NoError(t, tr.Transition("c-1", exchange.OrderStateFilled))
	o, ok := tr.Get("c-1")
	require.True(t, ok)
	assert.Equal(t, exchange.OrderStateCanceled, o.State)
}

func TestFillWeightedAverage(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-1", 100)

	res, err := tr.ApplyFill(fill("c-1", exchange.SideTypeBuy, 100, 40))
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatePartiallyFilled, res.Order.State)
	assert.True(t, res.PositionOpened)

	res, err = tr.ApplyFill(fill("c-1", exchange.SideTypeBuy, 110, 60))
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStateFilled, res.Order.State)
	assert.True(t, res.Order.FilledSize.Equal(decimal.NewFromInt(100)))
	// (100*40 + 110*60) / 100 = 106
	assert.True(t, res.Order.AvgPrice.Equal(decimal.NewFromInt(106)),
		"avg = %s", res.Order.AvgPrice)

	pos, ok := tr.Position("BTCUSD")
	require.True(t, ok)
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(100)))
	assert.True(t, pos.AvgPrice.Equal(decimal.NewFromInt(106)))
}

// 重连后交易所重放已落账的成交, 不得重复计入订单与持仓
func TestReplayedFillDropped(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-1", 100)

	f := fill("c-1", exchange.SideTypeBuy, 100, 100)
	f.TradeID = "t-1"
	res, err := tr.ApplyFill(f)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStateFilled, res.Order.State)

	res, err = tr.ApplyFill(f)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.True(t, res.Order.FilledSize.Equal(decimal.NewFromInt(100)),
		"filled = %s", res.Order.FilledSize)

	pos, ok := tr.Position("BTCUSD")
	require.True(t, ok)
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(100)),
		"position = %s", pos.Size)
}

// 成交号去重对未到终态的订单同样生效
func TestDuplicateTradeIDDropped(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-1", 100)

	f := fill("c-1", exchange.SideTypeBuy, 100, 40)
	f.TradeID = "t-1"
	res, err := tr.ApplyFill(f)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatePartiallyFilled, res.Order.State)

	res, err = tr.ApplyFill(f)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.True(t, res.Order.FilledSize.Equal(decimal.NewFromInt(40)))

	f2 := fill("c-1", exchange.SideTypeBuy, 110, 60)
	f2.TradeID = "t-2"
	res, err = tr.ApplyFill(f2)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, exchange.OrderStateFilled, res.Order.State)

	pos, ok := tr.Position("BTCUSD")
	require.True(t, ok)
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(100)))
}

func TestPositionReduceRealizesPnl(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-1", 100)
	_, err := tr.ApplyFill(fill("c-1", exchange.SideTypeBuy, 100, 100))
	require.NoError(t, err)

	trackOrder(t, tr, "c-2", 40)
	res, err := tr.ApplyFill(fill("c-2", exchange.SideTypeSell, 110, 40))
	require.NoError(t, err)
	assert.False(t, res.PositionClosed)

	pos, _ := tr.Position("BTCUSD")
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(60)))
	// 减仓不改开仓均价
	assert.True(t, pos.AvgPrice.Equal(decimal.NewFromInt(100)))
	// (110-100)*40 = 400
	assert.True(t, pos.RealizedPL.Equal(decimal.NewFromInt(400)), "pnl = %s", pos.RealizedPL)
}

func TestPositionFullCloseAndFlip(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-1", 100)
	_, err := tr.ApplyFill(fill("c-1", exchange.SideTypeBuy, 100, 100))
	require.NoError(t, err)

	// 全平
	trackOrder(t, tr, "c-2", 100)
	res, err := tr.ApplyFill(fill("c-2", exchange.SideTypeSell, 90, 100))
	require.NoError(t, err)
	assert.True(t, res.PositionClosed)
	pos, _ := tr.Position("BTCUSD")
	assert.True(t, pos.Size.IsZero())
	assert.True(t, pos.AvgPrice.IsZero())
	assert.True(t, pos.RealizedPL.Equal(decimal.NewFromInt(-1000)))

	// 反向穿越零点: 先平后开
	trackOrder(t, tr, "c-3", 150)
	_, err = tr.ApplyFill(fill("c-3", exchange.SideTypeBuy, 95, 150))
	require.NoError(t, err)
	trackOrder(t, tr, "c-4", 250)
	res, err = tr.ApplyFill(fill("c-4", exchange.SideTypeSell, 105, 250))
	require.NoError(t, err)
	assert.True(t, res.PositionClosed)
	assert.True(t, res.PositionOpened)

	pos, _ = tr.Position("BTCUSD")
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(-100)), "size = %s", pos.Size)
	// 剩余空头以本笔成交价开仓
	assert.True(t, pos.AvgPrice.Equal(decimal.NewFromInt(105)))
}

func TestShortPositionPnl(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-1", 50)
	_, err := tr.ApplyFill(fill("c-1", exchange.SideTypeSell, 200, 50))
	require.NoError(t, err)

	trackOrder(t, tr, "c-2", 50)
	_, err = tr.ApplyFill(fill("c-2", exchange.SideTypeBuy, 180, 50))
	require.NoError(t, err)

	pos, _ := tr.Position("BTCUSD")
	assert.True(t, pos.Size.IsZero())
	// 空头回补: (200-180)*50 = 1000
	assert.True(t, pos.RealizedPL.Equal(decimal.NewFromInt(1000)), "pnl = %s", pos.RealizedPL)
}

// 归属未知的成交暂存, 绑定后回放
func TestUnknownFillDeferred(t *testing.T) {
	tr := newTestTracker()

	res, err := tr.ApplyFill(&exchange.Fill{
		OrderID: "v-9",
		Symbol:  "BTCUSD",
		Side:    exchange.SideTypeBuy,
		Price:   decimal.NewFromInt(100),
		Size:    decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.True(t, res.Deferred)
	assert.Equal(t, 1, tr.PendingFillCount())

	_, ok := tr.Position("BTCUSD")
	assert.False(t, ok)

	fills := tr.DrainPendingFills("v-9")
	require.Len(t, fills, 1)
	assert.Equal(t, 0, tr.PendingFillCount())
}

// 断连清理保留终态订单, 丢弃在途订单与暂存成交
func TestClearTransient(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-done", 10)
	require.NoError(t, tr.BindVenueID("c-done", "v-1"))
	require.NoError(t, tr.Transition("c-done", exchange.OrderStateCanceled))
	trackOrder(t, tr, "c-open", 10)
	require.NoError(t, tr.BindVenueID("c-open", "v-2"))

	tr.ClearTransient()

	_, ok := tr.Get("c-done")
	assert.True(t, ok)
	_, ok = tr.Get("c-open")
	assert.False(t, ok)
	_, ok = tr.ClientByVenue("v-2")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	tr := newTestTracker()
	trackOrder(t, tr, "c-1", 100)
	_, err := tr.ApplyFill(fill("c-1", exchange.SideTypeBuy, 100, 10))
	require.NoError(t, err)

	tr.Clear()
	_, ok := tr.Get("c-1")
	assert.False(t, ok)
	_, ok = tr.Position("BTCUSD")
	assert.False(t, ok)
	assert.Empty(t, tr.OpenOrders())
}
