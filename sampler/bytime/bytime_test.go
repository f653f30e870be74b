package bytime

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-gotop/deltex/exchange"
)

func trade(at int64, price, size string, side exchange.SideType) *exchange.TradeEvent {
	p, _ := decimal.NewFromString(price)
	s, _ := decimal.NewFromString(size)
	return &exchange.TradeEvent{
		TradedAt: at,
		Symbol:   "BTCUSD",
		Exchange: exchange.DeltaExchange,
		Price:    p,
		Size:     s,
		Side:     side,
	}
}

func TestSampleBucketing(t *testing.T) {
	s := NewByTime(1000)

	// 第一笔开桶
	assert.Nil(t, s.Sample(trade(1000, "100", "1", exchange.SideTypeBuy)))
	// 同一桶内聚合
	assert.Nil(t, s.Sample(trade(1500, "105", "2", exchange.SideTypeSell)))
	assert.Nil(t, s.Sample(trade(1900, "95", "1", exchange.SideTypeBuy)))

	// 跨桶时返回上一桶
	agg := s.Sample(trade(2100, "101", "1", exchange.SideTypeBuy))
	require.NotNil(t, agg)

	assert.Equal(t, "BTCUSD", agg.Symbol)
	assert.Equal(t, int64(1000), agg.Timestamp)
	assert.Equal(t, uint64(2), agg.BuyCount)
	assert.Equal(t, uint64(1), agg.SellCount)
	assert.Equal(t, "100", agg.OpenPrice.Price.String())
	assert.Equal(t, "95", agg.ClosePrice.Price.String())
	assert.Equal(t, "105", agg.HighestPrice.Price.String())
	assert.Equal(t, "95", agg.LowestPrice.Price.String())
	assert.Equal(t, "2", agg.TotalBuySize.String())
	assert.Equal(t, "2", agg.TotalSellSize.String())
}

func TestSampleSingleTradeBucket(t *testing.T) {
	s := NewByTime(1000)

	assert.Nil(t, s.Sample(trade(1000, "100", "1", exchange.SideTypeBuy)))
	agg := s.Sample(trade(2500, "101", "1", exchange.SideTypeSell))
	require.NotNil(t, agg)
	assert.Equal(t, "100", agg.OpenPrice.Price.String())
	assert.Equal(t, "100", agg.ClosePrice.Price.String())
}

func TestTimestampMod(t *testing.T) {
	assert.Equal(t, int64(500), timestampMod(1500, 1000))
	assert.Equal(t, int64(0), timestampMod(1000, 1000))
}
