package bytime

import (
	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/sampler"
)

// NewByTime 按固定毫秒窗口聚合逐笔成交, 窗口起点对齐到
// 窗口长度的整数倍, 跨窗的首笔成交触发上一窗口的产出。
func NewByTime(ms int64) sampler.Sampler {
	return &window{size: ms}
}

type window struct {
	size int64
	cur  *sampler.AggregatedTrade
}

func windowStart(ts, size int64) int64 {
	return ts - ts%size
}

func pricePoint(te *exchange.TradeEvent) sampler.PricePoint {
	return sampler.PricePoint{
		Timestamp: te.TradedAt,
		Price:     te.Price,
	}
}

func newBucket(te *exchange.TradeEvent, size int64) *sampler.AggregatedTrade {
	agg := &sampler.AggregatedTrade{
		Symbol:       te.Symbol,
		Timestamp:    windowStart(te.TradedAt, size),
		OpenPrice:    pricePoint(te),
		ClosePrice:   pricePoint(te),
		HighestPrice: pricePoint(te),
		LowestPrice:  pricePoint(te),
	}
	quote := te.Price.Mul(te.Size)
	if te.Side == exchange.SideTypeBuy {
		agg.TotalBuyQuote = quote
		agg.TotalBuySize = te.Size
		agg.BuyCount = 1
	} else {
		agg.TotalSellQuote = quote
		agg.TotalSellSize = te.Size
		agg.SellCount = 1
	}
	return agg
}

func (w *window) Sample(te *exchange.TradeEvent) *sampler.AggregatedTrade {
	if w.cur == nil {
		w.cur = newBucket(te, w.size)
		return nil
	}
	if te.TradedAt >= w.cur.Timestamp+w.size {
		done := w.cur
		w.cur = newBucket(te, w.size)
		return done
	}
	w.fold(te)
	return nil
}

func (w *window) fold(te *exchange.TradeEvent) {
	w.cur.ClosePrice = pricePoint(te)
	quote := te.Price.Mul(te.Size)
	if te.Side == exchange.SideTypeBuy {
		w.cur.BuyCount++
		w.cur.TotalBuyQuote = w.cur.TotalBuyQuote.Add(quote)
		w.cur.TotalBuySize = w.cur.TotalBuySize.Add(te.Size)
	} else {
		w.cur.SellCount++
		w.cur.TotalSellQuote = w.cur.TotalSellQuote.Add(quote)
		w.cur.TotalSellSize = w.cur.TotalSellSize.Add(te.Size)
	}
	if te.Price.GreaterThan(w.cur.HighestPrice.Price) {
		w.cur.HighestPrice = pricePoint(te)
	}
	if te.Price.LessThan(w.cur.LowestPrice.Price) {
		w.cur.LowestPrice = pricePoint(te)
	}
}
