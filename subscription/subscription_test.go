package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-gotop/deltex/exchange"
)

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	btc := exchange.NewInstrumentID("BTCUSD", exchange.DeltaExchange)

	assert.True(t, r.Add(KindQuote, btc, "BTCUSD", ""))
	// 重复添加幂等
	assert.False(t, r.Add(KindQuote, btc, "BTCUSD", ""))
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Has(KindQuote, btc))

	id, ok := r.Resolve("BTCUSD")
	assert.True(t, ok)
	assert.Equal(t, btc, id)

	assert.True(t, r.Remove(KindQuote, btc))
	assert.False(t, r.Remove(KindQuote, btc))
	assert.False(t, r.Has(KindQuote, btc))

	_, ok = r.Resolve("BTCUSD")
	assert.False(t, ok)
}

// 同一交易对被多个种类引用时, 删除最后一个才解除映射
func TestRegistrySymbolRefCount(t *testing.T) {
	r := NewRegistry()
	eth := exchange.NewInstrumentID("ETHUSD", exchange.DeltaExchange)

	r.Add(KindQuote, eth, "ETHUSD", "")
	r.Add(KindTrade, eth, "ETHUSD", "")

	r.Remove(KindQuote, eth)
	_, ok := r.Resolve("ETHUSD")
	assert.True(t, ok)

	r.Remove(KindTrade, eth)
	_, ok = r.Resolve("ETHUSD")
	assert.False(t, ok)
}

func TestRegistryBarResolution(t *testing.T) {
	r := NewRegistry()
	btc := exchange.NewInstrumentID("BTCUSD", exchange.DeltaExchange)

	r.Add(KindBar, btc, "BTCUSD", "1m")
	e, ok := r.Get(KindBar, btc)
	assert.True(t, ok)
	assert.Equal(t, "1m", e.Resolution)

	entries := r.ByKind(KindBar)
	assert.Len(t, entries, 1)
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	btc := exchange.NewInstrumentID("BTCUSD", exchange.DeltaExchange)
	eth := exchange.NewInstrumentID("ETHUSD", exchange.DeltaExchange)

	r.Add(KindQuote, btc, "BTCUSD", "")
	r.Add(KindTrade, eth, "ETHUSD", "")
	assert.Equal(t, 2, r.Len())

	r.Clear()
	assert.Equal(t, 0, r.Len())
	_, ok := r.Resolve("BTCUSD")
	assert.False(t, ok)
}

func TestFilterMatch(t *testing.T) {
	f := NewFilter([]string{"BTC*", "ETH*"})

	assert.True(t, f.Match("BTCUSD"))
	assert.True(t, f.Match("ETHUSD"))
	assert.False(t, f.Match("ADAUSD"))
}

// 空过滤器放行全部
func TestFilterEmpty(t *testing.T) {
	f := NewFilter(nil)

	assert.True(t, f.Match("BTCUSD"))
	assert.True(t, f.Match("ADAUSD"))
}
