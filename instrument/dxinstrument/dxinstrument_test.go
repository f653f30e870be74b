package dxinstrument

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/requests/dehttp"
)

type fakeTransport struct {
	body string
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(f.body)),
	}, nil
}

const productsBody = `{
	"success": true,
	"result": [
		{
			"id": 27,
			"symbol": "BTCUSD",
			"contract_type": "perpetual_futures",
			"trading_status": "operational",
			"tick_size": "0.5",
			"contract_value": "0.001",
			"maker_commission_rate": "0.0002",
			"taker_commission_rate": "0.0005",
			"underlying_asset": {"symbol": "BTC"},
			"quoting_asset": {"symbol": "USD"},
			"settling_asset": {"symbol": "USD"}
		},
		{
			"id": 3136,
			"symbol": "ETHUSD",
			"contract_type": "perpetual_futures",
			"trading_status": "disrupted_cancel_only",
			"tick_size": "0.05",
			"contract_value": "0.01",
			"maker_commission_rate": "0.0002",
			"taker_commission_rate": "0.0005",
			"underlying_asset": {"symbol": "ETH"},
			"quoting_asset": {"symbol": "USD"},
			"settling_asset": {"symbol": "USD"}
		}
	]
}`

func newTestProvider() *DeltaProvider {
	client := dehttp.NewClient(dehttp.HttpClient(&http.Client{
		Transport: &fakeTransport{body: productsBody},
	}))
	return NewDeltaProvider(client)
}

func TestLoadAll(t *testing.T) {
	p := newTestProvider()
	require.NoError(t, p.LoadAll(context.Background()))
	assert.Equal(t, 2, p.Count())

	btc, ok := p.Get(exchange.NewInstrumentID("BTCUSD", exchange.DeltaExchange))
	require.True(t, ok)
	assert.Equal(t, "BTCUSD", btc.RawSymbol)
	assert.Equal(t, exchange.InstrumentTypePerpetual, btc.Type)
	assert.Equal(t, exchange.TransactionStatusTrading, btc.Status)
	assert.Equal(t, "0.5", btc.TickSize.String())
	assert.Equal(t, int32(1), btc.PricePrecision)

	eth, ok := p.GetByRawSymbol("ETHUSD")
	require.True(t, ok)
	assert.Equal(t, exchange.TransactionStatusSuspend, eth.Status)
	assert.Equal(t, int32(2), eth.PricePrecision)
}

func TestLoadIDs(t *testing.T) {
	p := newTestProvider()
	require.NoError(t, p.LoadIDs(context.Background(), []exchange.InstrumentID{
		exchange.NewInstrumentID("BTCUSD", exchange.DeltaExchange),
	}))
	assert.Equal(t, 1, p.Count())

	_, ok := p.GetByRawSymbol("ETHUSD")
	assert.False(t, ok)
}
