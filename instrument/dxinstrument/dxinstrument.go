package dxinstrument

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/instrument"
	"github.com/go-gotop/deltex/requests/dehttp"
)

var _ instrument.Provider = (*DeltaProvider)(nil)

const productsCacheKey = "deltex:products"

type DeltaProvider struct {
	opts   *options
	client *dehttp.Client
	logger *log.Helper

	mux      sync.RWMutex
	byID     map[exchange.InstrumentID]exchange.Instrument
	bySymbol map[string]exchange.Instrument
}

func NewDeltaProvider(client *dehttp.Client, opts ...Option) *DeltaProvider {
	o := &options{
		logger:   log.NewHelper(log.DefaultLogger),
		cacheTTL: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &DeltaProvider{
		opts:     o,
		client:   client,
		logger:   o.logger,
		byID:     make(map[exchange.InstrumentID]exchange.Instrument),
		bySymbol: make(map[string]exchange.Instrument),
	}
}

func (p *DeltaProvider) LoadAll(ctx context.Context) error {
	data, fromCache, err := p.fetchProducts(ctx)
	if err != nil {
		return err
	}

	var res productsResponse
	if err := dehttp.Json.Unmarshal(data, &res); err != nil {
		return err
	}

	instruments := make([]exchange.Instrument, 0, len(res.Result))
	for _, prod := range res.Result {
		inst, err := toInstrument(&prod)
		if err != nil {
			p.logger.Warnf("skip product %s: %v", prod.Symbol, err)
			continue
		}
		instruments = append(instruments, inst)
	}

	p.mux.Lock()
	p.byID = make(map[exchange.InstrumentID]exchange.Instrument, len(instruments))
	p.bySymbol = make(map[string]exchange.Instrument, len(instruments))
	for _, inst := range instruments {
		p.byID[inst.ID] = inst
		p.bySymbol[inst.RawSymbol] = inst
	}
	p.mux.Unlock()

	if !fromCache {
		p.cacheProducts(ctx, data)
	}
	return nil
}

func (p *DeltaProvider) LoadIDs(ctx context.Context, ids []exchange.InstrumentID) error {
	if err := p.LoadAll(ctx); err != nil {
		return err
	}
	wanted := make(map[exchange.InstrumentID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	p.mux.Lock()
	defer p.mux.Unlock()
	for id, inst := range p.byID {
		if _, ok := wanted[id]; !ok {
			delete(p.byID, id)
			delete(p.bySymbol, inst.RawSymbol)
		}
	}
	return nil
}

func (p *DeltaProvider) Get(id exchange.InstrumentID) (exchange.Instrument, bool) {
	p.mux.RLock()
	defer p.mux.RUnlock()
	inst, ok := p.byID[id]
	return inst, ok
}

func (p *DeltaProvider) GetByRawSymbol(raw string) (exchange.Instrument, bool) {
	p.mux.RLock()
	defer p.mux.RUnlock()
	inst, ok := p.bySymbol[raw]
	return inst, ok
}

func (p *DeltaProvider) ListAll() []exchange.Instrument {
	p.mux.RLock()
	defer p.mux.RUnlock()
	instruments := make([]exchange.Instrument, 0, len(p.byID))
	for _, inst := range p.byID {
		instruments = append(instruments, inst)
	}
	return instruments
}

func (p *DeltaProvider) Count() int {
	p.mux.RLock()
	defer p.mux.RUnlock()
	return len(p.byID)
}

// fetchProducts 优先读 redis 缓存, 未命中走 REST 并回写
func (p *DeltaProvider) fetchProducts(ctx context.Context) (data []byte, fromCache bool, err error) {
	if p.opts.redisClient != nil {
		cached, err := p.opts.redisClient.Get(ctx, productsCacheKey).Bytes()
		if err == nil && len(cached) > 0 {
			return cached, true, nil
		}
		if err != nil && err != redis.Nil {
			p.logger.Warnf("products cache read failed: %v", err)
		}
	}

	r := &dehttp.Request{
		Method:   http.MethodGet,
		Endpoint: "/v2/products",
		SecType:  dehttp.SecTypeNone,
	}
	data, err = p.client.CallAPI(ctx, r)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func (p *DeltaProvider) cacheProducts(ctx context.Context, data []byte) {
	if p.opts.redisClient == nil {
		return
	}
	if err := p.opts.redisClient.Set(ctx, productsCacheKey, data, p.opts.cacheTTL).Err(); err != nil {
		p.logger.Warnf("products cache write failed: %v", err)
	}
}

type productsResponse struct {
	Success bool      `json:"success"`
	Result  []product `json:"result"`
}

type product struct {
	ID            int64  `json:"id"`
	Symbol        string `json:"symbol"`
	ContractType  string `json:"contract_type"`
	TradingStatus string `json:"trading_status"`
	TickSize      string `json:"tick_size"`
	ContractValue string `json:"contract_value"`
	MakerRate     string `json:"maker_commission_rate"`
	TakerRate     string `json:"taker_commission_rate"`
	MinSize       string `json:"min_size"`
	MaxSize       string `json:"position_size_limit"`
	SettlementAt  string `json:"settlement_time"`
	Underlying    asset  `json:"underlying_asset"`
	Quoting       asset  `json:"quoting_asset"`
	Settling      asset  `json:"settling_asset"`
}

type asset struct {
	Symbol string `json:"symbol"`
}

func toInstrument(prod *product) (exchange.Instrument, error) {
	tickSize, err := decimal.NewFromString(prod.TickSize)
	if err != nil {
		return exchange.Instrument{}, err
	}
	contractValue, err := decimal.NewFromString(prod.ContractValue)
	if err != nil {
		return exchange.Instrument{}, err
	}
	makerRate, err := decimal.NewFromString(prod.MakerRate)
	if err != nil {
		return exchange.Instrument{}, err
	}
	takerRate, err := decimal.NewFromString(prod.TakerRate)
	if err != nil {
		return exchange.Instrument{}, err
	}
	minSize := decimal.NewFromInt(1)
	if prod.MinSize != "" {
		if v, err := decimal.NewFromString(prod.MinSize); err == nil {
			minSize = v
		}
	}
	maxSize := decimal.Zero
	if prod.MaxSize != "" {
		if v, err := decimal.NewFromString(prod.MaxSize); err == nil {
			maxSize = v
		}
	}

	instType := exchange.InstrumentTypeFutures
	switch prod.ContractType {
	case "perpetual_futures":
		instType = exchange.InstrumentTypePerpetual
	case "spot":
		instType = exchange.InstrumentTypeSpot
	}

	status := exchange.TransactionStatusTrading
	if prod.TradingStatus != "operational" {
		status = exchange.TransactionStatusSuspend
	}

	var expiry int64
	if prod.SettlementAt != "" {
		if ts, err := time.Parse(time.RFC3339, prod.SettlementAt); err == nil {
			expiry = ts.UnixMilli()
		}
	}

	return exchange.Instrument{
		ID:             exchange.NewInstrumentID(prod.Symbol, exchange.DeltaExchange),
		RawSymbol:      prod.Symbol,
		BaseAsset:      prod.Underlying.Symbol,
		QuoteAsset:     prod.Quoting.Symbol,
		SettleAsset:    prod.Settling.Symbol,
		Type:           instType,
		Status:         status,
		ContractValue:  contractValue,
		TickSize:       tickSize,
		LotSize:        minSize,
		MinSize:        minSize,
		MaxSize:        maxSize,
		PricePrecision: -tickSize.Exponent(),
		SizePrecision:  0,
		MakerFeeRate:   makerRate,
		TakerFeeRate:   takerRate,
		ExpiryTime:     expiry,
	}, nil
}
