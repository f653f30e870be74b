package instrument

import (
	"context"

	"github.com/go-gotop/deltex/exchange"
)

// Provider 标的定义的加载与查询
type Provider interface {
	// LoadAll 拉取全部标的定义
	LoadAll(ctx context.Context) error
	// LoadIDs 只拉取指定标的
	LoadIDs(ctx context.Context, ids []exchange.InstrumentID) error
	Get(id exchange.InstrumentID) (exchange.Instrument, bool)
	// GetByRawSymbol 按交易所原始交易对查询
	GetByRawSymbol(raw string) (exchange.Instrument, bool)
	ListAll() []exchange.Instrument
	Count() int
}
