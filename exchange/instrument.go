package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InstrumentID 标的唯一标识, 形如 BTCUSD.DELTA
type InstrumentID struct {
	Symbol string
	Venue  string
}

func NewInstrumentID(symbol, venue string) InstrumentID {
	return InstrumentID{Symbol: symbol, Venue: venue}
}

func (id InstrumentID) String() string {
	return fmt.Sprintf("%s.%s", id.Symbol, id.Venue)
}

func (id InstrumentID) IsZero() bool {
	return id.Symbol == "" && id.Venue == ""
}

type Instrument struct {
	ID InstrumentID
	// RawSymbol 交易所原始交易对名称
	RawSymbol string
	// BaseAsset 基础资产
	BaseAsset string
	// QuoteAsset 计价资产
	QuoteAsset string
	// SettleAsset 结算资产
	SettleAsset string
	// Type 种类: SPOT, FUTURES, PERPETUAL
	Type InstrumentType
	// Status 交易状态
	Status TransactionStatus
	// ContractValue 合约面值
	ContractValue decimal.Decimal
	// TickSize 最小报价单位
	TickSize decimal.Decimal
	// LotSize 最小下单单位
	LotSize decimal.Decimal
	// MinSize 最小头寸
	MinSize decimal.Decimal
	// MaxSize 最大头寸
	MaxSize decimal.Decimal
	// PricePrecision 价格精度
	PricePrecision int32
	// SizePrecision 头寸精度
	SizePrecision int32
	// MakerFeeRate 挂单费率
	MakerFeeRate decimal.Decimal
	// TakerFeeRate 吃单费率
	TakerFeeRate decimal.Decimal
	// ExpiryTime 到期时间, 永续为 0
	ExpiryTime int64
}

// barResolutions K线周期秒数与交易所周期名的映射
var barResolutions = map[int64]string{
	60:     "1m",
	180:    "3m",
	300:    "5m",
	900:    "15m",
	1800:   "30m",
	3600:   "1h",
	7200:   "2h",
	14400:  "4h",
	21600:  "6h",
	86400:  "1d",
	604800: "1w",
}

// BarResolution 未知周期回退为 1h
func BarResolution(seconds int64) string {
	if r, ok := barResolutions[seconds]; ok {
		return r
	}
	return "1h"
}
