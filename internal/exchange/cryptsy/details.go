package cryptsy

import (
	"github.com/shopspring/decimal"

	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// Details describes the static properties of Cryptsy.
type Details struct{}

func (Details) Name() string                  { return "Cryptsy" }
func (Details) MakeFee() decimal.Decimal      { return decimal.Zero }
func (Details) TakeFee() decimal.Decimal      { return decimal.Zero }
func (Details) Exchange() schema.ExchangeName { return schema.CRYPTSY }
func (Details) HasSelfTradePrevention() bool  { return false }

func (Details) SupportedCurrencyPairs() []schema.CurrencyPair {
	return []schema.CurrencyPair{
		{Base: schema.BTC, Quote: schema.USD},
		{Base: schema.BTC, Quote: schema.EUR},
		{Base: schema.BTC, Quote: schema.GBP},
	}
}
