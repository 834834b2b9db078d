package domain

import "github.com/shopspring/decimal"

// Asset is the holding of a single symbol. AverageEntryPrice is only
// meaningful while Balance is positive; it keeps its last value at zero.
type Asset struct {
	Symbol            Symbol          `json:"symbol"`
	Balance           decimal.Decimal `json:"balance"`
	AverageEntryPrice decimal.Decimal `json:"average_entry_price"`
}

// Portfolio is the simulated account: free cash plus one Asset entry per
// supported symbol.
type Portfolio struct {
	CashBalance decimal.Decimal  `json:"cash_balance"`
	Assets      map[Symbol]Asset `json:"assets"`
}

// Clone returns a deep copy of the portfolio.
func (p Portfolio) Clone() Portfolio {
	out := Portfolio{
		CashBalance: p.CashBalance,
		Assets:      make(map[Symbol]Asset, len(p.Assets)),
	}
	for k, v := range p.Assets {
		out.Assets[k] = v
	}
	return out
}

// Asset returns the holding for sym, or a zero-balance entry when absent.
func (p Portfolio) Asset(sym Symbol) Asset {
	if a, ok := p.Assets[sym]; ok {
		return a
	}
	return Asset{Symbol: sym}
}
