package service

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/ledger"
)

// PriceBook exposes the latest quotes. *market.PriceStore satisfies it.
type PriceBook interface {
	Price(symbol domain.Symbol) decimal.Decimal
	Prices() map[domain.Symbol]decimal.Decimal
}

// AssetView is one holding marked to market.
type AssetView struct {
	Symbol            domain.Symbol   `json:"symbol"`
	Balance           decimal.Decimal `json:"balance"`
	AverageEntryPrice decimal.Decimal `json:"average_entry_price"`
	Price             decimal.Decimal `json:"price"`
	MarketValue       decimal.Decimal `json:"market_value"`
	UnrealizedPnL     decimal.Decimal `json:"unrealized_pnl"`
	PriceKnown        bool            `json:"price_known"`
}

// PortfolioView is the valued portfolio returned to clients.
type PortfolioView struct {
	CashBalance decimal.Decimal `json:"cash_balance"`
	Assets      []AssetView     `json:"assets"`
	TotalValue  decimal.Decimal `json:"total_value"`
	InitialCash decimal.Decimal `json:"initial_cash"`
	PnL         decimal.Decimal `json:"pnl"`
	PnLPercent  decimal.Decimal `json:"pnl_percent"`
}

var hundred = decimal.NewFromInt(100)

// PortfolioService values the ledger at current prices.
type PortfolioService struct {
	ledger  *ledger.Ledger
	prices  PriceBook
	symbols domain.SymbolSet
}

// NewPortfolioService creates a PortfolioService.
func NewPortfolioService(l *ledger.Ledger, prices PriceBook, symbols domain.SymbolSet) *PortfolioService {
	return &PortfolioService{ledger: l, prices: prices, symbols: symbols}
}

// View returns cash, every configured asset marked to market, the total
// value and P&L against the initial cash. Assets with an unknown price
// contribute nothing to the total.
func (s *PortfolioService) View() PortfolioView {
	p := s.ledger.Snapshot()
	prices := s.prices.Prices()

	known := make(map[domain.Symbol]decimal.Decimal, len(prices))
	for sym, px := range prices {
		if px.IsPositive() {
			known[sym] = px
		}
	}

	view := PortfolioView{
		CashBalance: p.CashBalance,
		InitialCash: s.ledger.InitialCash(),
		TotalValue:  ledger.ValueOf(p, known),
	}
	for _, sym := range s.symbols.List() {
		a := p.Asset(sym)
		px, ok := known[sym]
		av := AssetView{
			Symbol:            sym,
			Balance:           a.Balance,
			AverageEntryPrice: a.AverageEntryPrice,
			Price:             px,
			PriceKnown:        ok,
		}
		if ok {
			av.MarketValue = a.Balance.Mul(px)
			av.UnrealizedPnL = px.Sub(a.AverageEntryPrice).Mul(a.Balance)
		}
		view.Assets = append(view.Assets, av)
	}

	view.PnL = view.TotalValue.Sub(view.InitialCash)
	if view.InitialCash.IsPositive() {
		view.PnLPercent = view.PnL.Div(view.InitialCash).Mul(hundred).Round(4)
	}
	return view
}
