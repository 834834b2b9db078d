// Package ledger holds the simulated account (cash and per-symbol holdings),
// the append-only order history and the advisory log of the automation loop.
//
// Mutating methods are meant to be driven by the execution engine only; the
// engine serializes check-and-commit sequences. Read methods are safe to call
// from any goroutine and always return copies.
package ledger

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// Ledger owns the cash balance and asset balances of one paper account.
type Ledger struct {
	symbols     domain.SymbolSet
	initialCash decimal.Decimal
	portfolio   domain.Portfolio
	mu          sync.RWMutex
}

// New creates a Ledger holding initialCash and a zero balance for every
// supported symbol.
func New(symbols domain.SymbolSet, initialCash decimal.Decimal) *Ledger {
	l := &Ledger{
		symbols:     symbols,
		initialCash: initialCash,
		portfolio: domain.Portfolio{
			CashBalance: initialCash,
			Assets:      make(map[domain.Symbol]domain.Asset, symbols.Len()),
		},
	}
	for _, s := range symbols.List() {
		l.portfolio.Assets[s] = domain.Asset{Symbol: s}
	}
	return l
}

// InitialCash returns the session's starting cash, the baseline for P&L.
func (l *Ledger) InitialCash() decimal.Decimal {
	return l.initialCash
}

// ReserveCheck validates a fill without mutating anything. A BUY needs
// amount*price <= cash; a SELL needs amount <= balance.
func (l *Ledger) ReserveCheck(side domain.OrderSide, symbol domain.Symbol, amount, price decimal.Decimal) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.check(side, symbol, amount, price)
}

func (l *Ledger) check(side domain.OrderSide, symbol domain.Symbol, amount, price decimal.Decimal) error {
	asset, ok := l.portfolio.Assets[symbol]
	if !ok {
		return domain.ErrUnknownSymbol
	}
	switch side {
	case domain.OrderSideBuy:
		if amount.Mul(price).GreaterThan(l.portfolio.CashBalance) {
			return domain.ErrInsufficientFunds
		}
	case domain.OrderSideSell:
		if amount.GreaterThan(asset.Balance) {
			return domain.ErrInsufficientAsset
		}
	default:
		return domain.ErrInvalidOrder
	}
	return nil
}

// Commit applies a fill that the caller has already validated and returns
// the resulting portfolio. A BUY re-weights the average entry price; a SELL
// leaves it untouched. Commit refuses (and leaves the ledger unchanged) only
// when applying the fill would break a ledger invariant, which indicates a
// bug in the caller.
func (l *Ledger) Commit(side domain.OrderSide, symbol domain.Symbol, amount, price decimal.Decimal) (domain.Portfolio, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	asset, ok := l.portfolio.Assets[symbol]
	if !ok {
		return domain.Portfolio{}, fmt.Errorf("ledger: commit: %w: %s", domain.ErrUnknownSymbol, symbol)
	}

	total := amount.Mul(price)
	cash := l.portfolio.CashBalance

	switch side {
	case domain.OrderSideBuy:
		cash = cash.Sub(total)
		newBalance := asset.Balance.Add(amount)
		if newBalance.IsPositive() {
			asset.AverageEntryPrice = asset.Balance.Mul(asset.AverageEntryPrice).Add(total).Div(newBalance)
		}
		asset.Balance = newBalance
	case domain.OrderSideSell:
		cash = cash.Add(total)
		asset.Balance = asset.Balance.Sub(amount)
	default:
		return domain.Portfolio{}, fmt.Errorf("ledger: commit: %w: side %q", domain.ErrInvalidOrder, side)
	}

	if cash.IsNegative() || asset.Balance.IsNegative() {
		return domain.Portfolio{}, fmt.Errorf("ledger: commit %s %s %s@%s would leave a negative balance",
			side, amount, symbol, price)
	}

	l.portfolio.CashBalance = cash
	l.portfolio.Assets[symbol] = asset
	return l.portfolio.Clone(), nil
}

// Restore replaces the ledger state with a previous snapshot. The engine uses
// it to undo a commit whose order record could not be written.
func (l *Ledger) Restore(p domain.Portfolio) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.portfolio = p.Clone()
}

// Snapshot returns a deep copy of the current portfolio.
func (l *Ledger) Snapshot() domain.Portfolio {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.portfolio.Clone()
}

// ValueOf returns cash plus every balance marked at the given prices.
// Symbols without a price contribute nothing.
func (l *Ledger) ValueOf(prices map[domain.Symbol]decimal.Decimal) decimal.Decimal {
	return ValueOf(l.Snapshot(), prices)
}

// ValueOf marks a portfolio snapshot to market.
func ValueOf(p domain.Portfolio, prices map[domain.Symbol]decimal.Decimal) decimal.Decimal {
	total := p.CashBalance
	for sym, a := range p.Assets {
		if px, ok := prices[sym]; ok {
			total = total.Add(a.Balance.Mul(px))
		}
	}
	return total
}
