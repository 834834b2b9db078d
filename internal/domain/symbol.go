package domain

import (
	"fmt"
	"strings"
)

// Symbol identifies a tradable crypto asset quoted against USDT (e.g. "BTC").
type Symbol string

// DefaultSymbols is the symbol set used when the configuration does not
// override it.
var DefaultSymbols = []Symbol{"BTC", "ETH", "SOL", "DOGE"}

// QuoteAsset is the quote currency every symbol trades against.
const QuoteAsset = "USDT"

// ParseSymbol normalizes s (trim, upper-case, strip a trailing USDT) and
// returns it as a Symbol. It does not check membership in a session's set.
func ParseSymbol(s string) (Symbol, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, QuoteAsset)
	if s == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrUnknownSymbol)
	}
	return Symbol(s), nil
}

// Pair returns the exchange pair name, e.g. "BTCUSDT".
func (s Symbol) Pair() string {
	return string(s) + QuoteAsset
}

// SymbolSet is the immutable set of symbols supported for a session.
type SymbolSet struct {
	ordered []Symbol
	index   map[Symbol]struct{}
}

// NewSymbolSet builds a SymbolSet, dropping duplicates while keeping order.
func NewSymbolSet(symbols []Symbol) SymbolSet {
	set := SymbolSet{index: make(map[Symbol]struct{}, len(symbols))}
	for _, s := range symbols {
		if _, dup := set.index[s]; dup {
			continue
		}
		set.index[s] = struct{}{}
		set.ordered = append(set.ordered, s)
	}
	return set
}

// Contains reports whether sym is part of the set.
func (s SymbolSet) Contains(sym Symbol) bool {
	_, ok := s.index[sym]
	return ok
}

// List returns a copy of the symbols in configuration order.
func (s SymbolSet) List() []Symbol {
	out := make([]Symbol, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of symbols in the set.
func (s SymbolSet) Len() int {
	return len(s.ordered)
}
