package account

import (
	"math"
	"sort"

	"barsim/internal/bus"
	"barsim/internal/models"
)

// Portfolio aggregates a fixed mapping of account kind to account.
// Every aggregate value is recomputed from account and position state
// on each read; the portfolio stores only its unit bookkeeping.
type Portfolio struct {
	accounts map[models.AccountKind]*Account
	kinds    []models.AccountKind

	// units is the total value at inception; constant unless adjusted
	// externally.
	units              float64
	staticUnitNetValue float64
	lastUnitNetValue   float64
}

// NewPortfolio builds a portfolio over the given accounts. Units are
// fixed to the total starting value.
func NewPortfolio(accounts map[models.AccountKind]*Account) *Portfolio {
	p := &Portfolio{
		accounts:           accounts,
		staticUnitNetValue: 1,
		lastUnitNetValue:   1,
	}
	for kind := range accounts {
		p.kinds = append(p.kinds, kind)
	}
	sort.Slice(p.kinds, func(i, j int) bool { return p.kinds[i] < p.kinds[j] })
	for _, kind := range p.kinds {
		p.units += accounts[kind].TotalValue()
	}
	return p
}

// Register subscribes the portfolio's unit bookkeeping. Both listeners
// are prepended: the static NAV must be captured before any account
// acts on the new bar, and the last NAV before any tracker reads it.
func (p *Portfolio) Register(b *bus.Bus) {
	b.Prepend(bus.KindPreBeforeTrading, func(bus.Event) bool {
		if unv := p.UnitNetValue(); !math.IsNaN(unv) {
			p.staticUnitNetValue = unv
		} else {
			p.staticUnitNetValue = p.lastUnitNetValue
		}
		return false
	})
	b.Prepend(bus.KindPostSettlement, func(bus.Event) bool {
		p.lastUnitNetValue = p.UnitNetValue()
		return false
	})
}

// Account returns the account of the given kind, or nil.
func (p *Portfolio) Account(kind models.AccountKind) *Account {
	return p.accounts[kind]
}

// AccountForInstrument returns the account holding the instrument
// kind.
func (p *Portfolio) AccountForInstrument(kind models.InstrumentKind) *Account {
	return p.accounts[models.AccountKindFor(kind)]
}

// Accounts returns the accounts in stable kind order.
func (p *Portfolio) Accounts() []*Account {
	out := make([]*Account, 0, len(p.kinds))
	for _, kind := range p.kinds {
		out = append(out, p.accounts[kind])
	}
	return out
}

// Positions returns every position across accounts.
func (p *Portfolio) Positions() []*Position {
	var out []*Position
	for _, a := range p.Accounts() {
		out = append(out, a.Positions()...)
	}
	return out
}

// Units returns the fixed unit count.
func (p *Portfolio) Units() float64 { return p.units }

// UnitNetValue returns total value per unit, NaN when units are zero.
func (p *Portfolio) UnitNetValue() float64 {
	if p.units == 0 {
		return math.NaN()
	}
	return p.TotalValue() / p.units
}

// StaticUnitNetValue returns the NAV captured at the start of the
// current bar.
func (p *Portfolio) StaticUnitNetValue() float64 { return p.staticUnitNetValue }

// DailyReturns returns the bar return against the NAV captured at the
// start of the bar. This anchoring, not the previous close, is what
// separates same-bar from forward-bar reward attribution.
func (p *Portfolio) DailyReturns() float64 {
	if p.staticUnitNetValue == 0 {
		return math.NaN()
	}
	return p.UnitNetValue()/p.staticUnitNetValue - 1
}

// TotalReturns returns cumulative returns since inception.
func (p *Portfolio) TotalReturns() float64 { return p.UnitNetValue() - 1 }

// TotalValue returns the sum of account total values.
func (p *Portfolio) TotalValue() float64 {
	var sum float64
	for _, a := range p.Accounts() {
		sum += a.TotalValue()
	}
	return sum
}

// Cash returns the sum of available cash across accounts.
func (p *Portfolio) Cash() float64 {
	var sum float64
	for _, a := range p.Accounts() {
		sum += a.Cash()
	}
	return sum
}

// FrozenCash returns cash reserved across accounts.
func (p *Portfolio) FrozenCash() float64 {
	var sum float64
	for _, a := range p.Accounts() {
		sum += a.FrozenCash()
	}
	return sum
}

// MarketValue returns the summed market value across accounts.
func (p *Portfolio) MarketValue() float64 {
	var sum float64
	for _, a := range p.Accounts() {
		sum += a.MarketValue()
	}
	return sum
}

// TransactionCost returns today's fees across accounts.
func (p *Portfolio) TransactionCost() float64 {
	var sum float64
	for _, a := range p.Accounts() {
		sum += a.TransactionCost()
	}
	return sum
}

// DailyPnL returns today's profit across accounts.
func (p *Portfolio) DailyPnL() float64 {
	var sum float64
	for _, a := range p.Accounts() {
		sum += a.DailyPnL()
	}
	return sum
}

// PnL returns cumulative profit in cash terms.
func (p *Portfolio) PnL() float64 { return (p.UnitNetValue() - 1) * p.units }

// PortfolioState is the snapshot form of a Portfolio.
type PortfolioState struct {
	StaticUnitNetValue float64                 `json:"static_unit_net_value"`
	LastUnitNetValue   float64                 `json:"last_unit_net_value"`
	Units              float64                 `json:"units"`
	Accounts           map[string]AccountState `json:"accounts"`
}

// State captures the portfolio and its accounts as nested primitives.
func (p *Portfolio) State() PortfolioState {
	s := PortfolioState{
		StaticUnitNetValue: p.staticUnitNetValue,
		LastUnitNetValue:   p.lastUnitNetValue,
		Units:              p.units,
		Accounts:           make(map[string]AccountState, len(p.accounts)),
	}
	for _, a := range p.Accounts() {
		s.Accounts[string(a.Kind())] = a.State()
	}
	return s
}

// Restore rebuilds the portfolio from a snapshot.
func (p *Portfolio) Restore(s PortfolioState) {
	p.staticUnitNetValue = s.StaticUnitNetValue
	p.lastUnitNetValue = s.LastUnitNetValue
	if p.lastUnitNetValue == 0 {
		p.lastUnitNetValue = p.staticUnitNetValue
	}
	p.units = s.Units
	for kind, as := range s.Accounts {
		if a := p.accounts[models.AccountKind(kind)]; a != nil {
			a.Restore(as)
		}
	}
}
