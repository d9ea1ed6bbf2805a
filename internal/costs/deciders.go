// Package costs maps executions to commission and tax. Deciders are
// pure with respect to account state: they see only the instrument,
// side, price and quantity of an order or trade.
package costs

import (
	"fmt"

	"github.com/shopspring/decimal"

	"barsim/internal/errors"
	"barsim/internal/models"
)

// Decider computes the fees of trades and the cost estimate of orders.
type Decider interface {
	TradeCommission(t *models.Trade) float64
	TradeTax(t *models.Trade) float64
	// OrderCost estimates commission plus tax for a not-yet-filled
	// order, used for cash-sufficiency checks.
	OrderCost(o *models.Order) float64
}

// StockDecider implements commission-with-minimum plus sell-side tax,
// the convention for cash equity markets. The minimum commission is
// charged once per order: the first fills of an order draw the minimum
// down before marginal commission applies.
type StockDecider struct {
	CommissionRate       float64
	CommissionMultiplier float64
	MinCommission        float64
	TaxRate              float64
	TaxMultiplier        float64

	// remaining minimum-commission allowance per order id
	commissionMap map[uint64]float64
}

// NewStockDecider creates a stock decider with the given rates.
func NewStockDecider(commissionRate, commissionMultiplier, minCommission, taxRate, taxMultiplier float64) *StockDecider {
	return &StockDecider{
		CommissionRate:       commissionRate,
		CommissionMultiplier: commissionMultiplier,
		MinCommission:        minCommission,
		TaxRate:              taxRate,
		TaxMultiplier:        taxMultiplier,
		commissionMap:        make(map[uint64]float64),
	}
}

func (d *StockDecider) notional(price float64, quantity int64) float64 {
	v, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(quantity)).Float64()
	return v
}

// TradeCommission returns the commission of a fill, honoring the
// per-order minimum.
func (d *StockDecider) TradeCommission(t *models.Trade) float64 {
	remaining, seen := d.commissionMap[t.OrderID]
	if !seen {
		remaining = d.MinCommission
	}
	marginal := d.notional(t.LastPrice, t.LastQuantity) * d.CommissionRate * d.CommissionMultiplier
	if marginal > remaining {
		if remaining == d.MinCommission {
			// first fill already exceeds the minimum
			d.commissionMap[t.OrderID] = 0
			return marginal
		}
		d.commissionMap[t.OrderID] = 0
		return marginal - remaining
	}
	if remaining == d.MinCommission {
		// first fill below the minimum: charge the minimum up front
		d.commissionMap[t.OrderID] = remaining - marginal
		return remaining
	}
	d.commissionMap[t.OrderID] = remaining - marginal
	return 0
}

// TradeTax returns the tax of a fill. Tax applies to the sell side of
// common stock only.
func (d *StockDecider) TradeTax(t *models.Trade) float64 {
	if t.Side != models.SideSell {
		return 0
	}
	return d.notional(t.LastPrice, t.LastQuantity) * d.TaxRate * d.TaxMultiplier
}

// OrderCost estimates commission plus tax of the full order at its
// frozen price.
func (d *StockDecider) OrderCost(o *models.Order) float64 {
	notional := d.notional(o.FrozenPrice(), o.Quantity())
	commission := notional * d.CommissionRate * d.CommissionMultiplier
	if commission < d.MinCommission {
		commission = d.MinCommission
	}
	tax := 0.0
	if o.Side() == models.SideSell {
		tax = notional * d.TaxRate * d.TaxMultiplier
	}
	return commission + tax
}

// ZeroDecider charges nothing. Useful for frictionless experiments and
// as the explicit "no fees" configuration.
type ZeroDecider struct{}

// TradeCommission always returns 0.
func (ZeroDecider) TradeCommission(*models.Trade) float64 { return 0 }

// TradeTax always returns 0.
func (ZeroDecider) TradeTax(*models.Trade) float64 { return 0 }

// OrderCost always returns 0.
func (ZeroDecider) OrderCost(*models.Order) float64 { return 0 }

// Registry resolves the decider for an instrument kind. A missing
// registration for an observed kind is a configuration error.
type Registry struct {
	deciders map[models.InstrumentKind]Decider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{deciders: make(map[models.InstrumentKind]Decider)}
}

// DefaultRegistry covers the equity instrument kinds with the usual
// cash-market fees: 8bps commission with a 5 minimum, plus 10bps
// sell-side tax on common stock only.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(models.KindCommonStock, NewStockDecider(0.0008, 1, 5, 0.001, 1))
	r.Register(models.KindETF, NewStockDecider(0.0008, 1, 5, 0, 0))
	r.Register(models.KindIndex, ZeroDecider{})
	return r
}

// Register binds a decider to an instrument kind.
func (r *Registry) Register(k models.InstrumentKind, d Decider) {
	r.deciders[k] = d
}

// Decider returns the decider for the kind.
func (r *Registry) Decider(k models.InstrumentKind) (Decider, error) {
	d, ok := r.deciders[k]
	if !ok {
		return nil, errors.NewConfigError(
			fmt.Sprintf("instrument kind %q", k), errors.ErrNoCostDecider)
	}
	return d, nil
}
