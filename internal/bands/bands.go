// Package bands implements BandSet validation and band algebra: a
// reloadable set of per-side margin bands describing how far from the
// reference price the keeper should rest orders, and how much it
// should keep resting in each band.
//
// The tick-rounding/clamping idiom is generalized here from a single
// reservation-price formula to per-band margin/amount algebra, using
// the same struct-tag + Validate() convention as the rest of this
// codebase's document types.
package bands

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/internal/limits"
	"github.com/marketkeeper/keeper/pkg/types"
)

// Band is one margin/amount rung on one side of the book.
type Band struct {
	MinMargin  decimal.Decimal `json:"minMargin" mapstructure:"minMargin"`
	AvgMargin  decimal.Decimal `json:"avgMargin" mapstructure:"avgMargin"`
	MaxMargin  decimal.Decimal `json:"maxMargin" mapstructure:"maxMargin"`
	MinAmount  decimal.Decimal `json:"minAmount" mapstructure:"minAmount"`
	AvgAmount  decimal.Decimal `json:"avgAmount" mapstructure:"avgAmount"`
	MaxAmount  decimal.Decimal `json:"maxAmount" mapstructure:"maxAmount"`
	DustCutoff decimal.Decimal `json:"dustCutoff" mapstructure:"dustCutoff"`
}

// contains reports whether margin falls in this band's interval under the
// fixed right-closed, left-open convention: (MinMargin, MaxMargin].
func (b Band) contains(margin decimal.Decimal) bool {
	return margin.GreaterThan(b.MinMargin) && margin.LessThanOrEqual(b.MaxMargin)
}

// BandSet is one fully-validated snapshot of the bands configuration
// artifact: per-side bands plus per-side limit rules.
type BandSet struct {
	BuyBands  []Band `json:"buyBands" mapstructure:"buyBands"`
	SellBands []Band `json:"sellBands" mapstructure:"sellBands"`
	BuyLimits  []limits.Rule
	SellLimits []limits.Rule
}

func (bs BandSet) bandsFor(side types.Side) []Band {
	if side == types.Buy {
		return bs.BuyBands
	}
	return bs.SellBands
}

// Validate enforces the once-per-snapshot checks: monotone margins and
// amounts within each band, non-negative dust cutoff, and
// non-overlapping margin intervals per side. A snapshot failing any of
// these is rejected wholesale, never partially applied.
func Validate(bs BandSet) error {
	if err := validateSide(types.Buy, bs.BuyBands); err != nil {
		return err
	}
	if err := validateSide(types.Sell, bs.SellBands); err != nil {
		return err
	}
	return nil
}

func validateSide(side types.Side, bs []Band) error {
	for i, b := range bs {
		if !(b.MinMargin.LessThanOrEqual(b.AvgMargin) && b.AvgMargin.LessThanOrEqual(b.MaxMargin)) {
			return fmt.Errorf("bands: %s band %d: margins not monotone (min=%s avg=%s max=%s)",
				side, i, b.MinMargin, b.AvgMargin, b.MaxMargin)
		}
		if !(b.MinAmount.LessThanOrEqual(b.AvgAmount) && b.AvgAmount.LessThanOrEqual(b.MaxAmount)) {
			return fmt.Errorf("bands: %s band %d: amounts not monotone (min=%s avg=%s max=%s)",
				side, i, b.MinAmount, b.AvgAmount, b.MaxAmount)
		}
		if b.DustCutoff.IsNegative() {
			return fmt.Errorf("bands: %s band %d: negative dustCutoff %s", side, i, b.DustCutoff)
		}
	}
	for i := 0; i < len(bs); i++ {
		for j := i + 1; j < len(bs); j++ {
			if intervalsOverlap(bs[i], bs[j]) {
				return fmt.Errorf("bands: %s bands %d and %d overlap", side, i, j)
			}
		}
	}
	return nil
}

func intervalsOverlap(a, b Band) bool {
	return a.MinMargin.LessThan(b.MaxMargin) && b.MinMargin.LessThan(a.MaxMargin)
}

// Excessive reports whether order's margin from p lies outside every band
// of its side.
func (bs BandSet) Excessive(order types.Order, p decimal.Decimal) bool {
	margin := order.Margin(p)
	for _, b := range bs.bandsFor(order.Side) {
		if b.contains(margin) {
			return false
		}
	}
	return true
}

// AssignBand returns the index of the unique band whose margin interval
// contains order's margin, or -1 if none does (which Excessive would
// already have flagged as excessive).
func (bs BandSet) AssignBand(order types.Order, p decimal.Decimal) int {
	margin := order.Margin(p)
	for i, b := range bs.bandsFor(order.Side) {
		if b.contains(margin) {
			return i
		}
	}
	return -1
}

// TotalAmount sums the side-denominated amount of every order in orders
// that AssignBand places in band bandIdx of side.
func TotalAmount(bs BandSet, side types.Side, bandIdx int, orders []types.Order, p decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		if o.Side != side {
			continue
		}
		if bs.AssignBand(o, p) == bandIdx {
			total = total.Add(o.Amount())
		}
	}
	return total
}

// NewOrder returns, at most, one synthetic order that would bring band
// bandIdx's total_amount up toward avgAmount, clamped by
// availableBalance and limitsAvailable, or ok=false if nothing should
// be placed this cycle. The clamped amount is rejected if it falls
// below the band's own dustCutoff or below minAmount, the exchange
// adapter's own placement floor for this side.
func NewOrder(bs BandSet, side types.Side, bandIdx int, orders []types.Order, availableBalance, limitsAvailable, minAmount, p decimal.Decimal) (types.PlaceIntent, bool) {
	bandList := bs.bandsFor(side)
	if bandIdx < 0 || bandIdx >= len(bandList) {
		return types.PlaceIntent{}, false
	}
	band := bandList[bandIdx]

	current := TotalAmount(bs, side, bandIdx, orders, p)
	gap := band.AvgAmount.Sub(current)
	if !gap.IsPositive() {
		return types.PlaceIntent{}, false
	}

	amount := gap
	if amount.GreaterThan(availableBalance) {
		amount = availableBalance
	}
	if amount.GreaterThan(limitsAvailable) {
		amount = limitsAvailable
	}
	floor := band.DustCutoff
	if minAmount.GreaterThan(floor) {
		floor = minAmount
	}
	if amount.LessThan(floor) || !amount.IsPositive() {
		return types.PlaceIntent{}, false
	}

	price := avgPrice(side, band.AvgMargin, p)
	intent := types.PlaceIntent{Side: side, Price: price}
	switch side {
	case types.Buy:
		intent.BuyAmount = amount
		intent.SellAmount = amount.Div(price)
	default:
		intent.SellAmount = amount
		intent.BuyAmount = amount.Mul(price)
	}
	return intent, true
}

// avgPrice computes p*(1-avgMargin) for buy, p*(1+avgMargin) for sell.
func avgPrice(side types.Side, avgMargin, p decimal.Decimal) decimal.Decimal {
	if side == types.Buy {
		return p.Mul(decimal.NewFromInt(1).Sub(avgMargin))
	}
	return p.Mul(decimal.NewFromInt(1).Add(avgMargin))
}
