// Package engine implements the BandEngine order-synthesis algorithm:
// cancel excessive orders, cancel overfilled-band excess, place
// shortfalls, and emit the union.
//
// Diffs active orders against desired quotes with cancel-then-place
// ordering, generalized from a single bid/ask pair to N bands per side.
// The orchestrator role (market discovery, goroutine wiring, dashboard
// plumbing) belongs to internal/control; this package holds only the
// pure synthesis algorithm.
package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/internal/bands"
	"github.com/marketkeeper/keeper/internal/limits"
	"github.com/marketkeeper/keeper/pkg/types"
)

// Balances carries the available balance per side, as reported by the
// exchange adapter.
type Balances struct {
	Buy  decimal.Decimal
	Sell decimal.Decimal
}

func (b Balances) forSide(side types.Side) decimal.Decimal {
	if side == types.Buy {
		return b.Buy
	}
	return b.Sell
}

// MinAmounts carries the exchange adapter's per-side placement floor,
// below which the venue rejects an order regardless of band policy.
type MinAmounts struct {
	Buy  decimal.Decimal
	Sell decimal.Decimal
}

func (m MinAmounts) forSide(side types.Side) decimal.Decimal {
	if side == types.Buy {
		return m.Buy
	}
	return m.Sell
}

// Evaluate runs one BandEngine cycle. p is the reference price; book is
// the effective order book (book.Book.Effective()); limitsState answers
// Limits.available per side; minAmounts is the exchange adapter's
// per-side placement floor. Callers must check idle preconditions
// (unavailable price, invalid BandSet) before calling — Evaluate
// assumes p is valid and bandSet already passed bands.Validate.
func Evaluate(bandSet bands.BandSet, book []types.Order, balances Balances, limitsState *limits.Limits, minAmounts MinAmounts, p decimal.Decimal, now time.Time) types.Intents {
	var intents types.Intents

	remaining, cancelled := cancelExcessive(bandSet, book, p)
	intents.Cancels = append(intents.Cancels, cancelled...)

	remaining, moreCancelled := cancelOverfilled(bandSet, remaining, p)
	intents.Cancels = append(intents.Cancels, moreCancelled...)

	for _, side := range []types.Side{types.Buy, types.Sell} {
		bandList := bandsFor(bandSet, side)
		for i := range bandList {
			total := bands.TotalAmount(bandSet, side, i, remaining, p)
			if !total.LessThan(bandList[i].MinAmount) {
				continue
			}
			avail := limitsState.Available(side, now)
			intent, ok := bands.NewOrder(bandSet, side, i, remaining, balances.forSide(side), avail, minAmounts.forSide(side), p)
			if !ok {
				continue
			}
			intents.Places = append(intents.Places, intent)
		}
	}

	return intents
}

func bandsFor(bs bands.BandSet, side types.Side) []bands.Band {
	if side == types.Buy {
		return bs.BuyBands
	}
	return bs.SellBands
}

// cancelExcessive implements step 1: cancel every order whose margin
// falls outside every band of its side. Returns the surviving orders.
func cancelExcessive(bs bands.BandSet, orders []types.Order, p decimal.Decimal) ([]types.Order, []types.CancelIntent) {
	var remaining []types.Order
	var cancels []types.CancelIntent
	for _, o := range orders {
		if bs.Excessive(o, p) {
			cancels = append(cancels, types.CancelIntent{OrderID: o.ID, Reason: "excessive"})
			continue
		}
		remaining = append(remaining, o)
	}
	return remaining, cancels
}

// cancelOverfilled implements step 2: for every band whose total_amount
// exceeds maxAmount, cancel orders in that band — farthest from the
// band's avgMargin price first — until the total drops to ≤ avgAmount.
func cancelOverfilled(bs bands.BandSet, orders []types.Order, p decimal.Decimal) ([]types.Order, []types.CancelIntent) {
	var cancels []types.CancelIntent
	cancelledIDs := make(map[string]bool)

	for _, side := range []types.Side{types.Buy, types.Sell} {
		bandList := bandsFor(bs, side)
		for i, band := range bandList {
			members := membersOf(bs, side, i, orders, p)
			total := sumAmount(members)
			if !total.GreaterThan(band.MaxAmount) {
				continue
			}

			var avgPrice decimal.Decimal
			if side == types.Buy {
				avgPrice = p.Mul(decimal.NewFromInt(1).Sub(band.AvgMargin))
			} else {
				avgPrice = p.Mul(decimal.NewFromInt(1).Add(band.AvgMargin))
			}
			sort.Slice(members, func(a, c int) bool {
				return members[a].Price.Sub(avgPrice).Abs().GreaterThan(members[c].Price.Sub(avgPrice).Abs())
			})

			for _, m := range members {
				if !total.GreaterThan(band.AvgAmount) {
					break
				}
				cancels = append(cancels, types.CancelIntent{OrderID: m.ID, Reason: "overfilled-band"})
				cancelledIDs[m.ID] = true
				total = total.Sub(m.Amount())
			}
		}
	}

	if len(cancelledIDs) == 0 {
		return orders, cancels
	}
	remaining := make([]types.Order, 0, len(orders))
	for _, o := range orders {
		if !cancelledIDs[o.ID] {
			remaining = append(remaining, o)
		}
	}
	return remaining, cancels
}

func membersOf(bs bands.BandSet, side types.Side, bandIdx int, orders []types.Order, p decimal.Decimal) []types.Order {
	var out []types.Order
	for _, o := range orders {
		if o.Side != side {
			continue
		}
		if bs.AssignBand(o, p) == bandIdx {
			out = append(out, o)
		}
	}
	return out
}

func sumAmount(orders []types.Order) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range orders {
		sum = sum.Add(o.Amount())
	}
	return sum
}
