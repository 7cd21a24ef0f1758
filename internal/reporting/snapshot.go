// Package reporting implements the keeper's read-only status surface: a
// dashboard HTTP server (health, snapshot, Prometheus metrics) and an
// optional periodic POST of the effective book to an external reporting
// endpoint.
package reporting

import (
	"time"

	"github.com/marketkeeper/keeper/internal/clock"
	"github.com/marketkeeper/keeper/pkg/types"
)

// Provider is the control loop surface the dashboard needs: its
// lifecycle state, its effective order book, and its placement-limit
// headroom, expressed without naming control.Loop directly so this
// package stays testable against a fake.
type Provider interface {
	State() fmtStringer
	Effective() []types.Order
	InFlightPlaced() int
	InFlightCancelled() int
	Headroom(side types.Side, now time.Time) string
}

// fmtStringer avoids an import of the "fmt" package for a single method
// set; any lifecycle-state type with a String method satisfies it.
type fmtStringer interface {
	String() string
}

// BuildSnapshot assembles the current dashboard state. price and
// buyAmount are the most recent feed reading, passed in by the caller
// since the Provider interface intentionally has no feed dependency.
func BuildSnapshot(p Provider, clk clock.Clock, price, buyAmount string) Snapshot {
	now := clk.Now()
	orders := p.Effective()
	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, OrderView{
			ID:         o.ID,
			Side:       string(o.Side),
			Price:      o.Price.String(),
			BuyAmount:  o.BuyAmount.String(),
			SellAmount: o.SellAmount.String(),
		})
	}

	return Snapshot{
		Timestamp:         now,
		State:             p.State().String(),
		Price:             price,
		BuyAmount:         buyAmount,
		Orders:            views,
		InFlightPlaced:    p.InFlightPlaced(),
		InFlightCancelled: p.InFlightCancelled(),
		BuyHeadroom:       p.Headroom(types.Buy, now),
		SellHeadroom:      p.Headroom(types.Sell, now),
	}
}
