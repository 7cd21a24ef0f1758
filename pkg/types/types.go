// Package types defines the shared vocabulary used across every layer of
// the keeper — orders, sides, prices, and band-engine intents. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or a band.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is a resting or synthesized order, expressed in exchange-side
// convention: for a buy order, Price = BuyAmount/SellAmount is "price of
// the sell-token denominated in the buy-token"; a sell order prices the
// other way. ID is empty for an order that has not yet been placed.
type Order struct {
	ID         string
	Side       Side
	Price      decimal.Decimal
	BuyAmount  decimal.Decimal
	SellAmount decimal.Decimal
	CreatedAt  time.Time
}

// Amount returns the side-denominated amount used by band total_amount
// computations: buy-token amount for a buy order, sell-token amount for
// a sell order.
func (o Order) Amount() decimal.Decimal {
	if o.Side == Buy {
		return o.BuyAmount
	}
	return o.SellAmount
}

// Margin returns the fractional deviation of the order's price from the
// reference price p, measured away from p on the order's own side: for a
// buy, (p-price)/p, positive below reference; for a sell, (price-p)/p,
// positive above reference. It is zero when p is zero.
func (o Order) Margin(p decimal.Decimal) decimal.Decimal {
	if p.IsZero() {
		return decimal.Zero
	}
	switch o.Side {
	case Buy:
		// buy orders sit below reference; margin is how far below.
		return p.Sub(o.Price).Div(p)
	default:
		return o.Price.Sub(p).Div(p)
	}
}

// PriceReading is a single price observation from a feed.
type PriceReading struct {
	Price     decimal.Decimal
	Acquired  time.Time
	Available bool
}

// Unavailable is the zero-value-equivalent reading meaning "no price".
func Unavailable() PriceReading {
	return PriceReading{Available: false}
}

// CancelIntent names an order to cancel, and why (for logging/metrics).
type CancelIntent struct {
	OrderID string
	Reason  string
}

// PlaceIntent is a synthesized order the engine wants placed.
type PlaceIntent struct {
	ClientID   string
	Side       Side
	Price      decimal.Decimal
	BuyAmount  decimal.Decimal
	SellAmount decimal.Decimal
}

// Intents is the union of cancels and places the engine emits for one cycle.
type Intents struct {
	Cancels []CancelIntent
	Places  []PlaceIntent
}

// IsEmpty reports whether the cycle produced no work.
func (i Intents) IsEmpty() bool {
	return len(i.Cancels) == 0 && len(i.Places) == 0
}
