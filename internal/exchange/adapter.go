// Package exchange defines the keeper's exchange-adapter contract: the
// interface the control loop drives to fetch the order book, place and
// cancel orders, and read balances, independent of whether the venue is
// a centralized exchange or an on-chain order book. Two reference
// adapters implement it: internal/exchange/cex and
// internal/exchange/onchain.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/pkg/types"
)

// MinAmounts are the exchange-side lower bounds per side, below which a
// placement will be rejected by the venue regardless of band policy.
type MinAmounts struct {
	Buy  decimal.Decimal
	Sell decimal.Decimal
}

// PairConvention identifies which side of the trading pair is base and
// which is quote, for adapters that need to render amounts into the
// venue's native units.
type PairConvention struct {
	Base  string
	Quote string
}

// Adapter is the exchange-adapter contract. Every method except
// PairConvention is venue I/O and takes a context with a per-adapter
// timeout.
type Adapter interface {
	// GetOrders fetches the keeper's own resting orders on this pair.
	GetOrders(ctx context.Context) ([]types.Order, error)

	// PlaceOrder submits a new order and returns the venue-assigned id.
	PlaceOrder(ctx context.Context, intent types.PlaceIntent) (orderID string, err error)

	// CancelOrder cancels a resting order by id.
	CancelOrder(ctx context.Context, orderID string) error

	// Balances reports the available buy-token and sell-token balances.
	Balances(ctx context.Context) (buy, sell decimal.Decimal, err error)

	// MinAmounts reports the venue's per-side placement floor.
	MinAmounts(ctx context.Context) (MinAmounts, error)

	// PairConvention reports which side is base and which is quote.
	PairConvention() PairConvention

	// CancelAll cancels every resting order on this pair, used on
	// shutdown when the operator has opted into cancel-on-exit.
	CancelAll(ctx context.Context) error
}
