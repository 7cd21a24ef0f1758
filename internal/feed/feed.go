// Package feed implements the price feed tree: leaf sources (fixed,
// file, websocket, shell, on-chain), the expiry and inverse wrappers,
// and the ordered failover combinator. Construction is recursive from a
// comma-separated CLI URI list.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/internal/clock"
	"github.com/marketkeeper/keeper/pkg/types"
)

// Feed is a source of PriceReading. Background producers (ws, shell)
// publish into a shared slot and Read copies out without blocking;
// synchronous feeds (fixed, file, on-chain) do the work in-line, so an
// on-chain Read blocks on its contract call.
type Feed interface {
	Read() types.PriceReading
}

// Runnable is implemented by feeds with a background producer task. The
// caller starts it once at construction and keeps it running for the
// process lifetime, so a failover wrapper always has every leaf warm.
type Runnable interface {
	Run(ctx context.Context) error
}

// StartAll launches the background producer of every Runnable feed in
// the tree rooted at feeds, returning immediately. Feeds that are not
// Runnable (fixed, file, on-chain) are skipped. Wrapper combinators
// (Expiring, Failover) are not themselves Runnable; StartAll recurses
// into their inner feed(s) instead of requiring callers to reach past
// the wrapper to start what it holds.
func StartAll(ctx context.Context, feeds ...Feed) {
	for _, f := range feeds {
		if r, ok := f.(Runnable); ok {
			go r.Run(ctx)
		}
		switch w := f.(type) {
		case interface{ Inner() Feed }:
			StartAll(ctx, w.Inner())
		case interface{ Inners() []Feed }:
			StartAll(ctx, w.Inners()...)
		}
	}
}

// slot holds the last reading published by a background producer, with
// last-writer-wins semantics protected by a lightweight mutex.
type slot struct {
	mu      sync.Mutex
	reading types.PriceReading
}

func (s *slot) set(r types.PriceReading) {
	s.mu.Lock()
	s.reading = r
	s.mu.Unlock()
}

func (s *slot) get() types.PriceReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading
}

// Fixed always returns the same reading and is never stale.
type Fixed struct {
	price decimal.Decimal
	clk   clock.Clock
}

// NewFixed builds a Fixed feed reporting price forever.
func NewFixed(price decimal.Decimal, clk clock.Clock) *Fixed {
	return &Fixed{price: price, clk: clk}
}

func (f *Fixed) Read() types.PriceReading {
	return types.PriceReading{Price: f.price, Acquired: f.clk.Now(), Available: true}
}

// Expiring wraps inner and reports unavailable once inner's reading is
// older than maxAge.
type Expiring struct {
	inner  Feed
	maxAge time.Duration
	clk    clock.Clock
}

// NewExpiring wraps inner with a freshness bound.
func NewExpiring(inner Feed, maxAge time.Duration, clk clock.Clock) *Expiring {
	return &Expiring{inner: inner, maxAge: maxAge, clk: clk}
}

// Inner exposes the wrapped feed so StartAll can reach past Expiring to
// start a Runnable leaf underneath it.
func (e *Expiring) Inner() Feed { return e.inner }

func (e *Expiring) Read() types.PriceReading {
	r := e.inner.Read()
	if !r.Available {
		return r
	}
	if e.clk.Now().Sub(r.Acquired) > e.maxAge {
		return types.Unavailable()
	}
	return r
}

// Inverse returns 1/price and propagates unavailability.
type Inverse struct {
	inner Feed
}

// NewInverse wraps inner, inverting every available reading.
func NewInverse(inner Feed) *Inverse {
	return &Inverse{inner: inner}
}

func (inv *Inverse) Read() types.PriceReading {
	r := inv.inner.Read()
	if !r.Available || r.Price.IsZero() {
		return types.Unavailable()
	}
	return types.PriceReading{
		Price:     decimal.NewFromInt(1).Div(r.Price),
		Acquired:  r.Acquired,
		Available: true,
	}
}

// Failover returns the first available reading among an ordered list of
// feeds, trying them in priority order on every query. The feeds
// themselves are expected to already be warm (their own background
// producers, if any, started via StartAll).
type Failover struct {
	feeds []Feed
}

// NewFailover builds an ordered failover combinator.
func NewFailover(feeds ...Feed) *Failover {
	return &Failover{feeds: feeds}
}

// Inners exposes the wrapped feeds so StartAll can reach past Failover
// to start the Runnable leaves underneath it.
func (fo *Failover) Inners() []Feed { return fo.feeds }

func (fo *Failover) Read() types.PriceReading {
	for _, f := range fo.feeds {
		if r := f.Read(); r.Available {
			return r
		}
	}
	return types.Unavailable()
}

func decimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
