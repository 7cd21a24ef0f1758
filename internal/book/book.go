// Package book implements a concurrency-safe mirror of the keeper's own
// resting orders, augmented with in-flight placement/cancellation
// tracking to paper over exchange eventual-consistency gaps.
//
// RWMutex-guarded mirror with an IsStale/LastUpdated idiom, restructured
// from a bid/ask price-level mirror into the keeper's own open-order
// set.
package book

import (
	"sync"
	"time"

	"github.com/marketkeeper/keeper/pkg/types"
)

// inflightPlace records an order this process asked the exchange to
// place, pending its appearance in a fetched snapshot.
type inflightPlace struct {
	order       types.Order
	cyclesAlive int
}

// inflightCancel records an order id this process asked the exchange to
// cancel, pending its disappearance from a fetched snapshot.
type inflightCancel struct {
	orderID     string
	cyclesAlive int
}

// Book holds the latest fetched snapshot plus the in-flight sets that
// reconcile it against recent dispatches. Single-writer: the control
// loop owns it exclusively.
type Book struct {
	mu sync.RWMutex

	snapshot  []types.Order
	updated   time.Time
	fetched   bool

	placed    map[string]*inflightPlace // keyed by client id
	cancelled map[string]*inflightCancel

	// maxCycles bounds how long an in-flight entry survives without
	// confirmation before it ages out regardless.
	maxCycles int
}

// New creates an empty Book. maxCycles is the bound K on in-flight entry
// lifetime, in control-loop cycles.
func New(maxCycles int) *Book {
	return &Book{
		placed:    make(map[string]*inflightPlace),
		cancelled: make(map[string]*inflightCancel),
		maxCycles: maxCycles,
	}
}

// ApplySnapshot replaces the fetched snapshot with orders observed on the
// exchange this cycle, and reconciles the in-flight sets against it:
// placements that now appear are dropped from in_flight_placed;
// cancellations whose order has disappeared are dropped from
// in_flight_cancelled.
func (b *Book) ApplySnapshot(orders []types.Order, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snapshot = orders
	b.updated = now
	b.fetched = true

	present := make(map[string]bool, len(orders))
	for _, o := range orders {
		present[o.ID] = true
	}

	for id, p := range b.placed {
		if present[p.order.ID] && p.order.ID != "" {
			delete(b.placed, id)
		}
	}
	for id, c := range b.cancelled {
		if !present[c.orderID] {
			delete(b.cancelled, id)
		}
	}
}

// RecordPlaceDispatched registers clientID's order as in-flight-placed
// immediately after a dispatch, whether the dispatch succeeds, fails, or
// times out — a timed-out place may still have landed on the exchange,
// so the tentative order goes in regardless.
func (b *Book) RecordPlaceDispatched(clientID string, order types.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placed[clientID] = &inflightPlace{order: order}
}

// ConfirmPlace fills in the exchange-assigned order id once the adapter
// call returns it, so ApplySnapshot can match it against the fetched set.
func (b *Book) ConfirmPlace(clientID, orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.placed[clientID]; ok {
		p.order.ID = orderID
	}
}

// RecordCancelDispatched registers orderID as in-flight-cancelled
// immediately after a dispatch.
func (b *Book) RecordCancelDispatched(orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled[orderID] = &inflightCancel{orderID: orderID}
}

// AgeCycle advances every in-flight entry's cycle counter and drops
// entries that have exceeded maxCycles without confirmation, preventing
// permanent desynchronization after a lost API call.
func (b *Book) AgeCycle() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, p := range b.placed {
		p.cyclesAlive++
		if p.cyclesAlive > b.maxCycles {
			delete(b.placed, id)
		}
	}
	for id, c := range b.cancelled {
		c.cyclesAlive++
		if c.cyclesAlive > b.maxCycles {
			delete(b.cancelled, id)
		}
	}
}

// Effective returns (snapshot ∪ in_flight_placed) \ in_flight_cancelled:
// what the keeper believes is actually resting right now.
func (b *Book) Effective() []types.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cancelledIDs := make(map[string]bool, len(b.cancelled))
	for _, c := range b.cancelled {
		cancelledIDs[c.orderID] = true
	}

	seen := make(map[string]bool, len(b.snapshot))
	out := make([]types.Order, 0, len(b.snapshot)+len(b.placed))
	for _, o := range b.snapshot {
		if cancelledIDs[o.ID] {
			continue
		}
		out = append(out, o)
		seen[o.ID] = true
	}
	for _, p := range b.placed {
		if p.order.ID != "" && seen[p.order.ID] {
			continue // already counted from the snapshot
		}
		if cancelledIDs[p.order.ID] {
			continue
		}
		out = append(out, p.order)
	}
	return out
}

// IsStale reports whether the book hasn't been fetched, or hasn't been
// refreshed within maxAge.
func (b *Book) IsStale(maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.fetched {
		return true
	}
	return time.Since(b.updated) > maxAge
}

// LastUpdated returns the timestamp of the last applied snapshot.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// InFlightPlacedCount and InFlightCancelledCount are metrics hooks.
func (b *Book) InFlightPlacedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.placed)
}

func (b *Book) InFlightCancelledCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cancelled)
}
