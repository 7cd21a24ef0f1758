package book

import (
	"testing"
	"time"

	"github.com/marketkeeper/keeper/pkg/types"
)

func TestEffectiveUnionsInFlightPlaced(t *testing.T) {
	t.Parallel()
	b := New(3)
	b.ApplySnapshot(nil, time.Now())
	b.RecordPlaceDispatched("client-1", types.Order{Side: types.Buy})

	eff := b.Effective()
	if len(eff) != 1 {
		t.Fatalf("Effective() = %d orders, want 1 (in-flight placed)", len(eff))
	}
}

func TestEffectiveDropsConfirmedPlaceFromInFlight(t *testing.T) {
	t.Parallel()
	b := New(3)
	b.RecordPlaceDispatched("client-1", types.Order{Side: types.Buy})
	b.ConfirmPlace("client-1", "order-99")

	b.ApplySnapshot([]types.Order{{ID: "order-99", Side: types.Buy}}, time.Now())
	if b.InFlightPlacedCount() != 0 {
		t.Fatalf("expected confirmed place to leave the in-flight set, count=%d", b.InFlightPlacedCount())
	}

	eff := b.Effective()
	if len(eff) != 1 {
		t.Fatalf("Effective() = %d orders, want 1 (no duplicate)", len(eff))
	}
}

func TestEffectiveExcludesInFlightCancelled(t *testing.T) {
	t.Parallel()
	b := New(3)
	b.ApplySnapshot([]types.Order{{ID: "order-1", Side: types.Sell}}, time.Now())
	b.RecordCancelDispatched("order-1")

	eff := b.Effective()
	if len(eff) != 0 {
		t.Fatalf("Effective() = %d orders, want 0 (cancelled order excluded)", len(eff))
	}
}

func TestInFlightCancelledDropsOnceOrderDisappears(t *testing.T) {
	t.Parallel()
	b := New(3)
	b.ApplySnapshot([]types.Order{{ID: "order-1", Side: types.Sell}}, time.Now())
	b.RecordCancelDispatched("order-1")

	b.ApplySnapshot(nil, time.Now())
	if b.InFlightCancelledCount() != 0 {
		t.Fatalf("expected cancel to be reconciled away once order vanished, count=%d", b.InFlightCancelledCount())
	}
}

func TestAgeCycleDropsEntriesPastMaxCycles(t *testing.T) {
	t.Parallel()
	b := New(2)
	b.RecordPlaceDispatched("client-1", types.Order{Side: types.Buy})

	b.AgeCycle()
	if b.InFlightPlacedCount() != 1 {
		t.Fatalf("expected entry to survive cycle 1, count=%d", b.InFlightPlacedCount())
	}
	b.AgeCycle()
	b.AgeCycle()
	if b.InFlightPlacedCount() != 0 {
		t.Fatalf("expected entry to age out after maxCycles, count=%d", b.InFlightPlacedCount())
	}
}

func TestIsStaleBeforeFirstFetch(t *testing.T) {
	t.Parallel()
	b := New(3)
	if !b.IsStale(time.Hour) {
		t.Fatal("expected a never-fetched book to be stale")
	}
}

func TestIsStaleAfterMaxAge(t *testing.T) {
	t.Parallel()
	b := New(3)
	b.ApplySnapshot(nil, time.Now().Add(-time.Hour))
	if !b.IsStale(time.Minute) {
		t.Fatal("expected book older than maxAge to be stale")
	}
}
