package bands

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/pkg/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func oneBuyBand() BandSet {
	return BandSet{
		BuyBands: []Band{
			{
				MinMargin:  d("0"),
				AvgMargin:  d("0.01"),
				MaxMargin:  d("0.02"),
				MinAmount:  d("10"),
				AvgAmount:  d("30"),
				MaxAmount:  d("50"),
				DustCutoff: d("1"),
			},
		},
	}
}

func TestValidateRejectsNonMonotoneMargins(t *testing.T) {
	t.Parallel()
	bs := BandSet{BuyBands: []Band{{MinMargin: d("0.02"), AvgMargin: d("0.01"), MaxMargin: d("0.03")}}}
	if err := Validate(bs); err == nil {
		t.Fatal("expected error for non-monotone margins")
	}
}

func TestValidateRejectsNonMonotoneAmounts(t *testing.T) {
	t.Parallel()
	bs := BandSet{BuyBands: []Band{{
		MinMargin: d("0"), AvgMargin: d("0.01"), MaxMargin: d("0.02"),
		MinAmount: d("50"), AvgAmount: d("30"), MaxAmount: d("10"),
	}}}
	if err := Validate(bs); err == nil {
		t.Fatal("expected error for non-monotone amounts")
	}
}

func TestValidateRejectsOverlappingBands(t *testing.T) {
	t.Parallel()
	bs := BandSet{BuyBands: []Band{
		{MinMargin: d("0"), AvgMargin: d("0.01"), MaxMargin: d("0.02"), MinAmount: d("1"), AvgAmount: d("1"), MaxAmount: d("1")},
		{MinMargin: d("0.015"), AvgMargin: d("0.02"), MaxMargin: d("0.03"), MinAmount: d("1"), AvgAmount: d("1"), MaxAmount: d("1")},
	}}
	if err := Validate(bs); err == nil {
		t.Fatal("expected error for overlapping margin intervals")
	}
}

func TestValidateAcceptsAdjacentNonOverlappingBands(t *testing.T) {
	t.Parallel()
	bs := BandSet{BuyBands: []Band{
		{MinMargin: d("0"), AvgMargin: d("0.01"), MaxMargin: d("0.02"), MinAmount: d("1"), AvgAmount: d("1"), MaxAmount: d("1")},
		{MinMargin: d("0.02"), AvgMargin: d("0.025"), MaxMargin: d("0.03"), MinAmount: d("1"), AvgAmount: d("1"), MaxAmount: d("1")},
	}}
	if err := Validate(bs); err != nil {
		t.Fatalf("expected adjacent bands to validate, got %v", err)
	}
}

func TestValidateRejectsNegativeDustCutoff(t *testing.T) {
	t.Parallel()
	bs := BandSet{BuyBands: []Band{{
		MinMargin: d("0"), AvgMargin: d("0.01"), MaxMargin: d("0.02"),
		MinAmount: d("1"), AvgAmount: d("1"), MaxAmount: d("1"), DustCutoff: d("-1"),
	}}}
	if err := Validate(bs); err == nil {
		t.Fatal("expected error for negative dustCutoff")
	}
}

func TestAssignBandBoundaryIsRightClosedLeftOpen(t *testing.T) {
	t.Parallel()
	bs := BandSet{BuyBands: []Band{
		{MinMargin: d("0"), AvgMargin: d("0.01"), MaxMargin: d("0.02"), MinAmount: d("1"), AvgAmount: d("1"), MaxAmount: d("1")},
		{MinMargin: d("0.02"), AvgMargin: d("0.025"), MaxMargin: d("0.03"), MinAmount: d("1"), AvgAmount: d("1"), MaxAmount: d("1")},
	}}
	p := d("100")
	// order with margin exactly 0.02 (price 98): belongs to the first band's
	// closed upper edge, not the second band's open lower edge.
	o := types.Order{Side: types.Buy, Price: d("98")}
	if got := bs.AssignBand(o, p); got != 0 {
		t.Fatalf("AssignBand at boundary = %d, want 0", got)
	}
}

func TestExcessiveOutsideAllBands(t *testing.T) {
	t.Parallel()
	bs := oneBuyBand()
	p := d("100")
	o := types.Order{Side: types.Buy, Price: d("50")} // margin 0.5, way outside
	if !bs.Excessive(o, p) {
		t.Fatal("expected order far outside bands to be excessive")
	}
}

func TestExcessiveInsideBandIsNotExcessive(t *testing.T) {
	t.Parallel()
	bs := oneBuyBand()
	p := d("100")
	o := types.Order{Side: types.Buy, Price: d("99")} // margin 0.01
	if bs.Excessive(o, p) {
		t.Fatal("expected order inside band to not be excessive")
	}
}

// TestNewOrderFreshStart mirrors spec scenario S1: a fresh start with one
// buy band and reference price 100 should synthesize a single buy order
// at price 99.0 for the band's avgAmount (30), since there is no prior
// resting order to count toward total_amount.
func TestNewOrderFreshStart(t *testing.T) {
	t.Parallel()
	bs := oneBuyBand()
	p := d("100")

	intent, ok := NewOrder(bs, types.Buy, 0, nil, d("1000"), d("1000"), d("0"), p)
	if !ok {
		t.Fatal("expected a place intent on a fresh start")
	}
	if !intent.Price.Equal(d("99")) {
		t.Errorf("price = %s, want 99", intent.Price)
	}
	if !intent.BuyAmount.Equal(d("30")) {
		t.Errorf("buy amount = %s, want 30", intent.BuyAmount)
	}
}

func TestNewOrderNoGapWhenBandFull(t *testing.T) {
	t.Parallel()
	bs := oneBuyBand()
	p := d("100")
	existing := []types.Order{
		{Side: types.Buy, Price: d("99"), BuyAmount: d("30"), CreatedAt: time.Now()},
	}
	_, ok := NewOrder(bs, types.Buy, 0, existing, d("1000"), d("1000"), d("0"), p)
	if ok {
		t.Fatal("expected no new order once band is at avgAmount")
	}
}

func TestNewOrderClampedByDustCutoff(t *testing.T) {
	t.Parallel()
	bs := oneBuyBand()
	p := d("100")
	existing := []types.Order{
		{Side: types.Buy, Price: d("99"), BuyAmount: d("29.5"), CreatedAt: time.Now()},
	}
	// gap is 0.5, below dustCutoff of 1 — nothing should be emitted.
	_, ok := NewOrder(bs, types.Buy, 0, existing, d("1000"), d("1000"), d("0"), p)
	if ok {
		t.Fatal("expected gap below dustCutoff to be rejected")
	}
}

func TestNewOrderClampedByExchangeMinAmount(t *testing.T) {
	t.Parallel()
	bs := oneBuyBand()
	p := d("100")
	// gap is the full avgAmount (30), well above dustCutoff, but the
	// exchange's minimum for this side is above the achievable amount
	// once balance clamps it down to 5 — so it should still be rejected.
	_, ok := NewOrder(bs, types.Buy, 0, nil, d("5"), d("1000"), d("10"), p)
	if ok {
		t.Fatal("expected amount below exchange minAmount to be rejected")
	}
}

func TestNewOrderAllowsAmountAtOrAboveExchangeMinAmount(t *testing.T) {
	t.Parallel()
	bs := oneBuyBand()
	p := d("100")
	intent, ok := NewOrder(bs, types.Buy, 0, nil, d("1000"), d("1000"), d("10"), p)
	if !ok {
		t.Fatal("expected a place intent when amount clears the exchange minAmount")
	}
	if !intent.BuyAmount.Equal(d("30")) {
		t.Errorf("buy amount = %s, want 30", intent.BuyAmount)
	}
}

func TestNewOrderClampedByAvailableBalance(t *testing.T) {
	t.Parallel()
	bs := oneBuyBand()
	p := d("100")
	intent, ok := NewOrder(bs, types.Buy, 0, nil, d("5"), d("1000"), d("0"), p)
	if !ok {
		t.Fatal("expected a place intent clamped to available balance")
	}
	if !intent.BuyAmount.Equal(d("5")) {
		t.Errorf("buy amount = %s, want 5 (clamped by balance)", intent.BuyAmount)
	}
}

func TestNewOrderClampedByLimitsAvailable(t *testing.T) {
	t.Parallel()
	bs := oneBuyBand()
	p := d("100")
	intent, ok := NewOrder(bs, types.Buy, 0, nil, d("1000"), d("3"), d("0"), p)
	if !ok {
		t.Fatal("expected a place intent clamped to limits headroom")
	}
	if !intent.BuyAmount.Equal(d("3")) {
		t.Errorf("buy amount = %s, want 3 (clamped by limits)", intent.BuyAmount)
	}
}

func TestTotalAmountIgnoresOtherSide(t *testing.T) {
	t.Parallel()
	bs := BandSet{
		BuyBands: []Band{{MinMargin: d("0"), AvgMargin: d("0.01"), MaxMargin: d("0.02"), MinAmount: d("1"), AvgAmount: d("1"), MaxAmount: d("1")}},
	}
	orders := []types.Order{
		{Side: types.Sell, Price: d("101"), SellAmount: d("20")},
	}
	total := TotalAmount(bs, types.Buy, 0, orders, d("100"))
	if !total.IsZero() {
		t.Errorf("total = %s, want 0 (sell order must not count toward buy band)", total)
	}
}
