package gasprice

import (
	"context"
	"math/big"
	"testing"
)

func TestFixedReturnsConfiguredPrice(t *testing.T) {
	t.Parallel()
	f := Fixed{Price: big.NewInt(42)}
	price, err := f.SuggestGasPrice(context.Background())
	if err != nil {
		t.Fatalf("SuggestGasPrice: %v", err)
	}
	if price.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("price = %v, want 42", price)
	}
}

type fakeNode struct {
	price *big.Int
	err   error
}

func (f fakeNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.price, f.err
}

func TestAdaptiveAppliesMultiplier(t *testing.T) {
	t.Parallel()
	a := Adaptive{Node: fakeNode{price: big.NewInt(100)}, Multiplier: 1.5}
	price, err := a.SuggestGasPrice(context.Background())
	if err != nil {
		t.Fatalf("SuggestGasPrice: %v", err)
	}
	if price.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("price = %v, want 150", price)
	}
}

func TestAdaptiveDefaultsMultiplierToOne(t *testing.T) {
	t.Parallel()
	a := Adaptive{Node: fakeNode{price: big.NewInt(100)}}
	price, err := a.SuggestGasPrice(context.Background())
	if err != nil {
		t.Fatalf("SuggestGasPrice: %v", err)
	}
	if price.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("price = %v, want 100", price)
	}
}

func TestAdaptiveRespectsCeiling(t *testing.T) {
	t.Parallel()
	a := Adaptive{Node: fakeNode{price: big.NewInt(1000)}, Multiplier: 2, Ceiling: big.NewInt(1500)}
	price, err := a.SuggestGasPrice(context.Background())
	if err != nil {
		t.Fatalf("SuggestGasPrice: %v", err)
	}
	if price.Cmp(big.NewInt(1500)) != 0 {
		t.Errorf("price = %v, want ceiling 1500", price)
	}
}
