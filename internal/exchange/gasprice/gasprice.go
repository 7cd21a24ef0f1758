// Package gasprice implements gas price strategies for the on-chain
// exchange adapter: a fixed price for chains/deployments where the
// operator wants a predictable cost ceiling, and an adaptive strategy
// backed by the node's own fee suggestion, following go-ethereum's
// ethclient.Client.SuggestGasPrice as used throughout the retrieved
// on-chain examples' transaction-construction paths.
package gasprice

import (
	"context"
	"math/big"
)

// Strategy reports the gas price to use for the next transaction.
type Strategy interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Fixed always returns the same configured price.
type Fixed struct {
	Price *big.Int
}

func (f Fixed) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.Price), nil
}

// NodeSuggester is the subset of ethclient.Client the Adaptive strategy
// needs.
type NodeSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Adaptive asks the node for its current suggested gas price and
// applies a multiplier, letting operators bid slightly above the
// network's suggestion to improve inclusion odds without hardcoding a
// price that could go stale as network conditions change.
type Adaptive struct {
	Node       NodeSuggester
	Multiplier float64 // e.g. 1.1 for a 10% premium over the node's suggestion
	Ceiling    *big.Int // optional hard cap; nil means no cap
}

func (a Adaptive) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	base, err := a.Node.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	multiplier := a.Multiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}

	scaled := new(big.Float).Mul(new(big.Float).SetInt(base), big.NewFloat(multiplier))
	price, _ := scaled.Int(nil)

	if a.Ceiling != nil && price.Cmp(a.Ceiling) > 0 {
		return new(big.Int).Set(a.Ceiling), nil
	}
	return price, nil
}
