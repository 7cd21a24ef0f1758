package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/internal/clock"
	"github.com/marketkeeper/keeper/pkg/types"
)

// ChainReader is the subset of ethclient.Client the on-chain feed needs,
// narrowed to a testable interface the way blackholedex's contractclient
// wraps ethclient behind its own call surface.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// OnChain reads a price from a view function on a contract through a
// call closure (see NewOracleCall), narrowed to the one call signature
// it actually needs; the closure carries its own node client.
type OnChain struct {
	call     func(ctx context.Context) (*big.Int, error)
	decimals int32
	clk      clock.Clock
	logger   *slog.Logger
}

// NewOnChain builds an OnChain feed. call is expected to perform the
// eth_call against the oracle contract and return the raw integer
// reading (e.g. a Chainlink-style latestAnswer), scaled by 10^decimals.
func NewOnChain(call func(ctx context.Context) (*big.Int, error), decimals int32, clk clock.Clock, logger *slog.Logger) *OnChain {
	return &OnChain{call: call, decimals: decimals, clk: clk, logger: logger.With("component", "feed_onchain")}
}

func (o *OnChain) Read() types.PriceReading {
	raw, err := o.call(context.Background())
	if err != nil {
		o.logger.Warn("contract read failed", "error", err)
		return types.Unavailable()
	}
	price := decimal.NewFromBigInt(raw, -o.decimals)
	return types.PriceReading{Price: price, Acquired: o.clk.Now(), Available: true}
}

// DefaultOracleABIJSON is a minimal Chainlink-style oracle ABI exposing
// only the zero-argument latestAnswer view function NewOracleCall calls
// by default; an oracle with a differently named method needs its own
// parsed abi.ABI instead.
const DefaultOracleABIJSON = `[
  {"name":"latestAnswer","type":"function","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"int256"}]}
]`

// NewOracleCall builds the call closure NewOnChain needs from a raw
// ChainReader, a contract address, its parsed ABI, and a zero-argument
// view method name (e.g. a Chainlink-style "latestAnswer").
func NewOracleCall(reader ChainReader, contract common.Address, contractABI abi.ABI, method string) func(context.Context) (*big.Int, error) {
	return func(ctx context.Context) (*big.Int, error) {
		data, err := contractABI.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		out, err := reader.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		results, err := contractABI.Unpack(method, out)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("%s: empty result", method)
		}
		value, ok := results[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected return type %T", method, results[0])
		}
		return value, nil
	}
}
