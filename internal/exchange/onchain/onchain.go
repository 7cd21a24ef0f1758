// Package onchain implements the exchange.Adapter contract against an
// on-chain order book contract: ecdsa wallet signing for transaction
// submission, and a ContractClient-style read path that wraps an
// *ethclient.Client behind a narrow interface, packing and unpacking
// calls through a parsed abi.ABI rather than generated contract
// bindings.
package onchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/internal/exchange"
	"github.com/marketkeeper/keeper/internal/exchange/gasprice"
	kptypes "github.com/marketkeeper/keeper/pkg/types"
)

// ChainClient is the subset of *ethclient.Client the adapter needs,
// narrowed for testability the way blackholedex's ContractClient wraps
// ethclient behind its own call surface.
type ChainClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config configures the on-chain adapter.
type Config struct {
	Contract common.Address
	ABI      abi.ABI
	ChainID  *big.Int
	DryRun   bool
	Pair     exchange.PairConvention
	Decimals int32 // scale of amounts in the contract's native units
}

// Adapter is the go-ethereum exchange.Adapter implementation: it reads
// the order book and balances via eth_call, and places/cancels orders
// by signing and submitting transactions with the configured wallet.
type Adapter struct {
	client   ChainClient
	key      *ecdsa.PrivateKey
	address  common.Address
	contract common.Address
	abi      abi.ABI
	chainID  *big.Int
	gas      gasprice.Strategy
	decimals int32
	dryRun   bool
	pair     exchange.PairConvention
	logger   *slog.Logger
}

var _ exchange.Adapter = (*Adapter)(nil)

// New builds an on-chain adapter. key is nil in dry-run mode, where
// transactions are logged instead of signed and sent.
func New(client ChainClient, key *ecdsa.PrivateKey, gas gasprice.Strategy, cfg Config, logger *slog.Logger) *Adapter {
	a := &Adapter{
		client:   client,
		key:      key,
		contract: cfg.Contract,
		abi:      cfg.ABI,
		chainID:  cfg.ChainID,
		gas:      gas,
		decimals: cfg.Decimals,
		dryRun:   cfg.DryRun,
		pair:     cfg.Pair,
		logger:   logger.With("component", "onchain"),
	}
	if key != nil {
		a.address = ethcrypto.PubkeyToAddress(key.PublicKey)
	}
	return a
}

// DefaultABIJSON describes the order-book contract surface this adapter
// drives: parallel-array order reads, HMAC-free EIP-712-signed order
// placement, and cancellation. A deployment with a differently-shaped
// contract supplies its own abi.ABI through Config instead.
const DefaultABIJSON = `[
  {"name":"getOrders","type":"function","stateMutability":"view",
   "inputs":[{"name":"who","type":"address"}],
   "outputs":[
     {"name":"ids","type":"uint256[]"},
     {"name":"isBuy","type":"bool[]"},
     {"name":"prices","type":"uint256[]"},
     {"name":"buyAmounts","type":"uint256[]"},
     {"name":"sellAmounts","type":"uint256[]"}
   ]},
  {"name":"balancesOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"who","type":"address"}],
   "outputs":[{"name":"buy","type":"uint256"},{"name":"sell","type":"uint256"}]},
  {"name":"minAmounts","type":"function","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"minBuy","type":"uint256"},{"name":"minSell","type":"uint256"}]},
  {"name":"placeOrder","type":"function","stateMutability":"nonpayable",
   "inputs":[
     {"name":"isBuy","type":"bool"},
     {"name":"buyAmount","type":"uint256"},
     {"name":"sellAmount","type":"uint256"},
     {"name":"salt","type":"uint256"},
     {"name":"signature","type":"bytes"}
   ],
   "outputs":[]},
  {"name":"cancelOrder","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"}],
   "outputs":[]},
  {"name":"cancelAll","type":"function","stateMutability":"nonpayable",
   "inputs":[],
   "outputs":[]}
]`

func (a *Adapter) PairConvention() exchange.PairConvention { return a.pair }

// call performs a read-only eth_call against method and returns all of
// its unpacked return values.
func (a *Adapter) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := a.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &a.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	results, err := a.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return results, nil
}

// send signs and submits a state-changing transaction, waiting for it
// to be mined before returning.
func (a *Adapter) send(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	if a.dryRun {
		a.logger.Info("dry-run transaction", "method", method)
		return nil, nil
	}
	data, err := a.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	nonce, err := a.client.PendingNonceAt(ctx, a.address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := a.gas.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &a.contract,
		Value:    big.NewInt(0),
		Gas:      300_000,
		GasPrice: gasPrice,
		Data:     data,
	})

	signer := types.LatestSignerForChainID(a.chainID)
	signedTx, err := types.SignTx(tx, signer, a.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}

	for {
		receipt, err := a.client.TransactionReceipt(ctx, signedTx.Hash())
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

// GetOrders fetches the caller's resting orders from the contract's
// order book.
func (a *Adapter) GetOrders(ctx context.Context) ([]kptypes.Order, error) {
	results, err := a.call(ctx, "getOrders", a.address)
	if err != nil {
		return nil, err
	}
	return decodeOrders(results, a.decimals)
}

// PlaceOrder EIP-712-signs the order off-chain, then submits a
// placeOrder transaction carrying that signature for on-chain
// settlement. Returns the placement transaction's hash as the order id;
// the contract's own order id is not read from the receipt.
func (a *Adapter) PlaceOrder(ctx context.Context, intent kptypes.PlaceIntent) (string, error) {
	buyRaw := scale(intent.BuyAmount, a.decimals)
	sellRaw := scale(intent.SellAmount, a.decimals)
	isBuy := intent.Side == kptypes.Buy
	salt := saltFromClientID(intent.ClientID)

	if a.dryRun {
		a.logger.Info("dry-run place order", "client_id", intent.ClientID, "side", intent.Side)
		return "dry-run-" + intent.ClientID, nil
	}

	sig, err := signOrder(a.key, a.contract, a.chainID, a.address, isBuy, buyRaw, sellRaw, salt)
	if err != nil {
		return "", fmt.Errorf("sign order: %w", err)
	}

	receipt, err := a.send(ctx, "placeOrder", isBuy, buyRaw, sellRaw, salt, sig)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// saltFromClientID derives a deterministic order salt from the
// dispatch-assigned client id, so retried dispatches of the same
// intent produce the same signed order instead of a fresh one each time.
func saltFromClientID(clientID string) *big.Int {
	h := ethcrypto.Keccak256([]byte(clientID))
	return new(big.Int).SetBytes(h[:16])
}

// CancelOrder submits a signed cancelOrder transaction.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	id, ok := new(big.Int).SetString(orderID, 0)
	if !ok {
		return fmt.Errorf("invalid order id %q", orderID)
	}
	_, err := a.send(ctx, "cancelOrder", id)
	return err
}

// CancelAll submits a signed cancelAll transaction.
func (a *Adapter) CancelAll(ctx context.Context) error {
	_, err := a.send(ctx, "cancelAll")
	return err
}

// Balances reads the caller's buy-token and sell-token balances from
// the contract.
func (a *Adapter) Balances(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	results, err := a.call(ctx, "balancesOf", a.address)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if len(results) != 2 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("balancesOf: expected 2 results, got %d", len(results))
	}
	buy, ok := results[0].(*big.Int)
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("balancesOf: unexpected type %T", results[0])
	}
	sell, ok := results[1].(*big.Int)
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("balancesOf: unexpected type %T", results[1])
	}
	return unscale(buy, a.decimals), unscale(sell, a.decimals), nil
}

// MinAmounts reads the contract's configured per-side placement floor.
func (a *Adapter) MinAmounts(ctx context.Context) (exchange.MinAmounts, error) {
	results, err := a.call(ctx, "minAmounts")
	if err != nil {
		return exchange.MinAmounts{}, err
	}
	if len(results) != 2 {
		return exchange.MinAmounts{}, fmt.Errorf("minAmounts: expected 2 results, got %d", len(results))
	}
	minBuy, ok := results[0].(*big.Int)
	if !ok {
		return exchange.MinAmounts{}, fmt.Errorf("minAmounts: unexpected type %T", results[0])
	}
	minSell, ok := results[1].(*big.Int)
	if !ok {
		return exchange.MinAmounts{}, fmt.Errorf("minAmounts: unexpected type %T", results[1])
	}
	return exchange.MinAmounts{Buy: unscale(minBuy, a.decimals), Sell: unscale(minSell, a.decimals)}, nil
}

func scale(d decimal.Decimal, decimals int32) *big.Int {
	return d.Shift(decimals).BigInt()
}

func unscale(i *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(i, -decimals)
}

// decodeOrders unpacks the contract's parallel-array order book
// representation into Order values. The contract is expected to return
// (ids []uint256, isBuy []bool, prices []uint256, buyAmounts []uint256,
// sellAmounts []uint256), a common pattern for view functions that
// can't return arrays of structs pre-Solidity ABIv2 callers.
func decodeOrders(results []interface{}, decimals int32) ([]kptypes.Order, error) {
	if len(results) != 5 {
		return nil, fmt.Errorf("getOrders: expected 5 results, got %d", len(results))
	}
	ids, ok := results[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getOrders: ids: unexpected type %T", results[0])
	}
	isBuy, ok := results[1].([]bool)
	if !ok {
		return nil, fmt.Errorf("getOrders: isBuy: unexpected type %T", results[1])
	}
	prices, ok := results[2].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getOrders: prices: unexpected type %T", results[2])
	}
	buyAmounts, ok := results[3].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getOrders: buyAmounts: unexpected type %T", results[3])
	}
	sellAmounts, ok := results[4].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getOrders: sellAmounts: unexpected type %T", results[4])
	}

	orders := make([]kptypes.Order, len(ids))
	for i := range ids {
		side := kptypes.Sell
		if isBuy[i] {
			side = kptypes.Buy
		}
		orders[i] = kptypes.Order{
			ID:         ids[i].String(),
			Side:       side,
			Price:      unscale(prices[i], decimals),
			BuyAmount:  unscale(buyAmounts[i], decimals),
			SellAmount: unscale(sellAmounts[i], decimals),
		}
	}
	return orders, nil
}
