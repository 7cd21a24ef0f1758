package onchain

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/internal/exchange/gasprice"
	kptypes "github.com/marketkeeper/keeper/pkg/types"
)

func placeBuyIntent() kptypes.PlaceIntent {
	return kptypes.PlaceIntent{
		ClientID:   "abc",
		Side:       kptypes.Buy,
		Price:      decimal.NewFromFloat(0.5),
		BuyAmount:  decimal.NewFromInt(10),
		SellAmount: decimal.NewFromInt(20),
	}
}

const testABIJSON = `[
  {"name":"balancesOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"who","type":"address"}],
   "outputs":[{"name":"buy","type":"uint256"},{"name":"sell","type":"uint256"}]},
  {"name":"minAmounts","type":"function","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"minBuy","type":"uint256"},{"name":"minSell","type":"uint256"}]},
  {"name":"placeOrder","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"isBuy","type":"bool"},{"name":"buyAmount","type":"uint256"},{"name":"sellAmount","type":"uint256"}],
   "outputs":[]},
  {"name":"cancelOrder","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"}],
   "outputs":[]}
]`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(testABIJSON))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return parsed
}

type fakeChainClient struct {
	callResult []byte
	callErr    error
	lastCall   ethereum.CallMsg
}

func (f *fakeChainClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.lastCall = msg
	return f.callResult, f.callErr
}

func (f *fakeChainClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return nil
}

func (f *fakeChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeChainClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{TxHash: txHash}, nil
}

func TestBalancesUnpacksScaledAmounts(t *testing.T) {
	t.Parallel()
	parsed := mustABI(t)

	packed, err := parsed.Methods["balancesOf"].Outputs.Pack(big.NewInt(1_000000), big.NewInt(2_000000))
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	client := &fakeChainClient{callResult: packed}

	a := New(client, nil, gasprice.Fixed{Price: big.NewInt(1)}, Config{ABI: parsed, Decimals: 6, DryRun: true}, testLogger())

	buy, sell, err := a.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if !buy.Equal(decimal.NewFromInt(1)) {
		t.Errorf("buy = %v, want 1", buy)
	}
	if !sell.Equal(decimal.NewFromInt(2)) {
		t.Errorf("sell = %v, want 2", sell)
	}
}

func TestMinAmountsUnpacks(t *testing.T) {
	t.Parallel()
	parsed := mustABI(t)
	packed, err := parsed.Methods["minAmounts"].Outputs.Pack(big.NewInt(500000), big.NewInt(250000))
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	client := &fakeChainClient{callResult: packed}

	a := New(client, nil, gasprice.Fixed{Price: big.NewInt(1)}, Config{ABI: parsed, Decimals: 6, DryRun: true}, testLogger())
	min, err := a.MinAmounts(context.Background())
	if err != nil {
		t.Fatalf("MinAmounts: %v", err)
	}
	if !min.Buy.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("min buy = %v, want 0.5", min.Buy)
	}
}

func TestDryRunPlaceOrderSkipsSend(t *testing.T) {
	t.Parallel()
	parsed := mustABI(t)
	client := &fakeChainClient{}
	a := New(client, nil, gasprice.Fixed{Price: big.NewInt(1)}, Config{ABI: parsed, Decimals: 6, DryRun: true}, testLogger())

	id, err := a.PlaceOrder(context.Background(), placeBuyIntent())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id != "dry-run-abc" {
		t.Errorf("id = %q, want dry-run-abc", id)
	}
}
