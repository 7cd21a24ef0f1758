package cex

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/internal/exchange"
	"github.com/marketkeeper/keeper/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDryRunPlaceOrderSkipsHTTP(t *testing.T) {
	t.Parallel()
	a := New(Config{DryRun: true, RequestTimeout: time.Second}, testLogger())

	id, err := a.PlaceOrder(context.Background(), types.PlaceIntent{
		ClientID: "abc", Side: types.Buy, Price: decimal.NewFromFloat(0.5),
		BuyAmount: decimal.NewFromInt(10), SellAmount: decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id != "dry-run-abc" {
		t.Errorf("id = %q, want dry-run-abc", id)
	}
}

func TestDryRunCancelOrderSkipsHTTP(t *testing.T) {
	t.Parallel()
	a := New(Config{DryRun: true, RequestTimeout: time.Second}, testLogger())
	if err := a.CancelOrder(context.Background(), "order-1"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
}

func TestGetOrdersParsesWireFormat(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]wireOrder{
			{ID: "1", Side: "buy", Price: "0.5", BuyAmount: "10", SellAmount: "20"},
		})
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, RequestTimeout: time.Second}, testLogger())
	orders, err := a.GetOrders(context.Background())
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "1" {
		t.Fatalf("orders = %+v", orders)
	}
	if orders[0].Side != types.Buy {
		t.Errorf("side = %v, want buy", orders[0].Side)
	}
}

func TestBalancesParsesResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct {
			Buy  string `json:"buy"`
			Sell string `json:"sell"`
		}{Buy: "100", Sell: "200"})
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, RequestTimeout: time.Second}, testLogger())
	buy, sell, err := a.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if !buy.Equal(decimal.NewFromInt(100)) || !sell.Equal(decimal.NewFromInt(200)) {
		t.Errorf("buy=%v sell=%v", buy, sell)
	}
}

func TestPairConventionReturnsConfigured(t *testing.T) {
	t.Parallel()
	a := New(Config{Pair: exchange.PairConvention{Base: "ETH", Quote: "USDC"}, RequestTimeout: time.Second}, testLogger())
	pc := a.PairConvention()
	if pc.Base != "ETH" || pc.Quote != "USDC" {
		t.Errorf("pair = %+v", pc)
	}
}
