// Package cex implements the exchange.Adapter contract against a
// generic centralized-exchange-style REST API: a resty client with
// rate limiting, retry-on-5xx, and HMAC request signing, stripped of
// anything specific to one venue's order-payload schema.
package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/internal/exchange"
	"github.com/marketkeeper/keeper/pkg/types"
)

// Config configures the REST adapter.
type Config struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	RequestTimeout time.Duration
	DryRun         bool
	Limits         RateLimits
	Pair           exchange.PairConvention
}

var _ exchange.Adapter = (*Adapter)(nil)

// Adapter is the REST exchange.Adapter implementation.
type Adapter struct {
	http   *resty.Client
	signer *Signer
	rl     *RateLimiter
	dryRun bool
	pair   exchange.PairConvention
	logger *slog.Logger
}

// New builds a REST adapter from cfg, signing every mutating request
// with the HMAC signer built from the configured API secret.
func New(cfg Config, logger *slog.Logger) *Adapter {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	limits := cfg.Limits
	if limits == (RateLimits{}) {
		limits = DefaultRateLimits()
	}

	return &Adapter{
		http:   httpClient,
		signer: NewSigner(cfg.APIKey, cfg.APISecret),
		rl:     NewRateLimiter(limits),
		dryRun: cfg.DryRun,
		pair:   cfg.Pair,
		logger: logger.With("component", "cex"),
	}
}

// PairConvention reports the configured base/quote assignment.
func (a *Adapter) PairConvention() exchange.PairConvention { return a.pair }

// wireOrder is the REST payload shape for a resting order.
type wireOrder struct {
	ID         string `json:"id"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	BuyAmount  string `json:"buy_amount"`
	SellAmount string `json:"sell_amount"`
}

func (w wireOrder) toOrder() (types.Order, error) {
	price, err := decimal.NewFromString(w.Price)
	if err != nil {
		return types.Order{}, fmt.Errorf("price: %w", err)
	}
	buy, err := decimal.NewFromString(w.BuyAmount)
	if err != nil {
		return types.Order{}, fmt.Errorf("buy_amount: %w", err)
	}
	sell, err := decimal.NewFromString(w.SellAmount)
	if err != nil {
		return types.Order{}, fmt.Errorf("sell_amount: %w", err)
	}
	side := types.Buy
	if w.Side == string(types.Sell) {
		side = types.Sell
	}
	return types.Order{ID: w.ID, Side: side, Price: price, BuyAmount: buy, SellAmount: sell}, nil
}

// GetOrders fetches the keeper's resting orders.
func (a *Adapter) GetOrders(ctx context.Context) ([]types.Order, error) {
	if err := a.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	headers, err := a.signer.Sign(http.MethodGet, "/orders", "")
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	var wire []wireOrder
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&wire).
		Get("/orders")
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]types.Order, 0, len(wire))
	for _, w := range wire {
		o, err := w.toOrder()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// PlaceOrder submits a new order and returns the venue-assigned id.
func (a *Adapter) PlaceOrder(ctx context.Context, intent types.PlaceIntent) (string, error) {
	if a.dryRun {
		a.logger.Info("dry-run place", "client_id", intent.ClientID, "side", intent.Side, "price", intent.Price)
		return "dry-run-" + intent.ClientID, nil
	}
	if err := a.rl.Order.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(wireOrder{
		Side:       string(intent.Side),
		Price:      intent.Price.String(),
		BuyAmount:  intent.BuyAmount.String(),
		SellAmount: intent.SellAmount.String(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}
	headers, err := a.signer.Sign(http.MethodPost, "/orders", string(body))
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	var result struct {
		OrderID string `json:"order_id"`
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return "", fmt.Errorf("post order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("post order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.OrderID, nil
}

// CancelOrder cancels a resting order by id.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	if a.dryRun {
		a.logger.Info("dry-run cancel", "order_id", orderID)
		return nil
	}
	if err := a.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	path := "/orders/" + orderID
	headers, err := a.signer.Sign(http.MethodDelete, path, "")
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	resp, err := a.http.R().SetContext(ctx).SetHeaders(headers).Delete(path)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// CancelAll cancels every resting order on this pair.
func (a *Adapter) CancelAll(ctx context.Context) error {
	if a.dryRun {
		a.logger.Info("dry-run cancel-all")
		return nil
	}
	if err := a.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	headers, err := a.signer.Sign(http.MethodDelete, "/cancel-all", "")
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	resp, err := a.http.R().SetContext(ctx).SetHeaders(headers).Delete("/cancel-all")
	if err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}
	a.logger.Warn("cancelled all orders")
	return nil
}

// Balances reports the available buy-token and sell-token balances.
func (a *Adapter) Balances(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	headers, err := a.signer.Sign(http.MethodGet, "/balances", "")
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sign: %w", err)
	}

	var result struct {
		Buy  string `json:"buy"`
		Sell string `json:"sell"`
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/balances")
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("get balances: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, decimal.Zero, fmt.Errorf("get balances: status %d: %s", resp.StatusCode(), resp.String())
	}
	buy, err := decimal.NewFromString(result.Buy)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("buy balance: %w", err)
	}
	sell, err := decimal.NewFromString(result.Sell)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sell balance: %w", err)
	}
	return buy, sell, nil
}

// MinAmounts reports the venue's per-side placement floor.
func (a *Adapter) MinAmounts(ctx context.Context) (exchange.MinAmounts, error) {
	var result struct {
		MinBuy  string `json:"min_buy"`
		MinSell string `json:"min_sell"`
	}
	resp, err := a.http.R().SetContext(ctx).SetResult(&result).Get("/market-config")
	if err != nil {
		return exchange.MinAmounts{}, fmt.Errorf("get market config: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return exchange.MinAmounts{}, fmt.Errorf("get market config: status %d: %s", resp.StatusCode(), resp.String())
	}
	buy, err := decimal.NewFromString(result.MinBuy)
	if err != nil {
		return exchange.MinAmounts{}, fmt.Errorf("min_buy: %w", err)
	}
	sell, err := decimal.NewFromString(result.MinSell)
	if err != nil {
		return exchange.MinAmounts{}, fmt.Errorf("min_sell: %w", err)
	}
	return exchange.MinAmounts{Buy: buy, Sell: sell}, nil
}
