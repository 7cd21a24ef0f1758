// Package control implements the keeper's control loop: the
// starting/running/draining/stopped lifecycle and the per-cycle
// sequence (read snapshot, read feed, read config, run the band
// engine, dispatch cancels then places with bounded concurrency,
// update in-flight sets).
//
// The balance-floor check is a single pre-start/steady-state
// threshold, not the multi-factor exposure-and-PnL kill switch a
// full risk manager would run — there is no position or PnL tracking
// here, only a balance floor.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/internal/bands"
	"github.com/marketkeeper/keeper/internal/book"
	"github.com/marketkeeper/keeper/internal/clock"
	"github.com/marketkeeper/keeper/internal/engine"
	"github.com/marketkeeper/keeper/internal/exchange"
	"github.com/marketkeeper/keeper/internal/feed"
	"github.com/marketkeeper/keeper/internal/limits"
	"github.com/marketkeeper/keeper/internal/metrics"
	"github.com/marketkeeper/keeper/internal/reload"
	"github.com/marketkeeper/keeper/pkg/types"
)

// State is one of the control loop's lifecycle states.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrUnsafeToStart is returned by Start when the pre-start balance
// check fails the configured floor.
var ErrUnsafeToStart = errors.New("control: unsafe to start, balance below configured floor")

// Config tunes the control loop's cadence, dispatch concurrency, and
// safety floors.
type Config struct {
	CycleInterval       time.Duration
	DispatchConcurrency int
	InFlightMaxCycles   int
	DispatchTimeout     time.Duration
	DrainTimeout        time.Duration
	CancelAllOnDrain    bool
	MinBuyBalance       decimal.Decimal
	MinSellBalance      decimal.Decimal
}

// Loop drives one keeper process's control cycle against one exchange
// adapter, one price feed, and one hot-reloaded bands configuration.
type Loop struct {
	cfg     Config
	adapter exchange.Adapter
	pf      feed.Feed
	rc      *reload.ReloadableConfig
	book    *book.Book
	limits  *limits.Limits
	clk     clock.Clock
	logger  *slog.Logger

	mu    sync.RWMutex
	state State

	idleMu     sync.Mutex
	idleReason string

	stop    chan struct{}
	stopped chan struct{}
}

// New builds a Loop. The Loop keeps limitsState for its whole lifetime:
// it reads headroom from it each cycle and records every confirmed
// placement into it. A bands reload changes its rules only if the caller
// applies them to this same value (limits.Limits.UpdateRules).
func New(cfg Config, adapter exchange.Adapter, pf feed.Feed, rc *reload.ReloadableConfig, limitsState *limits.Limits, clk clock.Clock, logger *slog.Logger) *Loop {
	return &Loop{
		cfg:     cfg,
		adapter: adapter,
		pf:      pf,
		rc:      rc,
		book:    book.New(cfg.InFlightMaxCycles),
		limits:  limitsState,
		clk:     clk,
		logger:  logger.With("component", "control"),
		state:   StateStarting,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func init() {
	metrics.SetControlState(StateStarting.String(), controlStates...)
}

// State reports the loop's current lifecycle state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// controlStates lists every lifecycle state so SetControlState can zero
// out the ones that aren't current.
var controlStates = []string{
	StateStarting.String(), StateRunning.String(), StateDraining.String(), StateStopped.String(),
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	metrics.SetControlState(s.String(), controlStates...)
}

// Book exposes the effective order book for dashboard/reporting use.
func (l *Loop) Book() *book.Book { return l.book }

// Limits exposes the placement-history limiter for dashboard/reporting
// use (e.g. remaining headroom per side).
func (l *Loop) Limits() *limits.Limits { return l.limits }

// Start performs the starting→running transition: an initial exchange
// snapshot and an initial feed reading must both succeed, and the
// pre-start balance must clear the configured floor.
func (l *Loop) Start(ctx context.Context) error {
	orders, err := l.adapter.GetOrders(ctx)
	if err != nil {
		return fmt.Errorf("control: initial snapshot: %w", err)
	}
	l.book.ApplySnapshot(orders, l.clk.Now())

	if reading := l.pf.Read(); !reading.Available {
		return fmt.Errorf("control: initial feed reading unavailable")
	}

	buy, sell, err := l.adapter.Balances(ctx)
	if err != nil {
		return fmt.Errorf("control: initial balances: %w", err)
	}
	if belowFloor(buy, sell, l.cfg.MinBuyBalance, l.cfg.MinSellBalance) {
		return ErrUnsafeToStart
	}

	l.setState(StateRunning)
	return nil
}

func belowFloor(buy, sell, minBuy, minSell decimal.Decimal) bool {
	if !minBuy.IsZero() && buy.LessThan(minBuy) {
		return true
	}
	if !minSell.IsZero() && sell.LessThan(minSell) {
		return true
	}
	return false
}

// Run drives cycles until ctx is cancelled, Stop is called, or a
// balance-floor breach moves the loop into draining. It blocks until
// the loop reaches stopped.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	ticker := time.NewTicker(l.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.drain(context.Background())
			return
		case <-l.stop:
			l.drain(context.Background())
			return
		case <-ticker.C:
			if l.State() != StateRunning {
				continue
			}
			l.runCycle(ctx)
		}
	}
}

// Stop requests a graceful shutdown; Run returns once draining
// completes.
func (l *Loop) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

// Stopped is closed once the loop has fully drained.
func (l *Loop) Stopped() <-chan struct{} { return l.stopped }

func (l *Loop) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, l.cfg.DispatchTimeout)
	defer cancel()

	orders, err := l.adapter.GetOrders(cycleCtx)
	if err != nil {
		l.enterIdle("snapshot_error", func() {
			l.logger.Warn("snapshot fetch failed, skipping cycle", "error", err)
		})
		metrics.CyclesTotal.WithLabelValues("snapshot_error").Inc()
		return
	}
	now := l.clk.Now()
	l.book.ApplySnapshot(orders, now)
	l.book.AgeCycle()
	metrics.InFlightPlaced.Set(float64(l.book.InFlightPlacedCount()))
	metrics.InFlightCancelled.Set(float64(l.book.InFlightCancelledCount()))

	reading := l.pf.Read()
	metrics.RecordFeedAvailability(reading.Available)
	if !reading.Available {
		l.enterIdle("idle_no_price", func() {
			l.logger.Warn("price unavailable, idling this cycle")
		})
		metrics.CyclesTotal.WithLabelValues("idle_no_price").Inc()
		return
	}

	bandSet := l.rc.Current()
	if bandSet == nil {
		l.enterIdle("idle_no_bands_missing", func() {
			l.logger.Warn("no validated bands configuration yet, idling this cycle")
		})
		metrics.CyclesTotal.WithLabelValues("idle_no_bands").Inc()
		return
	}
	if err := bands.Validate(*bandSet); err != nil {
		l.enterIdle("idle_no_bands_invalid", func() {
			l.logger.Error("bands configuration invalid, idling this cycle", "error", err)
		})
		metrics.CyclesTotal.WithLabelValues("idle_no_bands").Inc()
		return
	}

	buy, sell, err := l.adapter.Balances(cycleCtx)
	if err != nil {
		l.enterIdle("balances_error", func() {
			l.logger.Warn("balances fetch failed, skipping cycle", "error", err)
		})
		metrics.CyclesTotal.WithLabelValues("balances_error").Inc()
		return
	}
	if belowFloor(buy, sell, l.cfg.MinBuyBalance, l.cfg.MinSellBalance) {
		l.logger.Error("balance floor breached, draining")
		metrics.CyclesTotal.WithLabelValues("balance_floor_breach").Inc()
		l.Stop()
		return
	}

	minAmounts, err := l.adapter.MinAmounts(cycleCtx)
	if err != nil {
		l.enterIdle("min_amounts_error", func() {
			l.logger.Warn("min amounts fetch failed, skipping cycle", "error", err)
		})
		metrics.CyclesTotal.WithLabelValues("min_amounts_error").Inc()
		return
	}

	metrics.LimitHeadroom.WithLabelValues(string(types.Buy)).Set(toFloat(l.limits.Available(types.Buy, now)))
	metrics.LimitHeadroom.WithLabelValues(string(types.Sell)).Set(toFloat(l.limits.Available(types.Sell, now)))

	intents := engine.Evaluate(*bandSet, l.book.Effective(), engine.Balances{Buy: buy, Sell: sell},
		l.limits, engine.MinAmounts{Buy: minAmounts.Buy, Sell: minAmounts.Sell}, reading.Price, now)
	l.clearIdle()
	if intents.IsEmpty() {
		metrics.CyclesTotal.WithLabelValues("ok").Inc()
		return
	}

	l.dispatchCancels(cycleCtx, intents.Cancels)
	l.dispatchPlaces(cycleCtx, intents.Places, now)
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
}

// enterIdle records reason as the cause of this cycle's early return and
// invokes logFn only on the transition into this reason (or a change of
// reason), so a persisting condition logs once instead of every cycle.
func (l *Loop) enterIdle(reason string, logFn func()) {
	l.idleMu.Lock()
	changed := l.idleReason != reason
	l.idleReason = reason
	l.idleMu.Unlock()
	if changed {
		logFn()
	}
}

// clearIdle marks the loop as no longer idle, logging once at Info when
// a cycle completes normally after an idle streak.
func (l *Loop) clearIdle() {
	l.idleMu.Lock()
	wasIdle := l.idleReason != ""
	l.idleReason = ""
	l.idleMu.Unlock()
	if wasIdle {
		l.logger.Info("resumed normal operation")
	}
}

// toFloat converts a decimal headroom value to float64 for gauge
// reporting; limits.Unbounded is large enough that precision loss here
// never matters for dashboarding.
func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// dispatchCancels issues every cancel before any place in the cycle, so a
// replacement order can never land before the order it's replacing has
// cleared, fanning out with bounded concurrency.
func (l *Loop) dispatchCancels(ctx context.Context, cancels []types.CancelIntent) {
	sem := make(chan struct{}, l.concurrency())
	var wg sync.WaitGroup
	for _, c := range cancels {
		c := c
		l.book.RecordCancelDispatched(c.OrderID)
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := l.adapter.CancelOrder(ctx, c.OrderID); err != nil {
				l.logger.Warn("cancel dispatch failed, will retry next cycle", "order_id", c.OrderID, "reason", c.Reason, "error", err)
				metrics.CancelsTotal.WithLabelValues(c.Reason, "error").Inc()
				return
			}
			metrics.CancelsTotal.WithLabelValues(c.Reason, "ok").Inc()
		}()
	}
	wg.Wait()
}

func (l *Loop) dispatchPlaces(ctx context.Context, places []types.PlaceIntent, now time.Time) {
	sem := make(chan struct{}, l.concurrency())
	var wg sync.WaitGroup
	for _, p := range places {
		p := p
		if p.ClientID == "" {
			p.ClientID = uuid.NewString()
		}
		l.book.RecordPlaceDispatched(p.ClientID, types.Order{
			Side: p.Side, Price: p.Price, BuyAmount: p.BuyAmount, SellAmount: p.SellAmount, CreatedAt: now,
		})
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			orderID, err := l.adapter.PlaceOrder(ctx, p)
			if err != nil {
				l.logger.Warn("place dispatch failed, will retry next cycle", "client_id", p.ClientID, "error", err)
				metrics.PlacesTotal.WithLabelValues(string(p.Side), "error").Inc()
				return
			}
			l.book.ConfirmPlace(p.ClientID, orderID)
			amount := types.Order{Side: p.Side, BuyAmount: p.BuyAmount, SellAmount: p.SellAmount}.Amount()
			l.limits.Record(p.Side, amount, now)
			metrics.PlacesTotal.WithLabelValues(string(p.Side), "ok").Inc()
		}()
	}
	wg.Wait()
}

func (l *Loop) concurrency() int {
	if l.cfg.DispatchConcurrency <= 0 {
		return 1
	}
	return l.cfg.DispatchConcurrency
}

// drain performs the running/draining→stopped transition: optionally
// cancel-all, then mark stopped regardless of the outcome — a failed
// cancel-all is logged, not retried, since the process is exiting.
func (l *Loop) drain(parent context.Context) {
	l.setState(StateDraining)
	if l.cfg.CancelAllOnDrain {
		ctx, cancel := context.WithTimeout(parent, l.cfg.DrainTimeout)
		defer cancel()
		if err := l.adapter.CancelAll(ctx); err != nil {
			l.logger.Error("cancel-all on drain failed", "error", err)
		}
	}
	l.setState(StateStopped)
}
