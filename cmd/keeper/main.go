// Command keeper runs one market-making keeper process: one trading
// pair on one venue (centralized REST or on-chain order book), quoting
// against a hot-reloaded bands configuration and a failover price feed.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/marketkeeper/keeper/internal/bands"
	"github.com/marketkeeper/keeper/internal/clock"
	"github.com/marketkeeper/keeper/internal/config"
	"github.com/marketkeeper/keeper/internal/control"
	"github.com/marketkeeper/keeper/internal/exchange"
	"github.com/marketkeeper/keeper/internal/exchange/cex"
	"github.com/marketkeeper/keeper/internal/exchange/gasprice"
	"github.com/marketkeeper/keeper/internal/exchange/onchain"
	"github.com/marketkeeper/keeper/internal/feed"
	"github.com/marketkeeper/keeper/internal/limits"
	"github.com/marketkeeper/keeper/internal/reload"
	"github.com/marketkeeper/keeper/internal/reporting"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("KEEPER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	adapter, err := buildAdapter(*cfg, logger)
	if err != nil {
		logger.Error("failed to build exchange adapter", "error", err)
		os.Exit(1)
	}

	clk := clock.Real{}

	fs := afero.NewOsFs()
	rc := reload.New(fs, cfg.Bands.Path, logger)
	if err := rc.Load(); err != nil {
		logger.Error("failed to load bands configuration", "error", err, "path", cfg.Bands.Path)
		os.Exit(1)
	}

	limitsState := buildLimits(rc.Current())

	feedTree, err := buildFeed(*cfg, fs, clk, logger)
	if err != nil {
		logger.Error("failed to build price feed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopPoll := make(chan struct{})
	go rc.PollLoop(cfg.Bands.PollInterval, stopPoll)
	defer close(stopPoll)

	go watchLimitRules(ctx, rc, limitsState, cfg.Bands.PollInterval)

	feed.StartAll(ctx, feedTree)

	loop := control.New(control.Config{
		CycleInterval:       cfg.Control.CycleInterval,
		DispatchConcurrency: cfg.Venue.DispatchConcurrency,
		InFlightMaxCycles:   cfg.Control.InFlightMaxCycles,
		DispatchTimeout:     cfg.Venue.RequestTimeout,
		DrainTimeout:        cfg.Control.DrainTimeout,
		CancelAllOnDrain:    cfg.Control.CancelAllOnDrain,
		MinBuyBalance:       decimal.NewFromFloat(cfg.Safety.MinBuyBalance),
		MinSellBalance:      decimal.NewFromFloat(cfg.Safety.MinSellBalance),
	}, adapter, feedTree, rc, limitsState, clk, logger)

	if err := loop.Start(ctx); err != nil {
		logger.Error("failed to start control loop", "error", err)
		os.Exit(1)
	}

	priceFunc := func() (string, string) {
		reading := feedTree.Read()
		if !reading.Available {
			return "", ""
		}
		return reading.Price.String(), ""
	}

	var dashboardServer *reporting.Server
	if cfg.Dashboard.Enabled {
		provider := reporting.LoopProvider{Loop: loop}
		dashboardServer = reporting.NewServer(reporting.ServerConfig{Addr: cfg.Dashboard.Addr}, provider, clk, priceFunc, logger)
		go func() {
			if err := dashboardServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "addr", cfg.Dashboard.Addr)
	}

	if cfg.Reporting.Enabled {
		provider := reporting.LoopProvider{Loop: loop}
		reporter := reporting.NewReporter(reporting.ReporterConfig{
			Endpoint: cfg.Reporting.Endpoint,
			Interval: cfg.Reporting.Interval,
		}, provider, clk, priceFunc, logger)
		go reporter.Run(ctx)
		logger.Info("periodic reporting started", "endpoint", cfg.Reporting.Endpoint, "interval", cfg.Reporting.Interval)
	}

	go loop.Run(ctx)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("keeper started",
		"venue", cfg.Venue.Kind,
		"pair", fmt.Sprintf("%s/%s", cfg.Venue.PairBase, cfg.Venue.PairQuote),
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if dashboardServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := dashboardServer.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
		shutdownCancel()
	}

	loop.Stop()

	select {
	case <-loop.Stopped():
	case <-time.After(cfg.Control.DrainTimeout + 5*time.Second):
		logger.Warn("drain timed out waiting for control loop to stop")
	}

	cancel()
}

func buildAdapter(cfg config.Config, logger *slog.Logger) (exchange.Adapter, error) {
	pair := exchange.PairConvention{Base: cfg.Venue.PairBase, Quote: cfg.Venue.PairQuote}

	switch cfg.Venue.Kind {
	case "cex":
		return cex.New(cex.Config{
			BaseURL:        cfg.Venue.BaseURL,
			APIKey:         cfg.Venue.APIKey,
			APISecret:      cfg.Venue.APISecret,
			RequestTimeout: cfg.Venue.RequestTimeout,
			DryRun:         cfg.DryRun,
			Pair:           pair,
		}, logger), nil

	case "onchain":
		client, err := ethclient.Dial(cfg.Venue.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial rpc %s: %w", cfg.Venue.RPCURL, err)
		}

		parsedABI, err := abi.JSON(strings.NewReader(onchain.DefaultABIJSON))
		if err != nil {
			return nil, fmt.Errorf("parse contract abi: %w", err)
		}

		var key *ecdsa.PrivateKey
		if !cfg.DryRun {
			key, err = crypto.HexToECDSA(strings.TrimPrefix(cfg.Wallet.PrivateKey, "0x"))
			if err != nil {
				return nil, fmt.Errorf("parse wallet private key: %w", err)
			}
		}

		gas := gasprice.Adaptive{Node: client, Multiplier: cfg.Venue.GasMultiplier}

		return onchain.New(client, key, gas, onchain.Config{
			Contract: common.HexToAddress(cfg.Venue.ContractAddr),
			ABI:      parsedABI,
			ChainID:  big.NewInt(cfg.Wallet.ChainID),
			DryRun:   cfg.DryRun,
			Pair:     pair,
			Decimals: cfg.Venue.Decimals,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown venue kind %q", cfg.Venue.Kind)
	}
}

func buildFeed(cfg config.Config, fs afero.Fs, clk clock.Clock, logger *slog.Logger) (feed.Feed, error) {
	builder := &feed.Builder{
		FS:            fs,
		Clock:         clk,
		Logger:        logger,
		ResolvePair:   buildPairResolver(cfg, clk, logger),
		ShellPoll:     cfg.Feed.ShellPoll,
		DefaultMaxAge: cfg.Feed.DefaultMaxAge,
	}
	return builder.Parse(cfg.Feed.URI)
}

// buildPairResolver resolves a bare feed.uri pair tag into a leaf feed:
// a "-setzer" tag runs the configured external price command on the
// pair (feed.Shell), a "-tub" tag reads the pair's configured on-chain
// oracle contract (feed.OnChain).
func buildPairResolver(cfg config.Config, clk clock.Clock, logger *slog.Logger) feed.NamedPairResolver {
	return func(pair string, onChain bool) (feed.Feed, error) {
		if !onChain {
			args := append(append([]string{}, cfg.Feed.ShellArgs...), pair)
			return feed.NewShell(cfg.Feed.ShellCmd, args, cfg.Feed.ShellPoll, clk, logger), nil
		}

		oracle, ok := cfg.Feed.Oracles[pair]
		if !ok {
			return nil, fmt.Errorf("no oracle configured for on-chain pair %q", pair)
		}
		client, err := ethclient.Dial(oracle.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial oracle rpc for %q: %w", pair, err)
		}
		parsedABI, err := abi.JSON(strings.NewReader(feed.DefaultOracleABIJSON))
		if err != nil {
			return nil, fmt.Errorf("parse oracle abi for %q: %w", pair, err)
		}
		method := oracle.Method
		if method == "" {
			method = "latestAnswer"
		}
		decimals := oracle.Decimals
		if decimals == 0 {
			decimals = 8
		}
		call := feed.NewOracleCall(client, common.HexToAddress(oracle.Contract), parsedABI, method)
		return feed.NewOnChain(call, decimals, clk, logger), nil
	}
}

func buildLimits(bs *bands.BandSet) *limits.Limits {
	if bs == nil {
		return limits.New(nil, nil)
	}
	return limits.New(bs.BuyLimits, bs.SellLimits)
}

// watchLimitRules applies a new rule set to limitsState whenever rc
// publishes a changed BandSet; the control loop holds a pointer to
// limitsState fixed at construction, so this is the only way its
// rules can change after a bands configuration reload.
func watchLimitRules(ctx context.Context, rc *reload.ReloadableConfig, limitsState *limits.Limits, interval time.Duration) {
	var last *bands.BandSet
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := rc.Current()
			if current == nil || current == last {
				continue
			}
			last = current
			limitsState.UpdateRules(current.BuyLimits, current.SellLimits)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
