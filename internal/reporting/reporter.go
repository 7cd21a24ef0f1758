package reporting

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/marketkeeper/keeper/internal/clock"
)

// ReporterConfig configures the periodic POST of the effective book to
// an opaque external endpoint.
type ReporterConfig struct {
	Endpoint string
	Interval time.Duration
}

// Reporter periodically POSTs a Snapshot to an external endpoint — the
// wire format is opaque to the keeper beyond "valid JSON": the sink is
// a fire-and-forget destination, not a peer it negotiates a protocol
// with.
type Reporter struct {
	cfg       ReporterConfig
	provider  Provider
	clk       clock.Clock
	priceFunc func() (price, buyAmount string)
	http      *resty.Client
	logger    *slog.Logger
}

// NewReporter builds a Reporter posting to cfg.Endpoint every
// cfg.Interval.
func NewReporter(cfg ReporterConfig, provider Provider, clk clock.Clock, priceFunc func() (string, string), logger *slog.Logger) *Reporter {
	return &Reporter{
		cfg:       cfg,
		provider:  provider,
		clk:       clk,
		priceFunc: priceFunc,
		http: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond),
		logger: logger.With("component", "reporter"),
	}
}

// Run posts one snapshot every cfg.Interval until ctx is cancelled. A
// failed post is logged and retried on the next tick, never fatal —
// the reporting sink is advisory, not part of the control loop's
// correctness.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.postOnce(ctx)
		}
	}
}

func (r *Reporter) postOnce(ctx context.Context) {
	price, buyAmount := r.priceFunc()
	snap := BuildSnapshot(r.provider, r.clk, price, buyAmount)

	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(snap).
		Post(r.cfg.Endpoint)
	if err != nil {
		r.logger.Warn("report post failed", "error", err)
		return
	}
	if resp.IsError() {
		r.logger.Warn("report post rejected", "status", resp.StatusCode())
	}
}
