package feed

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/marketkeeper/keeper/internal/clock"
	"github.com/marketkeeper/keeper/pkg/types"
)

// Shell invokes a configured external command (a "setzer"-style price
// oracle script) on a fixed poll interval and caches the result. No
// wrapper library abstracts shell invocation here, so this uses stdlib
// os/exec directly — see DESIGN.md.
type Shell struct {
	name string
	args []string
	poll time.Duration
	clk  clock.Clock
	slot slot

	logger *slog.Logger
}

// NewShell builds a Shell feed that runs name(args...) every poll
// interval, parsing its trimmed stdout as a decimal price.
func NewShell(name string, args []string, poll time.Duration, clk clock.Clock, logger *slog.Logger) *Shell {
	return &Shell{
		name:   name,
		args:   args,
		poll:   poll,
		clk:    clk,
		logger: logger.With("component", "feed_shell", "cmd", name),
	}
}

func (s *Shell) Read() types.PriceReading {
	return s.slot.get()
}

// Run polls the command on s.poll cadence until ctx is cancelled,
// publishing each successful reading into the shared slot.
func (s *Shell) Run(ctx context.Context) error {
	s.query(ctx)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.query(ctx)
		}
	}
}

func (s *Shell) query(ctx context.Context) {
	cmd := exec.CommandContext(ctx, s.name, s.args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		s.logger.Warn("command failed", "error", err)
		return
	}

	price, err := decimalFromString(strings.TrimSpace(out.String()))
	if err != nil {
		s.logger.Warn("unparseable price from command", "raw", out.String(), "error", err)
		return
	}
	s.slot.set(types.PriceReading{Price: price, Acquired: s.clk.Now(), Available: true})
}
