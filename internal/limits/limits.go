// Package limits implements a sliding-window rate limiter over historical
// order placements. Its rule sets come straight off the BandSet; when the
// bands configuration reloads, UpdateRules swaps them on the same Limits
// value, so the placement history it accumulates survives reloads — it
// is the process's memory of what it has actually placed.
//
// Keeps a running account of a rolling window the way a token bucket
// does, here keyed by order side and summing amounts rather than
// refilling a token count.
package limits

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketkeeper/keeper/pkg/types"
)

// Rule is a single (period, cap) constraint: at most Cap may be placed on
// one side within any trailing window of Period.
type Rule struct {
	Period time.Duration
	Cap    decimal.Decimal
}

// ParsePeriod parses a duration string with a single-letter unit suffix —
// s, m, h, d, w — as used in the bands configuration's limit rules. The
// stdlib time.ParseDuration already understands s/m/h; d and w are
// expanded by hand since it does not.
func ParsePeriod(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("limits: empty period")
	}
	unit := s[len(s)-1]
	numPart := s[:len(s)-1]
	switch unit {
	case 's', 'm', 'h':
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("limits: parse period %q: %w", s, err)
		}
		return d, nil
	case 'd':
		var n float64
		if _, err := fmt.Sscanf(numPart, "%g", &n); err != nil {
			return 0, fmt.Errorf("limits: parse period %q: %w", s, err)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	case 'w':
		var n float64
		if _, err := fmt.Sscanf(numPart, "%g", &n); err != nil {
			return 0, fmt.Errorf("limits: parse period %q: %w", s, err)
		}
		return time.Duration(n * float64(7*24*time.Hour)), nil
	default:
		return 0, fmt.Errorf("limits: unrecognized period unit in %q", s)
	}
}

// entry is one append-only PlacementHistory record.
type entry struct {
	timestamp time.Time
	side      types.Side
	amount    decimal.Decimal
}

// Unbounded is returned by Available when a side has no configured rules.
// It is large enough that no realistic band shortfall or balance will
// exceed it, so callers can take min(balance, Available(...)) unconditionally.
var Unbounded = decimal.NewFromInt(1).Shift(30)

// Limits tracks placement history and evaluates it against a set of rules
// per side. A zero Limits is usable (no rules, unlimited, empty history).
type Limits struct {
	mu        sync.Mutex
	buyRules  []Rule
	sellRules []Rule
	history   []entry
	retention time.Duration
}

// New creates a Limits evaluator for the given per-side rule sets.
func New(buyRules, sellRules []Rule) *Limits {
	l := &Limits{buyRules: buyRules, sellRules: sellRules}
	l.retention = maxPeriod(buyRules, sellRules)
	return l
}

func maxPeriod(rules ...[]Rule) time.Duration {
	var max time.Duration
	for _, set := range rules {
		for _, r := range set {
			if r.Period > max {
				max = r.Period
			}
		}
	}
	return max
}

// UpdateRules swaps in a new per-side rule set, e.g. after a bands
// configuration reload changes the configured caps. Existing placement
// history is kept; only the rules evaluated against it change.
func (l *Limits) UpdateRules(buyRules, sellRules []Rule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buyRules = buyRules
	l.sellRules = sellRules
	if retention := maxPeriod(buyRules, sellRules); retention > l.retention {
		l.retention = retention
	}
}

func (l *Limits) rulesFor(side types.Side) []Rule {
	if side == types.Buy {
		return l.buyRules
	}
	return l.sellRules
}

// Available returns the maximum additional amount permitted for side at
// time now, across all of that side's rules (the minimum per-rule
// allowance). Unbounded when the side has no rules.
func (l *Limits) Available(side types.Side, now time.Time) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	rules := l.rulesFor(side)
	if len(rules) == 0 {
		return Unbounded
	}

	min := Unbounded
	for _, rule := range rules {
		used := l.sumSince(side, now.Add(-rule.Period))
		remaining := rule.Cap.Sub(used)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		if remaining.LessThan(min) {
			min = remaining
		}
	}
	return min
}

func (l *Limits) sumSince(side types.Side, since time.Time) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range l.history {
		if e.side == side && !e.timestamp.Before(since) {
			sum = sum.Add(e.amount)
		}
	}
	return sum
}

// Record appends a confirmed placement to the history and prunes entries
// older than the longest configured window.
func (l *Limits) Record(side types.Side, amount decimal.Decimal, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, entry{timestamp: now, side: side, amount: amount})
	l.prune(now)
}

func (l *Limits) prune(now time.Time) {
	if l.retention <= 0 {
		return
	}
	cutoff := now.Add(-l.retention)
	i := 0
	for _, e := range l.history {
		if !e.timestamp.Before(cutoff) {
			l.history[i] = e
			i++
		}
	}
	l.history = l.history[:i]
}

// HistoryLen reports the number of retained placement records (for tests
// and metrics).
func (l *Limits) HistoryLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}
