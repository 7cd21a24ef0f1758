package feed

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/marketkeeper/keeper/internal/clock"
)

// NamedPairResolver resolves an implementation-provided pair tag (e.g.
// "eth_dai") plus an optional "-setzer"/"-tub" suffix into a leaf feed.
// The CLI parser calls this for any URI token that isn't one of the
// fixed/file/ws literal forms.
type NamedPairResolver func(pair string, onChain bool) (Feed, error)

// Builder constructs the leaf and wrapper feeds named in a comma-
// separated URI list, following the dynamic feed tree grammar
// Feed = Fixed | File | WebSocket | Shell | OnChain | Expiring(Feed) |
// Inverse(Feed) | Failover(Feed[]).
type Builder struct {
	FS           afero.Fs
	Clock        clock.Clock
	Logger       *slog.Logger
	ResolvePair  NamedPairResolver
	ShellPoll    time.Duration
	DefaultMaxAge time.Duration
}

// Parse builds a Failover-of-Expiring feed from spec, a comma-separated
// list of URI tokens, wrapping every leaf with the builder's shared
// default max age. A spec with a single token yields that token's
// Expiring feed without a Failover around it.
func (b *Builder) Parse(spec string) (Feed, error) {
	tokens := strings.Split(spec, ",")
	leaves := make([]Feed, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		leaf, err := b.parseOne(tok)
		if err != nil {
			return nil, fmt.Errorf("feed: parse %q: %w", tok, err)
		}
		leaves = append(leaves, NewExpiring(leaf, b.DefaultMaxAge, b.Clock))
	}
	if len(leaves) == 0 {
		return nil, fmt.Errorf("feed: empty feed spec")
	}
	if len(leaves) == 1 {
		return leaves[0], nil
	}
	return NewFailover(leaves...), nil
}

func (b *Builder) parseOne(tok string) (Feed, error) {
	switch {
	case strings.HasPrefix(tok, "fixed:"):
		price, err := decimal.NewFromString(strings.TrimPrefix(tok, "fixed:"))
		if err != nil {
			return nil, fmt.Errorf("invalid fixed price: %w", err)
		}
		return NewFixed(price, b.Clock), nil

	case strings.HasPrefix(tok, "file:"):
		path := strings.TrimPrefix(tok, "file:")
		return NewFile(b.FS, path, b.Clock, b.Logger), nil

	case strings.HasPrefix(tok, "ws://"), strings.HasPrefix(tok, "wss://"):
		f := NewWS(tok, b.Clock, b.Logger)
		return f, nil

	case strings.HasSuffix(tok, "-setzer"):
		pair := strings.TrimSuffix(tok, "-setzer")
		if b.ResolvePair == nil {
			return nil, fmt.Errorf("no named-pair resolver configured for %q", tok)
		}
		return b.ResolvePair(pair, false)

	case strings.HasSuffix(tok, "-tub"):
		pair := strings.TrimSuffix(tok, "-tub")
		if b.ResolvePair == nil {
			return nil, fmt.Errorf("no named-pair resolver configured for %q", tok)
		}
		return b.ResolvePair(pair, true)

	default:
		if b.ResolvePair == nil {
			return nil, fmt.Errorf("unrecognized feed token %q", tok)
		}
		return b.ResolvePair(tok, false)
	}
}
