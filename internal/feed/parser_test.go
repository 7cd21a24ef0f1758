package feed

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/marketkeeper/keeper/internal/clock"
	"github.com/marketkeeper/keeper/pkg/types"
)

func TestParserResolvesSetzerSuffixThroughResolvePair(t *testing.T) {
	t.Parallel()
	var gotPair string
	var gotOnChain bool
	b := &Builder{
		FS: afero.NewMemMapFs(), Clock: clock.NewFake(time.Now()), Logger: testLogger(), DefaultMaxAge: time.Hour,
		ResolvePair: func(pair string, onChain bool) (Feed, error) {
			gotPair, gotOnChain = pair, onChain
			return constFeed{reading: types.PriceReading{Available: true}}, nil
		},
	}

	if _, err := b.Parse("eth_dai-setzer"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if gotPair != "eth_dai" || gotOnChain {
		t.Fatalf("ResolvePair called with (%q, %v), want (\"eth_dai\", false)", gotPair, gotOnChain)
	}
}

func TestParserResolvesTubSuffixAsOnChain(t *testing.T) {
	t.Parallel()
	var gotOnChain bool
	b := &Builder{
		FS: afero.NewMemMapFs(), Clock: clock.NewFake(time.Now()), Logger: testLogger(), DefaultMaxAge: time.Hour,
		ResolvePair: func(pair string, onChain bool) (Feed, error) {
			gotOnChain = onChain
			return constFeed{reading: types.PriceReading{Available: true}}, nil
		},
	}

	if _, err := b.Parse("eth_dai-tub"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !gotOnChain {
		t.Fatal("expected -tub suffix to resolve with onChain=true")
	}
}

func TestParserFailsNamedPairWithoutResolver(t *testing.T) {
	t.Parallel()
	b := &Builder{FS: afero.NewMemMapFs(), Clock: clock.NewFake(time.Now()), Logger: testLogger(), DefaultMaxAge: time.Hour}
	if _, err := b.Parse("eth_dai-setzer"); err == nil {
		t.Fatal("expected an error when no NamedPairResolver is configured")
	}
}
