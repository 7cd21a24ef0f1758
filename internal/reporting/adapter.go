package reporting

import (
	"time"

	"github.com/marketkeeper/keeper/internal/control"
	"github.com/marketkeeper/keeper/pkg/types"
)

// LoopProvider adapts a *control.Loop to Provider, so the reporting
// package can read a loop's state without the Provider interface itself
// naming the control package.
type LoopProvider struct {
	Loop *control.Loop
}

func (p LoopProvider) State() fmtStringer { return p.Loop.State() }

func (p LoopProvider) Effective() []types.Order { return p.Loop.Book().Effective() }

func (p LoopProvider) InFlightPlaced() int { return p.Loop.Book().InFlightPlacedCount() }

func (p LoopProvider) InFlightCancelled() int { return p.Loop.Book().InFlightCancelledCount() }

func (p LoopProvider) Headroom(side types.Side, now time.Time) string {
	return p.Loop.Limits().Available(side, now).String()
}

var _ Provider = LoopProvider{}
