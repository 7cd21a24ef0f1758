package feed

import (
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/marketkeeper/keeper/internal/clock"
	"github.com/marketkeeper/keeper/pkg/types"
)

// fileDoc is the small JSON document a File feed expects: {"price": "1.23"}.
type fileDoc struct {
	Price decimal.Decimal `json:"price"`
}

// File re-reads a small JSON document containing a price field on every
// query — synchronous, like Fixed.
type File struct {
	fs     afero.Fs
	path   string
	clk    clock.Clock
	logger *slog.Logger
}

// NewFile builds a File feed reading path through fs (afero.NewOsFs() in
// production; an in-memory fs in tests).
func NewFile(fs afero.Fs, path string, clk clock.Clock, logger *slog.Logger) *File {
	return &File{fs: fs, path: path, clk: clk, logger: logger.With("component", "feed_file", "path", path)}
}

func (f *File) Read() types.PriceReading {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		f.logger.Warn("read failed", "error", err)
		return types.Unavailable()
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		f.logger.Warn("parse failed", "error", err)
		return types.Unavailable()
	}
	return types.PriceReading{Price: doc.Price, Acquired: f.clk.Now(), Available: true}
}
