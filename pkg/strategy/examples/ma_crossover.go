// Package examples holds reference Strategy implementations exercising
// the signal, SL/TP, partial-exit, and multi-timeframe hooks of
// pkg/strategy against real trading logic rather than synthetic tests.
package examples

import (
	"time"

	"github.com/barforge/backtest/pkg/align"
	"github.com/barforge/backtest/pkg/position"
	"github.com/barforge/backtest/pkg/strategy"
)

// MACrossover goes long on a bullish crossover of two SMA columns
// pre-computed by the external indicator framework and carried on the
// base bar's Extra map (short_sma, long_sma). It is flat otherwise: a
// fixed percent stop and a fixed R-multiple take-profit manage the
// exit, so ShouldExit is left at BaseStrategy's no-op default.
type MACrossover struct {
	*strategy.BaseStrategy

	shortCol, longCol string
	slPercent         float64
	tpRMultiple       float64

	lastShortAboveLong bool
	haveLast           bool
}

// NewMACrossover creates a MACrossover strategy reading shortCol/longCol
// from the base bar's Extra map.
func NewMACrossover(shortCol, longCol string, slPercent, tpRMultiple float64) *MACrossover {
	meta := strategy.Metadata{
		ID:            "ma_crossover",
		Name:          "ma_crossover",
		Description:   "Long-only SMA crossover with a percent stop and an R-multiple target.",
		BaseTimeframe: "",
		DefaultSLType: position.SLPercent,
		DefaultTPType: position.TPRR,
	}
	return &MACrossover{
		BaseStrategy: strategy.NewBaseStrategy(meta, map[string]interface{}{
			"sl_percent":   slPercent,
			"tp_rmultiple": tpRMultiple,
		}),
		shortCol:    shortCol,
		longCol:     longCol,
		slPercent:   slPercent,
		tpRMultiple: tpRMultiple,
	}
}

// GenerateSignal emits a long Signal the bar the short SMA crosses
// above the long SMA; it stays silent every other bar, including while
// already in a crossover state (the crossover, not the level, is the
// trigger).
func (s *MACrossover) GenerateSignal(row align.Row, _ time.Time) (*strategy.Signal, error) {
	shortVal, ok1 := row.Base.Extra[s.shortCol]
	longVal, ok2 := row.Base.Extra[s.longCol]
	if !ok1 || !ok2 {
		return nil, nil
	}

	aboveNow := shortVal > longVal
	defer func() { s.lastShortAboveLong, s.haveLast = aboveNow, true }()

	if !s.haveLast || aboveNow == s.lastShortAboveLong {
		return nil, nil
	}
	if !aboveNow {
		// Bearish cross with no open-short support in this strategy; a
		// live position is closed by its own SL/TP/time ladder instead.
		return nil, nil
	}

	return &strategy.Signal{
		Side: position.Long,
		SL:   position.SLSpec{Type: position.SLPercent, Percent: s.slPercent},
		TP:   &position.TPSpec{Type: position.TPRR, RMultiple: s.tpRMultiple},
	}, nil
}
