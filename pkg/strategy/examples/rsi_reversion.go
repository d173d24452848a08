package examples

import (
	"time"

	"github.com/barforge/backtest/pkg/align"
	"github.com/barforge/backtest/pkg/position"
	"github.com/barforge/backtest/pkg/strategy"
)

// RSIReversion opens a position on every bar an RSI column (pre-computed
// by the external indicator framework) is at or beyond its
// oversold/overbought level, and scales out half the position at 1R
// ahead of its 2R take-profit. It demonstrates the partial-exit ladder
// and a strategy-level custom exit that closes whatever remains open
// once RSI reverts to the middle band.
type RSIReversion struct {
	*strategy.BaseStrategy

	rsiCol               string
	oversold, overbought float64
	exitMid              float64
	slPercent            float64
}

// NewRSIReversion creates an RSIReversion strategy reading rsiCol from
// the base bar's Extra map.
func NewRSIReversion(rsiCol string, oversold, overbought, slPercent float64) *RSIReversion {
	meta := strategy.Metadata{
		ID:            "rsi_reversion",
		Name:          "rsi_reversion",
		Description:   "Mean-reversion off an RSI extreme with a half-size partial exit at 1R.",
		DefaultSLType: position.SLPercent,
		DefaultTPType: position.TPRR,
		UsesCustomTP:  false,
	}
	return &RSIReversion{
		BaseStrategy: strategy.NewBaseStrategy(meta, map[string]interface{}{
			"oversold":   oversold,
			"overbought": overbought,
			"sl_percent": slPercent,
		}),
		rsiCol:     rsiCol,
		oversold:   oversold,
		overbought: overbought,
		exitMid:    (oversold + overbought) / 2,
		slPercent:  slPercent,
	}
}

// GenerateSignal goes long when RSI is at or below the oversold level
// and short when it is at or above the overbought level, with a
// one-rung partial ladder (half size at 1R) and the rest riding to a 2R
// take-profit.
func (s *RSIReversion) GenerateSignal(row align.Row, _ time.Time) (*strategy.Signal, error) {
	rsi, ok := row.Base.Extra[s.rsiCol]
	if !ok {
		return nil, nil
	}

	partials := []position.PartialExit{{Fraction: 0.5, RMultiple: 1.0}}

	switch {
	case rsi <= s.oversold:
		return &strategy.Signal{
			Side:     position.Long,
			SL:       position.SLSpec{Type: position.SLPercent, Percent: s.slPercent},
			TP:       &position.TPSpec{Type: position.TPRR, RMultiple: 2.0},
			Partials: partials,
		}, nil
	case rsi >= s.overbought:
		return &strategy.Signal{
			Side:     position.Short,
			SL:       position.SLSpec{Type: position.SLPercent, Percent: s.slPercent},
			TP:       &position.TPSpec{Type: position.TPRR, RMultiple: 2.0},
			Partials: partials,
		}, nil
	default:
		return nil, nil
	}
}

// ShouldExit closes whatever remains of the position once RSI has
// reverted to the middle of the oversold/overbought band, including
// after the 1R partial has fired.
func (s *RSIReversion) ShouldExit(pos position.PositionView, row align.Row, _ time.Time) (bool, error) {
	rsi, ok := row.Base.Extra[s.rsiCol]
	if !ok {
		return false, nil
	}
	if pos.Side == position.Long {
		return rsi >= s.exitMid, nil
	}
	return rsi <= s.exitMid, nil
}
