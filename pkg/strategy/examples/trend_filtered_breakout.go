package examples

import (
	"time"

	"github.com/barforge/backtest/pkg/align"
	"github.com/barforge/backtest/pkg/position"
	"github.com/barforge/backtest/pkg/strategy"
)

// TrendFilteredBreakout trades a base-timeframe breakout of a rolling
// high/low channel (Extra columns channel_high/channel_low) only in
// the direction of the higher-timeframe trend, read off that
// timeframe's close vs. its own trend_sma column. It is the reference
// strategy for reading a higher timeframe's aligned columns (its
// RequiredTimeframes lists only that higher timeframe, not the base),
// and for a time-based SL that runs alongside a percent-derived price
// stop.
type TrendFilteredBreakout struct {
	*strategy.BaseStrategy

	higherTF       string
	slPercent      float64
	timeExitBars   int
	channelHighCol string
	channelLowCol  string
	trendSMACol    string
}

// NewTrendFilteredBreakout creates a TrendFilteredBreakout reading the
// breakout channel from the base bar and the trend filter from
// higherTF's aligned columns.
func NewTrendFilteredBreakout(higherTF string, slPercent float64, timeExitBars int) *TrendFilteredBreakout {
	meta := strategy.Metadata{
		ID:                 "trend_filtered_breakout",
		Name:               "trend_filtered_breakout",
		Description:        "Channel breakout gated by a higher-timeframe trend filter.",
		RequiredTimeframes: []string{higherTF},
		DefaultSLType:      position.SLPercent,
		DefaultTPType:      position.TPPercent,
	}
	return &TrendFilteredBreakout{
		BaseStrategy: strategy.NewBaseStrategy(meta, map[string]interface{}{
			"sl_percent":     slPercent,
			"time_exit_bars": timeExitBars,
		}),
		higherTF:       higherTF,
		slPercent:      slPercent,
		timeExitBars:   timeExitBars,
		channelHighCol: "channel_high",
		channelLowCol:  "channel_low",
		trendSMACol:    "trend_sma",
	}
}

// GenerateSignal goes long on a close above the rolling channel high
// when the higher timeframe is in an uptrend (close above its own
// trend SMA), and short on the mirror condition.
func (s *TrendFilteredBreakout) GenerateSignal(row align.Row, _ time.Time) (*strategy.Signal, error) {
	channelHigh, ok1 := row.Base.Extra[s.channelHighCol]
	channelLow, ok2 := row.Base.Extra[s.channelLowCol]
	if !ok1 || !ok2 {
		return nil, nil
	}

	higherClose, ok3 := row.Column(s.higherTF, "close")
	trendSMA, ok4 := row.Column(s.higherTF, s.trendSMACol)
	if !ok3 || !ok4 {
		return nil, nil
	}

	uptrend := higherClose > trendSMA
	close := row.Base.Close

	switch {
	case uptrend && close > channelHigh:
		return &strategy.Signal{
			Side: position.Long,
			SL: position.SLSpec{
				Type:    position.SLPercent,
				Percent: s.slPercent,
				Bars:    s.timeExitBars,
			},
			TP: &position.TPSpec{Type: position.TPPercent, Percent: s.slPercent * 2},
		}, nil
	case !uptrend && close < channelLow:
		return &strategy.Signal{
			Side: position.Short,
			SL: position.SLSpec{
				Type:    position.SLPercent,
				Percent: s.slPercent,
				Bars:    s.timeExitBars,
			},
			TP: &position.TPSpec{Type: position.TPPercent, Percent: s.slPercent * 2},
		}, nil
	default:
		return nil, nil
	}
}
