// Package performance implements the performance tracker (C5): the
// per-bar equity sample, drawdown bookkeeping, and the end-of-run
// summary metrics computed over the closed-trade log and equity curve.
package performance

import (
	"time"

	"github.com/barforge/backtest/pkg/position"
)

// EquitySample is one bar's mark-to-market snapshot.
type EquitySample struct {
	Time       time.Time
	Realized   float64
	Unrealized float64
	Equity     float64
	Drawdown   float64
}

// TradeRecord is a closed position enriched with r-multiple and
// duration, ready for the trade log / CSV export.
type TradeRecord struct {
	Strategy     string
	Side         position.Side
	EntryTime    time.Time
	EntryPrice   float64
	ExitTime     time.Time
	ExitPrice    float64
	InitialSize  float64
	InitialRisk  float64
	RealizedPnL  float64
	RMultiple    float64
	CloseReason  position.CloseReason
	DurationBars int
	Duration     time.Duration
}

// Summary is the end-of-run report computed over the trade log and
// equity curve.
type Summary struct {
	TotalReturnPct float64
	WinRate        float64
	ProfitFactor   float64
	MaxDrawdown    float64
	AvgDrawdown    float64
	Sharpe         float64
	Sortino        float64
	Calmar         float64
	AvgRMultiple   float64
	Expectancy     float64

	TradeCount  int
	FinalEquity float64
}

// Config carries the annualization constants used by Sharpe/Sortino.
// MinutesPerYear defaults to 525600 (24x365, crypto-style). A tradfi
// session calendar can override it via TradingMinutesPerYear.
type Config struct {
	MinutesPerYear        float64
	TradingMinutesPerYear *float64
}

func (c Config) annualizationMinutes() float64 {
	if c.TradingMinutesPerYear != nil {
		return *c.TradingMinutesPerYear
	}
	if c.MinutesPerYear > 0 {
		return c.MinutesPerYear
	}
	return 525600
}
