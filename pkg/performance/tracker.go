package performance

import (
	"math"
	"time"

	"github.com/barforge/backtest/pkg/position"
)

// Tracker accumulates equity samples and closed trades over a run and
// computes the summary metrics of spec.md §4.5.
type Tracker struct {
	initialCapital float64
	cfg            Config
	peakEquity     float64
	samples        []EquitySample
	trades         []TradeRecord
}

// NewTracker creates a Tracker seeded with initialCapital.
func NewTracker(initialCapital float64, cfg Config) *Tracker {
	return &Tracker{
		initialCapital: initialCapital,
		cfg:            cfg,
		peakEquity:     initialCapital,
	}
}

// RecordBar appends one equity sample. realizedPnL and unrealizedPnL
// are the caller's current totals across every strategy's positions.
func (t *Tracker) RecordBar(at time.Time, realizedPnL, unrealizedPnL float64) {
	equity := t.initialCapital + realizedPnL + unrealizedPnL
	if equity > t.peakEquity {
		t.peakEquity = equity
	}
	drawdown := 0.0
	if t.peakEquity > 0 {
		drawdown = (t.peakEquity - equity) / t.peakEquity
	}
	t.samples = append(t.samples, EquitySample{
		Time:       at,
		Realized:   realizedPnL,
		Unrealized: unrealizedPnL,
		Equity:     equity,
		Drawdown:   drawdown,
	})
}

// RecordTrade converts a fully closed position into a TradeRecord.
func (t *Tracker) RecordTrade(p *position.Position) TradeRecord {
	exitPrice := p.EntryPrice
	if len(p.Fills) > 0 {
		exitPrice = p.Fills[len(p.Fills)-1].Price
	}
	tr := TradeRecord{
		Strategy:     p.Strategy,
		Side:         p.Side,
		EntryTime:    p.EntryTime,
		EntryPrice:   p.EntryPrice,
		ExitTime:     p.CloseTime,
		ExitPrice:    exitPrice,
		InitialSize:  p.InitialSize,
		InitialRisk:  p.InitialRisk,
		RealizedPnL:  p.RealizedPnL,
		RMultiple:    p.RMultiple(),
		CloseReason:  p.CloseReason,
		DurationBars: p.BarsHeld,
		Duration:     p.CloseTime.Sub(p.EntryTime),
	}
	t.trades = append(t.trades, tr)
	return tr
}

// EquityCurve returns the recorded equity samples.
func (t *Tracker) EquityCurve() []EquitySample {
	return t.samples
}

// Trades returns the recorded trade log.
func (t *Tracker) Trades() []TradeRecord {
	return t.trades
}

// Summary computes the end-of-run metrics. baseTimeframeMinutes is the
// duration of the engine's base bar, used for annualization.
func (t *Tracker) Summary(baseTimeframeMinutes uint32) Summary {
	n := len(t.trades)

	var wins int
	var sumPositive, sumNegative, sumR float64
	var winPnLTotal, lossPnLTotal float64
	var winCount, lossCount int
	for _, tr := range t.trades {
		sumR += tr.RMultiple
		if tr.RealizedPnL > 0 {
			wins++
			sumPositive += tr.RealizedPnL
			winPnLTotal += tr.RealizedPnL
			winCount++
		} else {
			sumNegative += tr.RealizedPnL
			lossPnLTotal += tr.RealizedPnL
			lossCount++
		}
	}

	winRate := 0.0
	if n > 0 {
		winRate = float64(wins) / float64(n)
	}

	profitFactor := math.Inf(1)
	if sumNegative < 0 {
		profitFactor = sumPositive / math.Abs(sumNegative)
	}

	avgR := 0.0
	if n > 0 {
		avgR = sumR / float64(n)
	}

	finalEquity := t.initialCapital
	if len(t.samples) > 0 {
		finalEquity = t.samples[len(t.samples)-1].Equity
	}
	totalReturn := 0.0
	if t.initialCapital != 0 {
		totalReturn = (finalEquity - t.initialCapital) / t.initialCapital
	}

	var maxDrawdown, ddSum float64
	var ddCount int
	for _, s := range t.samples {
		if s.Drawdown > maxDrawdown {
			maxDrawdown = s.Drawdown
		}
		if s.Drawdown > 0 {
			ddSum += s.Drawdown
			ddCount++
		}
	}
	avgDrawdown := 0.0
	if ddCount > 0 {
		avgDrawdown = ddSum / float64(ddCount)
	}

	returns := barReturns(t.samples)
	mean, std := meanStdDev(returns)
	annualization := 1.0
	if baseTimeframeMinutes > 0 {
		annualization = math.Sqrt(t.cfg.annualizationMinutes() / float64(baseTimeframeMinutes))
	}

	sharpe := 0.0
	if std > 0 {
		sharpe = mean / std * annualization
	}

	negReturns := negativeOnly(returns)
	_, negStd := meanStdDev(negReturns)
	sortino := 0.0
	if negStd > 0 {
		sortino = mean / negStd * annualization
	}

	calmar := 0.0
	if maxDrawdown > 0 {
		calmar = totalReturn / maxDrawdown
	}

	avgWin := 0.0
	if winCount > 0 {
		avgWin = winPnLTotal / float64(winCount)
	}
	avgLoss := 0.0
	if lossCount > 0 {
		avgLoss = lossPnLTotal / float64(lossCount)
	}
	expectancy := winRate*avgWin - (1-winRate)*math.Abs(avgLoss)

	return Summary{
		TotalReturnPct: totalReturn,
		WinRate:        winRate,
		ProfitFactor:   profitFactor,
		MaxDrawdown:    maxDrawdown,
		AvgDrawdown:    avgDrawdown,
		Sharpe:         sharpe,
		Sortino:        sortino,
		Calmar:         calmar,
		AvgRMultiple:   avgR,
		Expectancy:     expectancy,
		TradeCount:     n,
		FinalEquity:    finalEquity,
	}
}

// barReturns computes the percent change between consecutive equity
// samples.
func barReturns(samples []EquitySample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev := samples[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (samples[i].Equity-prev)/prev)
	}
	return returns
}

func negativeOnly(returns []float64) []float64 {
	var out []float64
	for _, r := range returns {
		if r < 0 {
			out = append(out, r)
		}
	}
	return out
}

func meanStdDev(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	if len(values) < 2 {
		return mean, 0
	}
	varSum := 0.0
	for _, v := range values {
		d := v - mean
		varSum += d * d
	}
	std = math.Sqrt(varSum / float64(len(values)))
	return mean, std
}
