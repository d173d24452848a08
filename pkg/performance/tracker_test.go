package performance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barforge/backtest/pkg/position"
)

func closedPosition(strategy string, side position.Side, entry, exit, size, risk float64, bars int) *position.Position {
	entryTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closeTime := entryTime.Add(time.Duration(bars) * 5 * time.Minute)
	sign := 1.0
	if side == position.Short {
		sign = -1
	}
	pnl := (exit - entry) * sign * size
	return &position.Position{
		Strategy:      strategy,
		Side:          side,
		EntryTime:     entryTime,
		EntryPrice:    entry,
		InitialSize:   size,
		RemainingSize: 0,
		InitialRisk:   risk,
		PointValue:    1,
		BarsHeld:      bars,
		Status:        position.StatusClosed,
		CloseReason:   position.CloseReasonTakeProfit,
		CloseTime:     closeTime,
		RealizedPnL:   pnl,
		Fills:         []position.Fill{{Time: closeTime, Price: exit, Size: size, Reason: position.CloseReasonTakeProfit}},
	}
}

func TestRecordTradeAndSummary(t *testing.T) {
	tr := NewTracker(10000, Config{MinutesPerYear: 525600})

	win := closedPosition("s", position.Long, 100, 110, 10, 100, 5)
	loss := closedPosition("s", position.Long, 100, 95, 10, 100, 3)

	rec := tr.RecordTrade(win)
	assert.Equal(t, 100.0, rec.RealizedPnL)
	tr.RecordTrade(loss)

	tr.RecordBar(win.CloseTime, win.RealizedPnL, 0)
	tr.RecordBar(loss.CloseTime, win.RealizedPnL+loss.RealizedPnL, 0)

	summary := tr.Summary(5)
	assert.Equal(t, 2, summary.TradeCount)
	assert.InDelta(t, 0.5, summary.WinRate, 1e-9)
	assert.InDelta(t, 100.0/50.0, summary.ProfitFactor, 1e-9)
	assert.InDelta(t, (100.0-50.0)/10000, summary.TotalReturnPct, 1e-9)
}

func TestProfitFactorInfiniteWithNoLosers(t *testing.T) {
	tr := NewTracker(10000, Config{})
	tr.RecordTrade(closedPosition("s", position.Long, 100, 110, 10, 100, 5))
	summary := tr.Summary(5)
	assert.True(t, math.IsInf(summary.ProfitFactor, 1))
}

func TestDrawdownTracking(t *testing.T) {
	tr := NewTracker(1000, Config{})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.RecordBar(base, 0, 0)                    // equity 1000, peak 1000
	tr.RecordBar(base.Add(time.Minute), 200, 0) // equity 1200, new peak
	tr.RecordBar(base.Add(2*time.Minute), 100, 0) // equity 1100, dd = (1200-1100)/1200

	curve := tr.EquityCurve()
	require.Len(t, curve, 3)
	assert.InDelta(t, 0.0, curve[0].Drawdown, 1e-9)
	assert.InDelta(t, 0.0, curve[1].Drawdown, 1e-9)
	assert.InDelta(t, (1200.0-1100.0)/1200.0, curve[2].Drawdown, 1e-9)

	summary := tr.Summary(5)
	assert.InDelta(t, (1200.0-1100.0)/1200.0, summary.MaxDrawdown, 1e-9)
}
