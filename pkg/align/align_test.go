package align

import (
	"testing"
	"time"

	"github.com/barforge/backtest/pkg/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func bar5m(ts string, close float64) market.Bar {
	t := mustParse(ts)
	return market.Bar{Symbol: "BTCUSD", Timeframe: "m5", Timestamp: t, Open: close, High: close, Low: close, Close: close}
}

func barH1(ts string, close float64) market.Bar {
	t := mustParse(ts)
	return market.Bar{Symbol: "BTCUSD", Timeframe: "h1", Timestamp: t, Open: close, High: close, Low: close, Close: close}
}

// TestAlignmentBoundary exercises S5: a 5m row at 08:00 must attach the
// 07:00-08:00 1h bar, not the 08:00-09:00 one.
func TestAlignmentBoundary(t *testing.T) {
	base := market.Frame{Symbol: "BTCUSD", Timeframe: "m5", Bars: []market.Bar{
		bar5m("2024-01-01T07:55", 100),
		bar5m("2024-01-01T08:00", 101),
		bar5m("2024-01-01T08:05", 102),
	}}
	hourly := market.Frame{Symbol: "BTCUSD", Timeframe: "h1", Bars: []market.Bar{
		barH1("2024-01-01T06:00", 90),
		barH1("2024-01-01T07:00", 95),
		barH1("2024-01-01T08:00", 200),
	}}

	out, err := Align(map[string]market.Frame{"m5": base, "h1": hourly}, []string{"m5", "h1"})
	require.NoError(t, err)
	require.Len(t, out, 3)

	// Row at 07:55: last fully closed 1h bar is the 06:00 bar (closes 07:00).
	v, ok := out[0].Column("h1", "close")
	require.True(t, ok)
	assert.Equal(t, 90.0, v)

	// Row at 08:00: sees the 07:00-08:00 bar (closes exactly at 08:00), not 08:00-09:00.
	v, ok = out[1].Column("h1", "close")
	require.True(t, ok)
	assert.Equal(t, 95.0, v)

	// Row at 08:05: still the 07:00 bar, since the 08:00 bar hasn't closed yet.
	v, ok = out[2].Column("h1", "close")
	require.True(t, ok)
	assert.Equal(t, 95.0, v)
}

func TestLeadingRowsDroppedBeforeFirstHigherBarCloses(t *testing.T) {
	base := market.Frame{Symbol: "X", Timeframe: "m5", Bars: []market.Bar{
		bar5m("2024-01-01T06:00", 1),
		bar5m("2024-01-01T06:30", 2),
		bar5m("2024-01-01T07:00", 3),
	}}
	hourly := market.Frame{Symbol: "X", Timeframe: "h1", Bars: []market.Bar{
		barH1("2024-01-01T06:00", 10), // closes 07:00
	}}

	out, err := Align(map[string]market.Frame{"m5": base, "h1": hourly}, []string{"m5", "h1"})
	require.NoError(t, err)
	// Only the 07:00 row has a closed higher-timeframe bar (closes exactly then).
	require.Len(t, out, 1)
	assert.Equal(t, mustParse("2024-01-01T07:00"), out[0].Base.Timestamp)
}

func TestEmptyData(t *testing.T) {
	_, err := Align(map[string]market.Frame{}, []string{"m5"})
	assert.ErrorIs(t, err, ErrEmptyData)
}

func TestInvalidTimeframeOrder(t *testing.T) {
	base := market.Frame{Symbol: "X", Timeframe: "h1", Bars: []market.Bar{barH1("2024-01-01T00:00", 1)}}
	small := market.Frame{Symbol: "X", Timeframe: "m5", Bars: []market.Bar{bar5m("2024-01-01T00:00", 1)}}

	_, err := Align(map[string]market.Frame{"h1": base, "m5": small}, []string{"h1", "m5"})
	assert.ErrorIs(t, err, ErrInvalidTimeframeOrder)
}

func TestMissingTimeframeData(t *testing.T) {
	base := market.Frame{Symbol: "X", Timeframe: "m5", Bars: []market.Bar{bar5m("2024-01-01T00:00", 1)}}
	_, err := Align(map[string]market.Frame{"m5": base}, []string{"m5", "h1"})
	assert.ErrorIs(t, err, ErrMissingTimeframeData)
}

// TestNoLookahead is testable property 1: every row's higher-timeframe
// values come from a bar whose close time is <= the row's base time.
func TestNoLookahead(t *testing.T) {
	base := market.Frame{Symbol: "X", Timeframe: "m5", Bars: []market.Bar{
		bar5m("2024-01-01T07:50", 1),
		bar5m("2024-01-01T07:55", 2),
		bar5m("2024-01-01T08:00", 3),
		bar5m("2024-01-01T08:05", 4),
	}}
	hourly := market.Frame{Symbol: "X", Timeframe: "h1", Bars: []market.Bar{
		barH1("2024-01-01T07:00", 70),
		barH1("2024-01-01T08:00", 80),
	}}
	out, err := Align(map[string]market.Frame{"m5": base, "h1": hourly}, []string{"m5", "h1"})
	require.NoError(t, err)
	for _, row := range out {
		var closeOfAttached time.Time
		v, _ := row.Column("h1", "close")
		if v == 80 {
			closeOfAttached = mustParse("2024-01-01T09:00")
		} else {
			closeOfAttached = mustParse("2024-01-01T08:00")
		}
		assert.False(t, closeOfAttached.After(row.Base.Timestamp), "no lookahead violated at %s", row.Base.Timestamp)
	}
}
