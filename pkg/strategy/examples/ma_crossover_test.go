package examples

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barforge/backtest/pkg/align"
	"github.com/barforge/backtest/pkg/market"
	"github.com/barforge/backtest/pkg/position"
)

func rowWithExtra(extra map[string]float64) align.Row {
	return align.Row{Base: market.Bar{Extra: extra}}
}

func TestMACrossoverFiresOnlyOnCross(t *testing.T) {
	s := NewMACrossover("short_sma", "long_sma", 0.02, 2.0)

	sig, err := s.GenerateSignal(rowWithExtra(map[string]float64{"short_sma": 9, "long_sma": 10}), time.Time{})
	require.NoError(t, err)
	assert.Nil(t, sig)

	sig, err = s.GenerateSignal(rowWithExtra(map[string]float64{"short_sma": 11, "long_sma": 10}), time.Time{})
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, position.Long, sig.Side)
	assert.Equal(t, position.SLPercent, sig.SL.Type)

	sig, err = s.GenerateSignal(rowWithExtra(map[string]float64{"short_sma": 12, "long_sma": 10}), time.Time{})
	require.NoError(t, err)
	assert.Nil(t, sig, "no new signal while already above, the crossover already fired")
}

func TestMACrossoverSkipsMissingColumns(t *testing.T) {
	s := NewMACrossover("short_sma", "long_sma", 0.02, 2.0)
	sig, err := s.GenerateSignal(rowWithExtra(nil), time.Time{})
	require.NoError(t, err)
	assert.Nil(t, sig)
}
