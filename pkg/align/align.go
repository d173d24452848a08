// Package align implements the multi-timeframe aligner (C2): it merges
// N market.Frames into one base-timeframe stream where every row
// carries the most recent *closed* higher-timeframe bar, prefixed by
// that timeframe's canonical label.
package align

import (
	"errors"
	"fmt"
	"time"

	"github.com/barforge/backtest/pkg/market"
	"github.com/barforge/backtest/pkg/timeframe"
)

var (
	// ErrEmptyData is returned when the frame map has no entries.
	ErrEmptyData = errors.New("align: empty data")
	// ErrInvalidTimeframeOrder is returned when the timeframe order is
	// not sorted by ascending duration with the base (index 0) smallest.
	ErrInvalidTimeframeOrder = errors.New("align: timeframes must be ordered by ascending duration, base first")
	// ErrMissingTimeframeData is returned when a timeframe named in the
	// order is absent from the frame map.
	ErrMissingTimeframeData = errors.New("align: missing data for timeframe")
)

// Row is one row of the aligned frame: the base bar plus, per higher
// timeframe label, a map of that timeframe's columns by bare name
// (e.g. Higher["h1"]["close"]).
type Row struct {
	Base      market.Bar
	Higher    map[string]map[string]float64 // timeframe label -> column -> value
	HigherDOW map[string]string              // timeframe label -> day-of-week tag
}

// Frame is the aligner's output: an ordered sequence of Rows on the
// base timeframe.
type Frame []Row

// Column returns a higher-timeframe column value by canonical
// timeframe label and bare column name (e.g. "h1", "close").
func (r Row) Column(tf, column string) (float64, bool) {
	cols, ok := r.Higher[tf]
	if !ok {
		return 0, false
	}
	v, ok := cols[column]
	return v, ok
}

// Align merges frames (keyed by canonical timeframe label) into a
// single base-timeframe Frame. order[0] is the base timeframe; the
// remainder must be strictly larger and sorted ascending by duration.
func Align(frames map[string]market.Frame, order []string) (Frame, error) {
	if len(frames) == 0 || len(order) == 0 {
		return nil, ErrEmptyData
	}

	durations := make([]uint32, len(order))
	for i, tf := range order {
		d, err := timeframe.ToMinutes(tf)
		if err != nil {
			return nil, fmt.Errorf("align: %w", err)
		}
		durations[i] = d
		if i > 0 && durations[i] <= durations[i-1] {
			return nil, ErrInvalidTimeframeOrder
		}
	}

	base, ok := frames[order[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTimeframeData, order[0])
	}
	if base.Len() == 0 {
		return nil, ErrEmptyData
	}

	higherFrames := make([]market.Frame, len(order)-1)
	for i, tf := range order[1:] {
		f, ok := frames[tf]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingTimeframeData, tf)
		}
		higherFrames[i] = f
	}

	// cursor[i] tracks the last index consumed in higherFrames[i]; since
	// base rows advance monotonically in time, the as-of search resumes
	// from the previous cursor rather than rescanning from the start.
	cursor := make([]int, len(higherFrames))

	out := make(Frame, 0, base.Len())
	for _, baseBar := range base.Bars {
		row := Row{
			Base:      baseBar,
			Higher:    make(map[string]map[string]float64, len(higherFrames)),
			HigherDOW: make(map[string]string, len(higherFrames)),
		}

		complete := true
		for i, hf := range higherFrames {
			tfLabel := order[i+1]
			d := durations[i+1]

			idx, found := advanceAsOf(hf, cursor[i], baseBar.Timestamp, d)
			if !found {
				complete = false
				break
			}
			cursor[i] = idx

			bar := hf.Bars[idx]
			cols := map[string]float64{
				"open":   bar.Open,
				"high":   bar.High,
				"low":    bar.Low,
				"close":  bar.Close,
				"volume": bar.Volume,
			}
			for k, v := range bar.Extra {
				cols[k] = v
			}
			row.Higher[tfLabel] = cols
			row.HigherDOW[tfLabel] = bar.DayOfWeek
		}

		if !complete {
			// Leading rows with no qualifying higher-timeframe bar yet
			// are dropped, per spec.md §4.2.
			continue
		}
		out = append(out, row)
	}

	return out, nil
}

// advanceAsOf finds the greatest index in hf.Bars, starting no earlier
// than from, whose close time (Timestamp + durationMinutes) is <= t. It
// returns the index and true, or false if no such bar exists yet.
// Base rows advance monotonically in time, so the caller feeds back
// the returned index as the next call's from, making each row's
// lookup amortized constant time instead of a full rescan.
func advanceAsOf(hf market.Frame, from int, t time.Time, durationMinutes uint32) (int, bool) {
	idx := from
	found := false
	for idx < hf.Len() {
		bar := hf.Bars[idx]
		if !bar.CloseTime(durationMinutes).After(t) {
			found = true
			idx++
			continue
		}
		break
	}
	if !found {
		return from, false
	}
	return idx - 1, true
}
