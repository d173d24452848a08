// Package market holds the immutable OHLCV data model shared by the
// aligner, position manager, and strategy protocol: Bar and Frame.
package market

import (
	"fmt"
	"time"
)

// Bar is one OHLCV row for a fixed time window on a single symbol and
// timeframe.
type Bar struct {
	Symbol    string
	Timeframe string // canonical label, see pkg/timeframe
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	DayOfWeek string // Mon, Tue, Wed, Thu, Fri, Sat, Sun

	// Extra carries indicator columns pre-computed by the external
	// indicator framework. The core never populates or reads specific
	// keys here; it only threads the map through alignment.
	Extra map[string]float64
}

// Validate checks the OHLC invariant: Low <= Open,Close <= High.
func (b Bar) Validate() error {
	if b.Low > b.Open || b.Open > b.High {
		return fmt.Errorf("bar %s@%s: open %.8f out of range [%.8f, %.8f]", b.Symbol, b.Timestamp, b.Open, b.Low, b.High)
	}
	if b.Low > b.Close || b.Close > b.High {
		return fmt.Errorf("bar %s@%s: close %.8f out of range [%.8f, %.8f]", b.Symbol, b.Timestamp, b.Close, b.Low, b.High)
	}
	return nil
}

// CloseTime returns the time the bar fully closes, given the
// timeframe's duration in minutes. A bar that opens at t closes at
// t+duration.
func (b Bar) CloseTime(durationMinutes uint32) time.Time {
	return b.Timestamp.Add(time.Duration(durationMinutes) * time.Minute)
}
