package backtester

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// WriteTradesCSV writes the trade log in the fixed column order from
// spec.md §6, with ISO-8601 timestamps.
func (r Results) WriteTradesCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"strategy", "side", "entry_time", "entry_price", "exit_time", "exit_price",
		"initial_size", "initial_risk", "realized_pnl", "r_multiple",
		"close_reason", "duration_bars",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("backtester: write csv header: %w", err)
	}

	for _, tr := range r.Trades {
		row := []string{
			tr.Strategy,
			string(tr.Side),
			tr.EntryTime.Format(time.RFC3339),
			strconv.FormatFloat(tr.EntryPrice, 'f', -1, 64),
			tr.ExitTime.Format(time.RFC3339),
			strconv.FormatFloat(tr.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(tr.InitialSize, 'f', -1, 64),
			strconv.FormatFloat(tr.InitialRisk, 'f', -1, 64),
			strconv.FormatFloat(tr.RealizedPnL, 'f', -1, 64),
			strconv.FormatFloat(tr.RMultiple, 'f', -1, 64),
			string(tr.CloseReason),
			strconv.Itoa(tr.DurationBars),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("backtester: write csv row: %w", err)
		}
	}
	if err := cw.Error(); err != nil {
		return fmt.Errorf("backtester: flush csv: %w", err)
	}
	return nil
}
