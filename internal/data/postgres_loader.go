// Package data provides the external market-data loader: a
// Postgres-backed implementation of the MarketFrameLoader contract the
// engine uses to pull OHLCV history for a symbol and timeframe.
package data

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/barforge/backtest/pkg/market"
)

// PostgresMarketFrameLoader loads bars from a `bars` table shaped
// (symbol, timeframe, ts, open, high, low, close, volume, day_of_week).
type PostgresMarketFrameLoader struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresMarketFrameLoader opens and pings a connection to
// connectionString.
func NewPostgresMarketFrameLoader(connectionString string, logger zerolog.Logger) (*PostgresMarketFrameLoader, error) {
	logger.Info().Msg("connecting to market data database")

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("data: open connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("data: ping database: %w", err)
	}

	return &PostgresMarketFrameLoader{db: db, logger: logger}, nil
}

// Load retrieves a chronologically ordered Frame for symbol and
// timeframe between start and end (inclusive).
func (l *PostgresMarketFrameLoader) Load(symbol, timeframe string, start, end time.Time) (market.Frame, error) {
	l.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Time("start", start).
		Time("end", end).
		Msg("loading bars")

	const query = `
		SELECT ts, open, high, low, close, volume, day_of_week
		FROM bars
		WHERE symbol = $1 AND timeframe = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC
	`
	rows, err := l.db.Query(query, symbol, timeframe, start, end)
	if err != nil {
		return market.Frame{}, fmt.Errorf("data: query bars: %w", err)
	}
	defer rows.Close()

	frame := market.Frame{Symbol: symbol, Timeframe: timeframe}
	for rows.Next() {
		var b market.Bar
		b.Symbol = symbol
		b.Timeframe = timeframe
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.DayOfWeek); err != nil {
			return market.Frame{}, fmt.Errorf("data: scan bar row: %w", err)
		}
		frame.Bars = append(frame.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return market.Frame{}, fmt.Errorf("data: iterate bar rows: %w", err)
	}

	l.logger.Info().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("bars", len(frame.Bars)).
		Msg("loaded bars")
	return frame, nil
}

// Close releases the underlying database connection.
func (l *PostgresMarketFrameLoader) Close() error {
	return l.db.Close()
}
