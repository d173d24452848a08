// Package backtester implements the backtest engine (C6): the main
// loop that drives aligned bars through each registered strategy,
// routes signals and exits through the position Manager, and updates
// the performance Tracker every bar.
package backtester

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/barforge/backtest/pkg/align"
	"github.com/barforge/backtest/pkg/logging"
	"github.com/barforge/backtest/pkg/market"
	"github.com/barforge/backtest/pkg/performance"
	"github.com/barforge/backtest/pkg/position"
	"github.com/barforge/backtest/pkg/strategy"
	"github.com/barforge/backtest/pkg/timeframe"
)

// ErrInvalidBar is returned when a bar in the aligned frame fails its
// own OHLC invariant or its timestamp does not follow the previous
// bar's; the run aborts rather than silently skipping it.
var ErrInvalidBar = errors.New("backtester: invalid bar")

// MarketFrameLoader is the external input the Engine's caller uses to
// materialize a symbol's aligned frame up front; the hot loop never
// performs I/O.
type MarketFrameLoader interface {
	Load(symbol, timeframe string, start, end time.Time) (market.Frame, error)
}

// Config configures one run of the Engine, mirroring spec.md §6's run
// configuration.
type Config struct {
	InitialCapital       float64
	MaxTotalRiskFraction float64
	PerTradeRiskFraction float64
	UseCompounding       bool
	BaseTimeframe        string
	Symbol               string
	PointValue           float64
	Performance          performance.Config
}

// Engine drives the bar-by-bar replay loop described in spec.md §5.
type Engine struct {
	cfg        Config
	strategies []strategy.Strategy

	manager *position.Manager
	tracker *performance.Tracker
	byStrat map[string]*performance.Tracker
	logger  zerolog.Logger

	cancel atomic.Bool

	riskCapRejections int
}

// NewEngine creates an Engine governed by cfg.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	policy := position.RiskPolicy{
		InitialCapital:       cfg.InitialCapital,
		MaxTotalRiskFraction: cfg.MaxTotalRiskFraction,
		PerTradeRiskFraction: cfg.PerTradeRiskFraction,
		UseCompounding:       cfg.UseCompounding,
	}
	runLogger := logging.ForRun(logger, cfg.Symbol, cfg.BaseTimeframe)
	return &Engine{
		cfg:     cfg,
		manager: position.NewManager(policy, runLogger),
		tracker: performance.NewTracker(cfg.InitialCapital, cfg.Performance),
		byStrat: make(map[string]*performance.Tracker),
		logger:  runLogger,
	}
}

// Register adds a strategy to the run. Registration order determines
// per-bar evaluation order and risk-cap tie-breaks (spec.md §5).
func (e *Engine) Register(s strategy.Strategy) {
	e.strategies = append(e.strategies, s)
	e.byStrat[strategyKey(s)] = performance.NewTracker(e.cfg.InitialCapital, e.cfg.Performance)
}

// recordTrade feeds a closed position into both the run-wide tracker
// and its owning strategy's tracker.
func (e *Engine) recordTrade(p *position.Position) {
	e.tracker.RecordTrade(p)
	if sub, ok := e.byStrat[p.Strategy]; ok {
		sub.RecordTrade(p)
	}
}

// Cancel sets the cooperative cancel flag, checked between bars.
func (e *Engine) Cancel() {
	e.cancel.Store(true)
}

// Results is everything a run produces.
type Results struct {
	Summary           performance.Summary
	PerStrategy       map[string]performance.Summary
	Trades            []performance.TradeRecord
	Equity            []performance.EquitySample
	RiskCapRejections int
	Cancelled         bool
}

// Run replays frame bar by bar against every registered strategy.
func (e *Engine) Run(frame align.Frame) (Results, error) {
	baseMinutes, err := timeframe.ToMinutes(e.cfg.BaseTimeframe)
	if err != nil {
		return Results{}, fmt.Errorf("backtester: %w", err)
	}

	cancelled := false
	var lastBar market.Bar

	for i, row := range frame {
		bar := row.Base
		if err := bar.Validate(); err != nil {
			return Results{}, fmt.Errorf("%w: %v", ErrInvalidBar, err)
		}
		if i > 0 && !bar.Timestamp.After(lastBar.Timestamp) {
			return Results{}, fmt.Errorf("%w: timestamp %s does not follow %s", ErrInvalidBar, bar.Timestamp, lastBar.Timestamp)
		}
		lastBar = bar
		if e.cancel.Load() {
			cancelled = true
			break
		}

		t := bar.CloseTime(baseMinutes)
		e.evaluateOpenPositions(row, bar, t)
		e.generateSignals(row, bar, t)

		unrealized := e.unrealizedPnL(bar)
		realized := e.manager.RealizedPnL()
		e.tracker.RecordBar(t, realized, unrealized)
		for _, sub := range e.byStrat {
			sub.RecordBar(t, realized, unrealized)
		}
	}

	closeReason := position.CloseReasonEndOfData
	if cancelled {
		closeReason = position.CloseReasonManualExit
	}
	finalClosed := e.manager.ForceCloseAll(lastBar.CloseTime(baseMinutes), func(string) float64 { return lastBar.Close }, closeReason)
	for _, p := range finalClosed {
		e.recordTrade(p)
	}

	perStrategy := make(map[string]performance.Summary, len(e.byStrat))
	for name, sub := range e.byStrat {
		perStrategy[name] = sub.Summary(baseMinutes)
	}
	return Results{
		Summary:           e.tracker.Summary(baseMinutes),
		PerStrategy:       perStrategy,
		Trades:            e.tracker.Trades(),
		Equity:            e.tracker.EquityCurve(),
		RiskCapRejections: e.riskCapRejections,
		Cancelled:         cancelled,
	}, nil
}

// evaluateOpenPositions runs steps 1-5 of spec.md §4.3's per-bar
// evaluation order: SL, partial ladder, TP, time exit (all inside
// Manager.EvaluateBar), then the strategy's custom exit hook for
// whatever is left open.
func (e *Engine) evaluateOpenPositions(row align.Row, bar market.Bar, t time.Time) {
	for _, strat := range e.strategies {
		key := strategyKey(strat)
		stratLogger := logging.ForStrategy(e.logger, key)
		closed := e.manager.EvaluateBar(key, bar, t)
		for _, p := range closed {
			e.recordTrade(p)
		}

		for _, p := range e.manager.OpenPositions(key) {
			should, err := e.callShouldExit(strat, p.View(), row, t)
			if err != nil {
				logging.ForBar(stratLogger, t).Error().Err(err).Str("position_id", p.ID).Msg("strategy exit check failed")
				continue
			}
			if should {
				e.manager.CloseForStrategyExit(p, bar.Close, t)
				e.recordTrade(p)
			}
		}
	}
}

func (e *Engine) generateSignals(row align.Row, bar market.Bar, t time.Time) {
	for _, strat := range e.strategies {
		key := strategyKey(strat)
		stratLogger := logging.ForStrategy(e.logger, key)
		if !strat.IsTradingTimeAllowed(row, t) {
			continue
		}

		sig, err := e.callGenerateSignal(strat, row, t)
		if err != nil {
			logging.ForBar(stratLogger, t).Error().Err(err).Msg("signal generation failed")
			continue
		}
		if sig == nil {
			continue
		}

		unrealized := e.unrealizedPnL(bar)
		req := position.OpenRequest{
			Strategy:   key,
			Symbol:     e.cfg.Symbol,
			Side:       sig.Side,
			EntryTime:  t,
			EntryPrice: bar.Close,
			SL:         sig.SL,
			TP:         sig.TP,
			Partials:   sig.Partials,
			PointValue: e.cfg.PointValue,
		}
		_, err = e.manager.Open(req, unrealized)
		if err != nil {
			if errors.Is(err, position.ErrRiskCapExceeded) {
				e.riskCapRejections++
				stratLogger.Debug().Msg("signal dropped: risk cap exceeded")
			} else {
				stratLogger.Warn().Err(err).Msg("signal discarded")
			}
			continue
		}
	}
}

// callGenerateSignal recovers a strategy panic the same way the
// teacher's engine loop logs-and-continues on a strategy error.
func (e *Engine) callGenerateSignal(strat strategy.Strategy, row align.Row, t time.Time) (sig *strategy.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in GenerateSignal: %v", r)
		}
	}()
	return strat.GenerateSignal(row, t)
}

func (e *Engine) callShouldExit(strat strategy.Strategy, view position.PositionView, row align.Row, t time.Time) (should bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in ShouldExit: %v", r)
		}
	}()
	return strat.ShouldExit(view, row, t)
}

func (e *Engine) unrealizedPnL(bar market.Bar) float64 {
	total := 0.0
	for _, strat := range e.strategies {
		for _, p := range e.manager.OpenPositions(strategyKey(strat)) {
			sign := 1.0
			if p.Side == position.Short {
				sign = -1
			}
			total += (bar.Close - p.EntryPrice) * sign * p.RemainingSize * p.PointValue
		}
	}
	return total
}

func strategyKey(s strategy.Strategy) string {
	return s.Metadata().Name
}
