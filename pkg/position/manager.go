package position

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barforge/backtest/pkg/logging"
	"github.com/barforge/backtest/pkg/market"
)

// RiskPolicy carries the account-wide sizing and risk-cap parameters
// from spec.md §3's Risk policy type.
type RiskPolicy struct {
	InitialCapital       float64
	MaxTotalRiskFraction float64
	PerTradeRiskFraction float64
	UseCompounding       bool
}

// OpenRequest is everything the Manager needs to size and open a new
// position. It intentionally carries only position-domain types so
// pkg/strategy (which depends on this package) can build one without
// creating an import cycle.
type OpenRequest struct {
	Strategy   string
	Symbol     string
	Side       Side
	EntryTime  time.Time
	EntryPrice float64
	SL         SLSpec
	TP         *TPSpec
	Partials   []PartialExit
	PointValue float64
}

// Manager owns every Position's lifecycle: opening (sizing, SL/TP
// derivation, risk-cap enforcement), per-bar evaluation of the SL /
// partial / TP / time ladder, and closing. It mirrors the teacher's
// Portfolio pattern of a map keyed for fast per-owner lookup, here
// keyed by strategy name (spec.md §4.3's "indexed by strategy name")
// rather than by symbol.
type Manager struct {
	policy      RiskPolicy
	open        map[string][]*Position
	realizedPnL float64
	logger      zerolog.Logger
}

// NewManager creates a Manager governed by the given risk policy.
func NewManager(policy RiskPolicy, logger zerolog.Logger) *Manager {
	return &Manager{
		policy: policy,
		open:   make(map[string][]*Position),
		logger: logger,
	}
}

// EffectiveCapital returns K_eff: initial capital when compounding is
// off, or initial capital plus cumulative realized and unrealized P&L
// when it is on.
func (m *Manager) EffectiveCapital(unrealizedPnL float64) float64 {
	if !m.policy.UseCompounding {
		return m.policy.InitialCapital
	}
	return m.policy.InitialCapital + m.realizedPnL + unrealizedPnL
}

// RealizedPnL returns the cumulative realized P&L across every
// strategy's fills so far.
func (m *Manager) RealizedPnL() float64 {
	return m.realizedPnL
}

// TotalOpenRisk returns the sum of initial risk across every currently
// open position, across all strategies.
func (m *Manager) TotalOpenRisk() float64 {
	sum := 0.0
	for _, positions := range m.open {
		for _, p := range positions {
			sum += p.InitialRisk
		}
	}
	return sum
}

// OpenPositions returns a snapshot slice of the open positions owned
// by strategy. The slice is a copy; the Positions themselves are not.
func (m *Manager) OpenPositions(strategy string) []*Position {
	return append([]*Position(nil), m.open[strategy]...)
}

// Open sizes and opens a new position, enforcing the account-wide risk
// cap atomically against the current open book. unrealizedPnL is the
// caller's current mark-to-market unrealized P&L across all open
// positions, needed only when compounding is on.
func (m *Manager) Open(req OpenRequest, unrealizedPnL float64) (*Position, error) {
	kEff := m.EffectiveCapital(unrealizedPnL)

	stopPrice, timeExitBars, err := DeriveStop(req.SL, req.Side, req.EntryPrice)
	if err != nil {
		return nil, err
	}
	riskInPoints := math.Abs(req.EntryPrice - stopPrice)
	if riskInPoints == 0 {
		return nil, ErrInvalidStop
	}
	tpPrice, err := DeriveTakeProfit(req.TP, req.Side, req.EntryPrice, riskInPoints)
	if err != nil {
		return nil, err
	}

	fracSum := 0.0
	for _, pe := range req.Partials {
		fracSum += pe.Fraction
	}
	if fracSum > 1.0+1e-9 {
		return nil, fmt.Errorf("position: partial-exit fractions sum to %.4f, exceeds 1", fracSum)
	}

	switch req.Side {
	case Long:
		if !(stopPrice < req.EntryPrice) {
			return nil, fmt.Errorf("%w: long stop must be below entry", ErrInvalidStop)
		}
		if tpPrice != nil && !(req.EntryPrice < *tpPrice) {
			return nil, fmt.Errorf("%w: long take-profit must be above entry", ErrInvalidStop)
		}
	case Short:
		if !(stopPrice > req.EntryPrice) {
			return nil, fmt.Errorf("%w: short stop must be above entry", ErrInvalidStop)
		}
		if tpPrice != nil && !(req.EntryPrice > *tpPrice) {
			return nil, fmt.Errorf("%w: short take-profit must be below entry", ErrInvalidStop)
		}
	}

	size, riskAmount, err := Size(req.EntryPrice, stopPrice, m.policy.PerTradeRiskFraction, kEff, req.PointValue)
	if err != nil {
		return nil, err
	}

	if m.TotalOpenRisk()+riskAmount > m.policy.MaxTotalRiskFraction*kEff+1e-9 {
		logging.ForStrategy(m.logger, req.Strategy).Debug().
			Float64("would_be_total_risk", m.TotalOpenRisk()+riskAmount).
			Float64("cap", m.policy.MaxTotalRiskFraction*kEff).
			Msg("position open denied: risk cap exceeded")
		return nil, ErrRiskCapExceeded
	}

	partials := append([]PartialExit(nil), req.Partials...)
	sort.Slice(partials, func(i, j int) bool { return partials[i].RMultiple < partials[j].RMultiple })

	pos := &Position{
		ID:            uuid.NewString(),
		Strategy:      req.Strategy,
		Symbol:        req.Symbol,
		Side:          req.Side,
		EntryTime:     req.EntryTime,
		EntryPrice:    req.EntryPrice,
		InitialSize:   size,
		RemainingSize: size,
		StopLoss:      &stopPrice,
		TakeProfit:    tpPrice,
		InitialRisk:   riskAmount,
		PointValue:    req.PointValue,
		Partials:      partials,
		TimeExitBars:  timeExitBars,
		Status:        StatusOpen,
	}

	m.open[req.Strategy] = append(m.open[req.Strategy], pos)
	logging.ForStrategy(m.logger, req.Strategy).Info().
		Str("position_id", pos.ID).
		Str("side", string(pos.Side)).
		Float64("size", size).
		Float64("risk", riskAmount).
		Msg("position opened")
	return pos, nil
}

// EvaluateBar runs the per-bar evaluation order from spec.md §4.3
// (stop-loss, partial-exit ladder, take-profit, time-based exit) over
// every open position owned by strategy against bar, and returns the
// positions that fully closed this bar. Positions whose Symbol
// doesn't match bar.Symbol are left untouched.
func (m *Manager) EvaluateBar(strategy string, bar market.Bar, now time.Time) []*Position {
	positions := m.open[strategy]
	if len(positions) == 0 {
		return nil
	}

	var closed []*Position
	remaining := positions[:0]
	for _, p := range positions {
		if p.Symbol != "" && p.Symbol != bar.Symbol {
			remaining = append(remaining, p)
			continue
		}
		m.evaluatePosition(p, bar, now)
		if p.Status == StatusClosed {
			closed = append(closed, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	m.open[strategy] = remaining
	return closed
}

func (m *Manager) evaluatePosition(p *Position, bar market.Bar, now time.Time) {
	p.BarsHeld++
	sign := 1.0
	if p.Side == Short {
		sign = -1
	}

	// Step 1: stop-loss, checked against the pessimistic extreme of the bar.
	if p.StopLoss != nil {
		extreme := bar.Low
		hit := extreme <= *p.StopLoss
		if p.Side == Short {
			extreme = bar.High
			hit = extreme >= *p.StopLoss
		}
		if hit {
			m.closePosition(p, *p.StopLoss, now, CloseReasonStopLoss)
			return
		}
	}

	// Step 2: partial-exit ladder, ascending r-multiple order. Multiple
	// rungs may fire within the same bar.
	if p.StopLoss != nil {
		riskInPoints := math.Abs(p.EntryPrice - *p.StopLoss)
		for i := range p.Partials {
			rung := &p.Partials[i]
			if rung.Fired {
				continue
			}
			trigger := p.EntryPrice + sign*rung.RMultiple*riskInPoints
			spanned := bar.High >= trigger
			if p.Side == Short {
				spanned = bar.Low <= trigger
			}
			if !spanned {
				continue
			}
			fillSize := rung.Fraction * p.InitialSize
			if fillSize > p.RemainingSize {
				fillSize = p.RemainingSize
			}
			rung.Fired = true
			m.applyFill(p, trigger, now, CloseReasonPartialExit, fillSize)
			if p.Status == StatusClosed {
				return
			}
		}
	}

	// Step 3: take-profit.
	if p.TakeProfit != nil {
		hit := bar.High >= *p.TakeProfit
		if p.Side == Short {
			hit = bar.Low <= *p.TakeProfit
		}
		if hit {
			m.closePosition(p, *p.TakeProfit, now, CloseReasonTakeProfit)
			return
		}
	}

	// Step 4: time-based exit, filled at the bar's close (no price target).
	if p.TimeExitBars > 0 && p.BarsHeld >= p.TimeExitBars {
		m.closePosition(p, bar.Close, now, CloseReasonTimeExit)
	}
}

// CloseForStrategyExit closes p in response to Strategy.ShouldExit
// returning true (step 5, evaluated by the caller only when steps 1-4
// did not already close the position this bar).
func (m *Manager) CloseForStrategyExit(p *Position, price float64, now time.Time) {
	m.closePosition(p, price, now, CloseReasonStrategyExit)
	m.removeFromOpen(p)
}

// ForceCloseAll closes every open position across every strategy at
// priceFor(symbol), used for cooperative cancellation and end-of-data.
func (m *Manager) ForceCloseAll(now time.Time, priceFor func(symbol string) float64, reason CloseReason) []*Position {
	var closed []*Position
	for strategy, positions := range m.open {
		for _, p := range positions {
			m.closePosition(p, priceFor(p.Symbol), now, reason)
			closed = append(closed, p)
		}
		m.open[strategy] = nil
	}
	return closed
}

func (m *Manager) removeFromOpen(target *Position) {
	positions := m.open[target.Strategy]
	for i, p := range positions {
		if p.ID == target.ID {
			m.open[target.Strategy] = append(positions[:i], positions[i+1:]...)
			return
		}
	}
}

// applyFill accumulates realized P&L for a partial or final close and
// closes the position once its remaining size is exhausted.
func (m *Manager) applyFill(p *Position, price float64, now time.Time, reason CloseReason, size float64) {
	sign := 1.0
	if p.Side == Short {
		sign = -1
	}
	pnl := (price - p.EntryPrice) * sign * size * p.PointValue

	p.RealizedPnL += pnl
	p.RemainingSize -= size
	p.Fills = append(p.Fills, Fill{Time: now, Price: price, Size: size, Reason: reason})
	m.realizedPnL += pnl

	if p.RemainingSize <= 1e-9 {
		p.RemainingSize = 0
		p.Status = StatusClosed
		p.CloseReason = reason
		p.CloseTime = now
		logging.ForStrategy(m.logger, p.Strategy).Info().
			Str("position_id", p.ID).
			Str("reason", string(reason)).
			Float64("realized_pnl", p.RealizedPnL).
			Msg("position closed")
	}
}

// closePosition closes the entire remaining size at price.
func (m *Manager) closePosition(p *Position, price float64, now time.Time, reason CloseReason) {
	m.applyFill(p, price, now, reason, p.RemainingSize)
}
