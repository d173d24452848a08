// Package position implements the position lifecycle (C3): the
// Position data model, its stop-loss / take-profit / partial-exit
// state machine, risk-based sizing, and the account-wide risk cap. The
// Manager is the sole mutator of any Position; strategies only ever
// see a read-only PositionView.
package position

import (
	"fmt"
	"time"
)

// Side is the direction of a position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Status is the lifecycle state of a position.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// CloseReason identifies which check closed (or partially closed) a
// position. Wire values match spec §6 exactly.
type CloseReason string

const (
	CloseReasonStopLoss     CloseReason = "stop_loss"
	CloseReasonTakeProfit   CloseReason = "take_profit"
	CloseReasonPartialExit  CloseReason = "partial_exit"
	CloseReasonTimeExit     CloseReason = "time_exit"
	CloseReasonStrategyExit CloseReason = "strategy_exit"
	CloseReasonManualExit   CloseReason = "manual_exit"
	CloseReasonEndOfData    CloseReason = "end_of_data"
)

// PartialExit is a pre-declared ladder rung: when price reaches
// entry + RMultiple*riskInPoints (sign by side), Fraction of the
// position's initial size closes at that trigger price. Each rung
// fires at most once.
type PartialExit struct {
	Fraction  float64
	RMultiple float64
	Fired     bool
}

// Fill is one realized close event against a position, partial or
// final.
type Fill struct {
	Time   time.Time
	Price  float64
	Size   float64
	Reason CloseReason
}

// Position is a single strategy's open or closed trade. The Manager
// exclusively mutates it; strategies receive a PositionView.
type Position struct {
	ID         string
	Strategy   string
	Symbol     string
	Side       Side
	EntryTime  time.Time
	EntryPrice float64

	InitialSize   float64
	RemainingSize float64

	StopLoss   *float64
	TakeProfit *float64

	InitialRisk  float64
	PointValue   float64
	Partials     []PartialExit
	TimeExitBars int // 0 disables the time-based exit
	BarsHeld     int

	Status      Status
	CloseReason CloseReason
	CloseTime   time.Time

	RealizedPnL float64
	Fills       []Fill
}

// Validate checks the Position invariants from spec.md §3.
func (p *Position) Validate() error {
	if p.RemainingSize < 0 || p.RemainingSize > p.InitialSize+1e-9 {
		return fmt.Errorf("position %s: remaining size %.8f out of [0, %.8f]", p.ID, p.RemainingSize, p.InitialSize)
	}
	if p.Status == StatusOpen && p.InitialRisk <= 0 {
		return fmt.Errorf("position %s: open position must have positive initial risk, got %.8f", p.ID, p.InitialRisk)
	}
	if p.StopLoss != nil && p.TakeProfit != nil {
		switch p.Side {
		case Long:
			if !(*p.StopLoss < p.EntryPrice && p.EntryPrice < *p.TakeProfit) {
				return fmt.Errorf("position %s: long requires stop < entry < take-profit, got %.8f / %.8f / %.8f", p.ID, *p.StopLoss, p.EntryPrice, *p.TakeProfit)
			}
		case Short:
			if !(*p.TakeProfit < p.EntryPrice && p.EntryPrice < *p.StopLoss) {
				return fmt.Errorf("position %s: short requires take-profit < entry < stop, got %.8f / %.8f / %.8f", p.ID, *p.TakeProfit, p.EntryPrice, *p.StopLoss)
			}
		}
	}
	fracSum := 0.0
	for _, pe := range p.Partials {
		fracSum += pe.Fraction
	}
	if fracSum > 1.0+1e-9 {
		return fmt.Errorf("position %s: partial-exit fractions sum to %.4f, exceeds 1", p.ID, fracSum)
	}
	return nil
}

// RMultiple returns realized P&L divided by initial risk, the metric
// used for both the trade log and partial-fraction conservation.
func (p *Position) RMultiple() float64 {
	if p.InitialRisk == 0 {
		return 0
	}
	return p.RealizedPnL / p.InitialRisk
}

// PositionView is the read-only projection of a Position handed to a
// Strategy's ShouldExit hook. It carries no methods that mutate state.
type PositionView struct {
	ID            string
	Strategy      string
	Symbol        string
	Side          Side
	EntryTime     time.Time
	EntryPrice    float64
	InitialSize   float64
	RemainingSize float64
	StopLoss      *float64
	TakeProfit    *float64
	InitialRisk   float64
	BarsHeld      int
}

// View returns the read-only projection of p.
func (p *Position) View() PositionView {
	return PositionView{
		ID:            p.ID,
		Strategy:      p.Strategy,
		Symbol:        p.Symbol,
		Side:          p.Side,
		EntryTime:     p.EntryTime,
		EntryPrice:    p.EntryPrice,
		InitialSize:   p.InitialSize,
		RemainingSize: p.RemainingSize,
		StopLoss:      p.StopLoss,
		TakeProfit:    p.TakeProfit,
		InitialRisk:   p.InitialRisk,
		BarsHeld:      p.BarsHeld,
	}
}
