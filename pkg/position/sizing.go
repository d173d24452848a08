package position

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidStop is returned when a stop distance from entry is zero,
// or when an SL/TP specification cannot be derived into a valid price.
var ErrInvalidStop = errors.New("position: invalid stop")

// ErrRiskCapExceeded is an observable open-denial reason, not a fatal
// error: the signal is dropped and the run continues.
var ErrRiskCapExceeded = errors.New("position: risk cap exceeded")

// SLType selects how a stop-loss price is derived at open time.
type SLType string

const (
	SLPercent SLType = "percent"
	SLTime    SLType = "time"
)

// SLSpec describes a strategy's declared stop-loss. Price, when set,
// overrides derivation entirely (the spec's absolute-price escape
// hatch). Bars, when > 0, additionally forces a time-based exit after
// that many bars regardless of the SL type — this runs alongside the
// price stop, it does not replace it, since sizing always needs a
// price distance.
type SLSpec struct {
	Type    SLType
	Percent float64
	Bars    int
	Price   *float64
}

// TPType selects how a take-profit price is derived at open time.
type TPType string

const (
	TPPercent TPType = "percent"
	TPRR      TPType = "rr"
)

// TPSpec describes a strategy's declared take-profit. Price, when set,
// overrides derivation.
type TPSpec struct {
	Type      TPType
	Percent   float64
	RMultiple float64
	Price     *float64
}

// DeriveStop resolves an SLSpec into an absolute stop price and an
// optional time-exit bar count.
func DeriveStop(spec SLSpec, side Side, entry float64) (price float64, timeExitBars int, err error) {
	if spec.Price != nil {
		return *spec.Price, spec.Bars, nil
	}
	switch spec.Type {
	case SLPercent:
		if side == Short {
			return entry * (1 + spec.Percent), spec.Bars, nil
		}
		return entry * (1 - spec.Percent), spec.Bars, nil
	case SLTime:
		return 0, 0, fmt.Errorf("%w: time SL type requires an explicit price override", ErrInvalidStop)
	default:
		return 0, 0, fmt.Errorf("%w: unknown SL type %q", ErrInvalidStop, spec.Type)
	}
}

// DeriveTakeProfit resolves an optional TPSpec into an absolute
// take-profit price. A nil spec means no take-profit.
func DeriveTakeProfit(spec *TPSpec, side Side, entry, riskInPoints float64) (*float64, error) {
	if spec == nil {
		return nil, nil
	}
	if spec.Price != nil {
		return spec.Price, nil
	}
	switch spec.Type {
	case TPPercent:
		var p float64
		if side == Short {
			p = entry * (1 - spec.Percent)
		} else {
			p = entry * (1 + spec.Percent)
		}
		return &p, nil
	case TPRR:
		dist := spec.RMultiple * riskInPoints
		var p float64
		if side == Short {
			p = entry - dist
		} else {
			p = entry + dist
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("%w: unknown TP type %q", ErrInvalidStop, spec.Type)
	}
}

// Size computes position size and risk amount per spec.md §4.3:
// risk_amount = r * K_eff; size = risk_amount / (risk_in_points *
// point_value). Returns ErrInvalidStop if entry and stop coincide.
func Size(entryPrice, stopPrice, perTradeRiskFraction, effectiveCapital, pointValue float64) (size, riskAmount float64, err error) {
	riskInPoints := math.Abs(entryPrice - stopPrice)
	if riskInPoints == 0 {
		return 0, 0, ErrInvalidStop
	}
	riskAmount = perTradeRiskFraction * effectiveCapital
	size = riskAmount / (riskInPoints * pointValue)
	return size, riskAmount, nil
}
