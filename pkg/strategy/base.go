package strategy

import (
	"fmt"
	"time"

	"github.com/barforge/backtest/pkg/align"
	"github.com/barforge/backtest/pkg/position"
)

// BaseStrategy provides the plumbing most concrete strategies need:
// typed parameter lookups and a day-of-week allowlist. Concrete
// strategies embed it and only implement GenerateSignal, optionally
// overriding ShouldExit and IsTradingTimeAllowed.
type BaseStrategy struct {
	meta        Metadata
	params      map[string]interface{}
	allowedDays map[string]bool // empty/nil means every day is allowed
}

// NewBaseStrategy creates a BaseStrategy with the given metadata and
// resolved parameter values.
func NewBaseStrategy(meta Metadata, params map[string]interface{}) *BaseStrategy {
	return &BaseStrategy{meta: meta, params: params}
}

// Metadata returns the strategy's static self-description.
func (b *BaseStrategy) Metadata() Metadata {
	return b.meta
}

// SetAllowedDays restricts trading to the given day-of-week tags (as
// carried on market.Bar, e.g. "Mon"). An empty list allows every day.
func (b *BaseStrategy) SetAllowedDays(days []string) {
	if len(days) == 0 {
		b.allowedDays = nil
		return
	}
	b.allowedDays = make(map[string]bool, len(days))
	for _, d := range days {
		b.allowedDays[d] = true
	}
}

// IsTradingTimeAllowed implements the day-of-week filter. Strategies
// needing time-of-day filters as well should override this.
func (b *BaseStrategy) IsTradingTimeAllowed(row align.Row, _ time.Time) bool {
	if len(b.allowedDays) == 0 {
		return true
	}
	return b.allowedDays[row.Base.DayOfWeek]
}

// ShouldExit is a no-op default: the strategy relies solely on SL/TP/
// partial/time exits unless it overrides this.
func (b *BaseStrategy) ShouldExit(_ position.PositionView, _ align.Row, _ time.Time) (bool, error) {
	return false, nil
}

// Param returns a raw parameter value.
func (b *BaseStrategy) Param(key string) interface{} {
	return b.params[key]
}

// ParamFloat64 returns a parameter coerced to float64.
func (b *BaseStrategy) ParamFloat64(key string) (float64, error) {
	val, ok := b.params[key]
	if !ok {
		return 0, fmt.Errorf("strategy %s: parameter %q not found", b.meta.Name, key)
	}
	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("strategy %s: parameter %q is not a number", b.meta.Name, key)
	}
}

// ParamInt returns a parameter coerced to int.
func (b *BaseStrategy) ParamInt(key string) (int, error) {
	val, ok := b.params[key]
	if !ok {
		return 0, fmt.Errorf("strategy %s: parameter %q not found", b.meta.Name, key)
	}
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("strategy %s: parameter %q is not an integer", b.meta.Name, key)
	}
}

// ParamString returns a parameter coerced to string.
func (b *BaseStrategy) ParamString(key string) (string, error) {
	val, ok := b.params[key]
	if !ok {
		return "", fmt.Errorf("strategy %s: parameter %q not found", b.meta.Name, key)
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("strategy %s: parameter %q is not a string", b.meta.Name, key)
	}
	return s, nil
}
