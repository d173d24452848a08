// Package strategy defines the contract between a trading strategy and
// the engine (C4): the per-bar signal/exit/trading-hours hooks, and the
// static Metadata a strategy declares about itself.
package strategy

import (
	"time"

	"github.com/barforge/backtest/pkg/align"
	"github.com/barforge/backtest/pkg/position"
)

// ParamKind identifies the type of a configurable strategy parameter.
type ParamKind string

const (
	ParamFloat  ParamKind = "float"
	ParamInt    ParamKind = "int"
	ParamString ParamKind = "string"
	ParamBool   ParamKind = "bool"
)

// ParamSpec describes one configurable parameter a strategy exposes,
// for validation and UI/config generation.
type ParamSpec struct {
	Name    string
	Kind    ParamKind
	Default interface{}
	Min     *float64
	Max     *float64
	Help    string
}

// Metadata is a strategy's static self-description.
type Metadata struct {
	ID                 string
	Name               string
	Description        string
	RequiredTimeframes []string // timeframes to load; cmd/backtest adds the run's base timeframe and sorts by duration itself, so the first entry is not read as the base
	BaseTimeframe      string
	UsesCustomSL       bool
	UsesCustomTP       bool
	DefaultSLType      position.SLType
	DefaultTPType      position.TPType
	ParamSchema        []ParamSpec
}

// Signal is a strategy's request to open a position. SL is required:
// only the strategy knows the concrete percent/bar-count/price for its
// own Metadata.DefaultSLType, so the engine never derives one on the
// strategy's behalf. TP and Partials are optional.
type Signal struct {
	Side     position.Side
	SL       position.SLSpec
	TP       *position.TPSpec
	Partials []position.PartialExit
}

// Strategy is the contract every trading strategy implements.
type Strategy interface {
	Metadata() Metadata

	// GenerateSignal inspects the current aligned row and returns a
	// Signal to open a position, or nil to do nothing this bar.
	GenerateSignal(row align.Row, t time.Time) (*Signal, error)

	// ShouldExit is called only for positions owned by this strategy,
	// and only after the SL/TP/partial/time-based checks have already
	// run and left the position open.
	ShouldExit(pos position.PositionView, row align.Row, t time.Time) (bool, error)

	// IsTradingTimeAllowed gates signal generation by time-of-day or
	// day-of-week filters a strategy wants to enforce.
	IsTradingTimeAllowed(row align.Row, t time.Time) bool
}
