// Package timeframe parses and interconverts timeframe labels used
// throughout the backtester: leading-unit forms (m5, h1, d1, w1, M1)
// and leading-number forms (5m, 1h, 1d, 1w, 1M).
package timeframe

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidTimeframe is returned when a label matches neither the
// leading-unit nor the leading-number syntax.
var ErrInvalidTimeframe = errors.New("timeframe: invalid label")

// Minutes per unit, per spec.
const (
	minutesPerMinuteUnit = 1
	minutesPerHourUnit   = 60
	minutesPerDayUnit    = 1440
	minutesPerWeekUnit   = 10080
	minutesPerMonthUnit  = 43200
)

var (
	leadingUnitRe   = regexp.MustCompile(`^([mhdwM])(\d+)$`)
	leadingNumberRe = regexp.MustCompile(`^(\d+)([mhdwM])$`)
)

// unitMinutes maps a unit letter to its minute count. Unit letters are
// case-sensitive: lowercase m/h/d/w, uppercase M for month.
func unitMinutes(unit string) (int, bool) {
	switch unit {
	case "m":
		return minutesPerMinuteUnit, true
	case "h":
		return minutesPerHourUnit, true
	case "d":
		return minutesPerDayUnit, true
	case "w":
		return minutesPerWeekUnit, true
	case "M":
		return minutesPerMonthUnit, true
	default:
		return 0, false
	}
}

// parse extracts the (unit, count) pair from either accepted syntactic
// form. It is the sole place that understands both forms.
func parse(label string) (unit string, count int, ok bool) {
	if m := leadingUnitRe.FindStringSubmatch(label); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return "", 0, false
		}
		return m[1], n, true
	}
	if m := leadingNumberRe.FindStringSubmatch(label); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", 0, false
		}
		return m[2], n, true
	}
	return "", 0, false
}

// ToStandard canonicalizes a label to its leading-unit form, e.g.
// "5m" -> "m5", "1h" -> "h1", "1M" -> "M1".
func ToStandard(label string) (string, error) {
	unit, count, ok := parse(label)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, label)
	}
	return fmt.Sprintf("%s%d", unit, count), nil
}

// ToDB canonicalizes a label to its leading-number form, e.g.
// "m5" -> "5m", "h1" -> "1h". This is the form OHLCV tables in the
// data-loader layer key their timeframe column by.
func ToDB(label string) (string, error) {
	unit, count, ok := parse(label)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, label)
	}
	return fmt.Sprintf("%d%s", count, unit), nil
}

// ToMinutes returns the duration of a timeframe label in minutes.
func ToMinutes(label string) (uint32, error) {
	unit, count, ok := parse(label)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, label)
	}
	perUnit, ok := unitMinutes(unit)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, label)
	}
	return uint32(count * perUnit), nil
}

// AreEquivalent reports whether two labels denote the same duration,
// regardless of which syntactic form each uses.
func AreEquivalent(a, b string) (bool, error) {
	ma, err := ToMinutes(a)
	if err != nil {
		return false, err
	}
	mb, err := ToMinutes(b)
	if err != nil {
		return false, err
	}
	return ma == mb, nil
}

// FindMatching returns the element of available that is equivalent to
// wanted, if any.
func FindMatching(wanted string, available []string) (string, bool) {
	wantedMinutes, err := ToMinutes(wanted)
	if err != nil {
		return "", false
	}
	for _, candidate := range available {
		if m, err := ToMinutes(candidate); err == nil && m == wantedMinutes {
			return candidate, true
		}
	}
	return "", false
}

// GetColumnPrefix finds the column-name prefix matching wanted among a
// set of aligned-frame column names (e.g. "h1_close" -> "h1" when
// wanted is equivalent to "h1" or "1h").
func GetColumnPrefix(wanted string, columnNames []string) (string, bool) {
	wantedMinutes, err := ToMinutes(wanted)
	if err != nil {
		return "", false
	}
	for _, col := range columnNames {
		idx := strings.IndexByte(col, '_')
		if idx <= 0 {
			continue
		}
		prefix := col[:idx]
		if m, err := ToMinutes(prefix); err == nil && m == wantedMinutes {
			return prefix, true
		}
	}
	return "", false
}
