// Package symbols holds per-symbol metadata (point value, exchange,
// asset type) and an explicit allow/block list, passed into a run by
// the caller rather than read from package-level globals.
package symbols

import "fmt"

// AssetType classifies how a symbol's point value and session calendar
// should be interpreted.
type AssetType string

const (
	AssetTradFi AssetType = "tradfi"
	AssetCrypto AssetType = "crypto"
)

// Metadata describes one tradable symbol.
type Metadata struct {
	Symbol         string
	AssetType      AssetType
	Exchange       string
	PointValue     float64
	TableName      string
	FirstTimestamp string
	LastTimestamp  string
}

// Repository holds Metadata records plus an explicit allow/block list.
// It carries no package-level state: every run constructs and injects
// its own Repository.
type Repository struct {
	metadata map[string]Metadata
	allowed  map[string]bool // nil means every symbol not in blocked is allowed
	blocked  map[string]bool
}

// NewRepository creates an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		metadata: make(map[string]Metadata),
		blocked:  make(map[string]bool),
	}
}

// Register adds or replaces a symbol's Metadata.
func (r *Repository) Register(m Metadata) {
	r.metadata[m.Symbol] = m
}

// Allow restricts trading to exactly the given symbols. Calling it
// with an empty list is a no-op (every non-blocked symbol stays
// allowed).
func (r *Repository) Allow(symbols ...string) {
	if len(symbols) == 0 {
		return
	}
	if r.allowed == nil {
		r.allowed = make(map[string]bool, len(symbols))
	}
	for _, s := range symbols {
		r.allowed[s] = true
	}
}

// Block excludes the given symbols from trading regardless of the
// allow list.
func (r *Repository) Block(symbols ...string) {
	for _, s := range symbols {
		r.blocked[s] = true
	}
}

// IsTradable reports whether a symbol may be traded under the current
// allow/block configuration.
func (r *Repository) IsTradable(symbol string) bool {
	if r.blocked[symbol] {
		return false
	}
	if r.allowed != nil {
		return r.allowed[symbol]
	}
	return true
}

// Get returns a symbol's Metadata, or an error if it has never been
// registered.
func (r *Repository) Get(symbol string) (Metadata, error) {
	m, ok := r.metadata[symbol]
	if !ok {
		return Metadata{}, fmt.Errorf("symbols: no metadata registered for %q", symbol)
	}
	return m, nil
}

// PointValue returns the symbol's point value, defaulting to 1.0 when
// the repository has no record for it (spec.md §6 inputs).
func (r *Repository) PointValue(symbol string) float64 {
	if m, ok := r.metadata[symbol]; ok && m.PointValue != 0 {
		return m.PointValue
	}
	return 1.0
}
