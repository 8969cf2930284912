// Package instruments holds the immutable per-instrument metadata table:
// currency, point value, roll offset, margin figures and data start dates.
// The table is loaded once at startup and passed explicitly to every
// component that needs instrument parameters.
package instruments

import (
	"sort"
	"time"
)

// Type classifies the asset class of an instrument.
type Type string

const (
	TypeFuture Type = "future"
	TypeStock  Type = "stock"
	TypeCoin   Type = "coin"
)

// Defaults applied when a field is absent from the metadata file.
const (
	DefaultRollOffsetDays = -31
	DefaultMarketImpact   = 5e-4
)

var (
	// DefaultStartDate is the earliest day assumed when the metadata does
	// not say when an instrument's history begins.
	DefaultStartDate = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

	// DefaultMarginRefDate anchors the yearly margin recalibration.
	DefaultMarginRefDate = time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)
)

// Instrument describes one tradeable instrument family (a futures stem, an
// equity ticker or a crypto pair).
type Instrument struct {
	Stem                 string  `yaml:"stem"`
	Name                 string  `yaml:"name,omitempty"`
	Type                 Type    `yaml:"type,omitempty"`
	Currency             string  `yaml:"currency,omitempty"`
	PointValue           float64 `yaml:"point_value,omitempty"`
	RollOffsetDays       int     `yaml:"roll_offset_days,omitempty"`
	OvernightInitial     float64 `yaml:"overnight_initial,omitempty"`
	OvernightMaintenance float64 `yaml:"overnight_maintenance,omitempty"`
	StartDate            string  `yaml:"start_date,omitempty"`
	MarginRefDate        string  `yaml:"margin_ref_date,omitempty"`
	MarketImpact         float64 `yaml:"market_impact,omitempty"`

	// Parsed during Load
	startDay     time.Time
	marginRefDay time.Time
}

// RollOffset returns the roll offset as a (negative) duration.
func (i Instrument) RollOffset() time.Duration {
	return time.Duration(i.RollOffsetDays) * 24 * time.Hour
}

// StartDay returns the first day the vendor has data for the instrument.
func (i Instrument) StartDay() time.Time {
	return i.startDay
}

// MarginRefDay returns the reference date used by the yearly margin
// recalibration.
func (i Instrument) MarginRefDay() time.Time {
	return i.marginRefDay
}

// Universe is the immutable set of instruments a run may trade.
type Universe struct {
	byStem map[string]Instrument
}

// Get returns the instrument for a stem.
func (u *Universe) Get(stem string) (Instrument, bool) {
	ins, ok := u.byStem[stem]
	return ins, ok
}

// Currency returns the instrument's trading currency, defaulting to USD for
// unknown stems so that a missing metadata row degrades to a no-op FX
// conversion instead of an error.
func (u *Universe) Currency(stem string) string {
	if ins, ok := u.byStem[stem]; ok {
		return ins.Currency
	}
	return "USD"
}

// RollOffset returns the stem's roll offset, or the default when the stem is
// not in the table.
func (u *Universe) RollOffset(stem string) time.Duration {
	if ins, ok := u.byStem[stem]; ok {
		return ins.RollOffset()
	}
	return time.Duration(DefaultRollOffsetDays) * 24 * time.Hour
}

// Stems returns all stems in the universe, sorted.
func (u *Universe) Stems() []string {
	stems := make([]string, 0, len(u.byStem))
	for stem := range u.byStem {
		stems = append(stems, stem)
	}
	sort.Strings(stems)
	return stems
}

// Len returns the number of instruments in the universe.
func (u *Universe) Len() int {
	return len(u.byStem)
}
