package models

import (
	"fmt"
	"time"
)

// Split names used by the single-agent evaluation.
const (
	SplitValid = "valid"
	SplitTest  = "test"
)

// MarketRow is one fine-resolution observation of the instrument.
type MarketRow struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	High      []float64 `json:"high"` // coarse-level feature values, ordered like Feed.HighFeatures
	Low       []float64 `json:"low"`  // fine-level feature values, ordered like Feed.LowFeatures
}

// SplitSpec locates one dataset split in a feed source.
type SplitSpec struct {
	Name   string    `json:"name" yaml:"name"`
	Path   string    `json:"path,omitempty" yaml:"path"`
	Symbol string    `json:"symbol,omitempty" yaml:"symbol"`
	From   time.Time `json:"from,omitempty" yaml:"from"`
	To     time.Time `json:"to,omitempty" yaml:"to"`
}

// Feed is a read-only, time-ordered sequence of market rows for one instrument.
type Feed struct {
	symbol       string
	highFeatures []string
	lowFeatures  []string
	rows         []MarketRow
}

// NewFeed validates rows and returns an immutable feed.
func NewFeed(symbol string, highFeatures, lowFeatures []string, rows []MarketRow) (*Feed, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidFeed)
	}
	for i, r := range rows {
		if r.Price <= 0 {
			return nil, fmt.Errorf("%w: row %d has non-positive price %v", ErrInvalidFeed, i, r.Price)
		}
		if len(r.High) != len(highFeatures) {
			return nil, fmt.Errorf("%w: row %d has %d high features, want %d", ErrInvalidFeed, i, len(r.High), len(highFeatures))
		}
		if len(r.Low) != len(lowFeatures) {
			return nil, fmt.Errorf("%w: row %d has %d low features, want %d", ErrInvalidFeed, i, len(r.Low), len(lowFeatures))
		}
		if i > 0 && !r.Timestamp.After(rows[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: row %d timestamp %s not after %s", ErrInvalidFeed, i,
				r.Timestamp.Format(time.RFC3339Nano), rows[i-1].Timestamp.Format(time.RFC3339Nano))
		}
	}
	cp := make([]MarketRow, len(rows))
	copy(cp, rows)
	return &Feed{
		symbol:       symbol,
		highFeatures: append([]string(nil), highFeatures...),
		lowFeatures:  append([]string(nil), lowFeatures...),
		rows:         cp,
	}, nil
}

func (f *Feed) Symbol() string { return f.symbol }

func (f *Feed) Len() int { return len(f.rows) }

func (f *Feed) Row(i int) MarketRow { return f.rows[i] }

func (f *Feed) Price(i int) float64 { return f.rows[i].Price }

func (f *Feed) HighFeatures() []string { return append([]string(nil), f.highFeatures...) }

func (f *Feed) LowFeatures() []string { return append([]string(nil), f.lowFeatures...) }

// HighWindow flattens coarse features of rows [from, to) in row order.
func (f *Feed) HighWindow(from, to int) []float64 {
	out := make([]float64, 0, (to-from)*len(f.highFeatures))
	for i := from; i < to; i++ {
		out = append(out, f.rows[i].High...)
	}
	return out
}

// LowWindow flattens fine features of rows [from, to) in row order.
func (f *Feed) LowWindow(from, to int) []float64 {
	out := make([]float64, 0, (to-from)*len(f.lowFeatures))
	for i := from; i < to; i++ {
		out = append(out, f.rows[i].Low...)
	}
	return out
}
