package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// CashSymbol is the sentinel asset representing an uninvested cash sleeve.
// It never has price lookups performed against it.
const CashSymbol = "CASH0"

// Field identifies one price column of a symbol.
type Field int

const (
	FieldOpen Field = iota
	FieldClose
	FieldAdjClose
)

type symbolSeries struct {
	open     []float64
	close    []float64
	adjClose []float64
}

func (s *symbolSeries) column(f Field) []float64 {
	switch f {
	case FieldOpen:
		return s.open
	case FieldClose:
		return s.close
	default:
		return s.adjClose
	}
}

// PriceTable is a calendar-indexed table of daily prices, columns keyed by
// (field, symbol). Missing observations are NaN until ForwardFill runs; a
// value that is still NaN afterwards was permanently absent (no data existed
// before the symbol's first valid observation).
type PriceTable struct {
	dates   []time.Time
	dateIdx map[string]int
	symbols map[string]*symbolSeries
}

// NewPriceTable builds an empty table over the given date axis. Dates must be
// strictly increasing and unique.
func NewPriceTable(dates []time.Time) (*PriceTable, error) {
	idx := make(map[string]int, len(dates))
	for i, d := range dates {
		if i > 0 && !dates[i-1].Before(d) {
			return nil, fmt.Errorf("price table dates must be strictly increasing: %s >= %s",
				dates[i-1].Format("2006-01-02"), d.Format("2006-01-02"))
		}
		idx[dateKey(d)] = i
	}
	return &PriceTable{
		dates:   dates,
		dateIdx: idx,
		symbols: make(map[string]*symbolSeries),
	}, nil
}

func dateKey(d time.Time) string { return d.Format("2006-01-02") }

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func (t *PriceTable) series(symbol string) *symbolSeries {
	s, ok := t.symbols[symbol]
	if !ok {
		s = &symbolSeries{
			open:     nanSlice(len(t.dates)),
			close:    nanSlice(len(t.dates)),
			adjClose: nanSlice(len(t.dates)),
		}
		t.symbols[symbol] = s
	}
	return s
}

// Set stores one observation. Dates outside the axis are ignored.
func (t *PriceTable) Set(date time.Time, symbol string, field Field, value float64) {
	i, ok := t.dateIdx[dateKey(date)]
	if !ok {
		return
	}
	t.series(symbol).column(field)[i] = value
}

// SetSeries stores a whole column at once. The slice length must match the
// date axis.
func (t *PriceTable) SetSeries(symbol string, field Field, values []float64) error {
	if len(values) != len(t.dates) {
		return fmt.Errorf("series length %d does not match date axis length %d", len(values), len(t.dates))
	}
	copy(t.series(symbol).column(field), values)
	return nil
}

// Value returns the raw observation or NaN when absent.
func (t *PriceTable) Value(date time.Time, symbol string, field Field) float64 {
	i, ok := t.dateIdx[dateKey(date)]
	if !ok {
		return math.NaN()
	}
	s, ok := t.symbols[symbol]
	if !ok {
		return math.NaN()
	}
	return s.column(field)[i]
}

// HasSymbol reports whether any column exists for the symbol.
func (t *PriceTable) HasSymbol(symbol string) bool {
	_, ok := t.symbols[symbol]
	return ok
}

// Dates returns the full date axis.
func (t *PriceTable) Dates() []time.Time { return t.dates }

// DatesFrom returns the portion of the axis at or after start.
func (t *PriceTable) DatesFrom(start time.Time) []time.Time {
	i := sort.Search(len(t.dates), func(i int) bool { return !t.dates[i].Before(start) })
	return t.dates[i:]
}

// ForwardFill replaces every gap after a symbol's first valid observation
// with the previous value, for every column. Leading gaps stay NaN.
func (t *PriceTable) ForwardFill() {
	for _, s := range t.symbols {
		for _, col := range [][]float64{s.open, s.close, s.adjClose} {
			last := math.NaN()
			for i, v := range col {
				if math.IsNaN(v) {
					col[i] = last
				} else {
					last = v
				}
			}
		}
	}
}

// FirstValidDate returns the first date with a finite adjusted close for the
// symbol, falling back to the close column when the symbol has no adjusted
// closes at all. The second return is false when neither column ever has data.
func (t *PriceTable) FirstValidDate(symbol string) (time.Time, bool) {
	s, ok := t.symbols[symbol]
	if !ok {
		return time.Time{}, false
	}
	for _, col := range [][]float64{s.adjClose, s.close} {
		for i, v := range col {
			if !math.IsNaN(v) {
				return t.dates[i], true
			}
		}
	}
	return time.Time{}, false
}
