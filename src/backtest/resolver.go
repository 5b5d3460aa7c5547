package backtest

import (
	"math"
	"time"
)

// AdjustedPrice is the adjustment-consistent open/close pair for one
// (date, symbol). Both fields are always finite; on total unavailability they
// default to 0.0 so downstream arithmetic stays total.
type AdjustedPrice struct {
	AdjClose float64
	AdjOpen  float64
}

// ResolveAdjusted derives the adjusted price pair for a day. It never fails:
// any lookup miss yields zeros. The adjusted close falls back to the raw
// close, then the raw open. The adjusted open is the raw open scaled by the
// day's adjustment factor (adjClose/rawClose) when all three inputs exist and
// the raw close is nonzero; when the raw open is missing it collapses to the
// adjusted close.
func ResolveAdjusted(t *PriceTable, date time.Time, symbol string) AdjustedPrice {
	if t == nil {
		return AdjustedPrice{}
	}
	rawOpen := t.Value(date, symbol, FieldOpen)
	rawClose := t.Value(date, symbol, FieldClose)
	adjClose := t.Value(date, symbol, FieldAdjClose)

	if math.IsNaN(adjClose) {
		if !math.IsNaN(rawClose) {
			adjClose = rawClose
		} else {
			adjClose = rawOpen
		}
	}

	adjOpen := rawOpen
	if !math.IsNaN(rawOpen) && !math.IsNaN(rawClose) && !math.IsNaN(adjClose) && rawClose != 0 {
		adjOpen = rawOpen * (adjClose / rawClose)
	} else if math.IsNaN(rawOpen) {
		adjOpen = adjClose
	}

	return AdjustedPrice{
		AdjClose: finiteOrZero(adjClose),
		AdjOpen:  finiteOrZero(adjOpen),
	}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}
